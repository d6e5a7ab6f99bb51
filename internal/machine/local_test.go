package machine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalSessionRun(t *testing.T) {
	s := NewLocalSession("")
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		status  int
		output  string
	}{
		{"success", "echo hello", 0, "hello"},
		{"failure", "exit 3", 3, ""},
		{"multi-line", "printf 'a\\nb\\n'", 0, "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out, err := s.RunCapture(ctx, tt.command)
			if err != nil {
				t.Fatalf("RunCapture(%q) error = %v", tt.command, err)
			}
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if out != tt.output {
				t.Errorf("output = %q, want %q", out, tt.output)
			}
		})
	}
}

func TestLocalSessionClosed(t *testing.T) {
	s := NewLocalSession("sh")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := s.Run(context.Background(), "true"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Run() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestLocalSessionCancel(t *testing.T) {
	s := NewLocalSession("sh")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := s.Run(ctx, "sleep 10"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
}

func TestCheckReportsCommandError(t *testing.T) {
	s := NewLocalSession("sh")
	_, err := Check(context.Background(), s, "echo nope; exit 2")

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Check() error = %v, want *CommandError", err)
	}
	if cmdErr.Status != 2 || cmdErr.Output != "nope" {
		t.Errorf("CommandError = %+v", cmdErr)
	}
}

func TestLocalHostCopyFrom(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "out", "dst")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	h := NewLocalHost("")
	if h.Name() != "localhost" {
		t.Errorf("Name() = %q, want localhost", h.Name())
	}
	if err := h.CopyFrom(context.Background(), src, dst); err != nil {
		t.Fatalf("CopyFrom() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("copied content = %q", data)
	}
}

type countingHost struct {
	*LocalHost
	opened []*LocalSession
}

func (h *countingHost) Session(ctx context.Context) (Session, error) {
	s := NewLocalSession("sh")
	h.opened = append(h.opened, s)
	return s, nil
}

func TestReconnectingSession(t *testing.T) {
	host := &countingHost{LocalHost: NewLocalHost("")}
	s := NewReconnectingSession(host)
	ctx := context.Background()

	if len(host.opened) != 0 {
		t.Fatal("session opened before first use")
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if status, err := s.Run(ctx, "true"); err != nil || status != 0 {
		t.Fatalf("Run() = %d, %v", status, err)
	}
	if len(host.opened) != 1 {
		t.Fatalf("opened %d sessions, want 1", len(host.opened))
	}

	s.Reset()
	if !host.opened[0].Closed() {
		t.Error("Reset() did not close the old session")
	}
	if _, _, err := s.RunCapture(ctx, "echo again"); err != nil {
		t.Fatalf("RunCapture() after Reset error = %v", err)
	}
	if len(host.opened) != 2 {
		t.Fatalf("opened %d sessions, want 2", len(host.opened))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !host.opened[1].Closed() {
		t.Error("Close() did not close the current session")
	}
	if _, err := s.Run(ctx, "true"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Run() after Close error = %v, want ErrSessionClosed", err)
	}
}
