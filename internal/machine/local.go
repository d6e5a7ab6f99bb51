package machine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-cmd/cmd"
)

// LocalSession runs commands through a shell on this machine.
type LocalSession struct {
	shell  string
	mu     sync.Mutex
	closed bool
}

// NewLocalSession creates a session running commands with shell -c.
// An empty shell defaults to "sh".
func NewLocalSession(shell string) *LocalSession {
	if shell == "" {
		shell = "sh"
	}
	return &LocalSession{shell: shell}
}

// Run executes command and returns its exit status.
func (s *LocalSession) Run(ctx context.Context, command string) (int, error) {
	status, err := s.run(ctx, command)
	if err != nil {
		return -1, err
	}
	return status.Exit, nil
}

// RunCapture executes command and returns its exit status and stdout.
func (s *LocalSession) RunCapture(ctx context.Context, command string) (int, string, error) {
	status, err := s.run(ctx, command)
	if err != nil {
		return -1, "", err
	}
	return status.Exit, strings.Join(status.Stdout, "\n"), nil
}

func (s *LocalSession) run(ctx context.Context, command string) (cmd.Status, error) {
	if s.Closed() {
		return cmd.Status{}, ErrSessionClosed
	}

	c := cmd.NewCmd(s.shell, "-c", command)
	statusCh := c.Start()

	select {
	case status := <-statusCh:
		if status.Error != nil {
			return status, fmt.Errorf("run %q: %w", command, status.Error)
		}
		return status, nil
	case <-ctx.Done():
		_ = c.Stop()
		<-statusCh
		return cmd.Status{}, ctx.Err()
	}
}

// Close marks the session closed.
func (s *LocalSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *LocalSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LocalHost is the machine perftune itself runs on.
type LocalHost struct {
	name  string
	shell string
}

// NewLocalHost creates a host backed by local shell sessions.
func NewLocalHost(name string) *LocalHost {
	if name == "" {
		name = "localhost"
	}
	return &LocalHost{name: name, shell: "sh"}
}

// Name returns the host name used in logs.
func (h *LocalHost) Name() string {
	return h.name
}

// Addr returns "localhost".
func (h *LocalHost) Addr() string {
	return "localhost"
}

// Session opens a new local shell session.
func (h *LocalHost) Session(ctx context.Context) (Session, error) {
	return NewLocalSession(h.shell), nil
}

// CopyFrom copies a local file.
func (h *LocalHost) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	src, err := os.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy %s: %w", remotePath, err)
	}
	return dst.Close()
}
