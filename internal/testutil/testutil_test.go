package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/javanstorm/perftune/internal/machine"
)

func TestScriptedSessionRules(t *testing.T) {
	ctx := context.Background()
	s := NewScriptedSession()
	s.Default = Response{Status: 1}
	s.On("tuned-adm", Response{Output: "Current active profile: balanced"})
	s.On("tuned-adm profile", Response{Status: 2})

	if status, _ := s.Run(ctx, "true"); status != 1 {
		t.Errorf("default status = %d, want 1", status)
	}
	if _, out, _ := s.RunCapture(ctx, "tuned-adm active"); out != "Current active profile: balanced" {
		t.Errorf("tuned-adm active output = %q", out)
	}
	if status, _ := s.Run(ctx, "tuned-adm profile virtual-host"); status != 2 {
		t.Errorf("later rule should win, status = %d", status)
	}
	if got := len(s.CallsContaining("tuned-adm")); got != 2 {
		t.Errorf("CallsContaining() = %d calls, want 2", got)
	}
}

func TestScriptedSessionSequence(t *testing.T) {
	ctx := context.Background()
	s := NewScriptedSession()
	s.OnSequence("test -e", Response{Status: 1}, Response{Status: 0})

	var got []int
	for i := 0; i < 3; i++ {
		status, err := s.Run(ctx, "test -e /x")
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, status)
	}
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Errorf("sequence = %v, want [1 0 0]", got)
	}
}

func TestFakeHostFailures(t *testing.T) {
	ctx := context.Background()
	s := NewScriptedSession()
	h := NewFakeHost("guest", s)
	h.FailSessions(1)

	if _, err := h.Session(ctx); err == nil {
		t.Error("first Session() should fail")
	}
	sess, err := h.Session(ctx)
	if err != nil {
		t.Fatalf("second Session() error = %v", err)
	}
	sess.Close()
	if _, err := sess.Run(ctx, "true"); !errors.Is(err, machine.ErrSessionClosed) {
		t.Errorf("Run() on closed session error = %v", err)
	}
	if _, err := h.Session(ctx); err != nil {
		t.Fatal(err)
	}
	if h.Opens() != 2 {
		t.Errorf("Opens() = %d, want 2", h.Opens())
	}
}

func TestShellHostRecordsSessions(t *testing.T) {
	h := NewShellHost()
	sess, err := h.Session(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Opened) != 1 || h.Opened[0] != sess {
		t.Errorf("Opened = %v", h.Opened)
	}
}
