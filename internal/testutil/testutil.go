// Package testutil provides fake sessions and hosts for perftune tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/javanstorm/perftune/internal/machine"
)

// Response is the scripted result of one command.
type Response struct {
	Status int
	Output string
	Err    error
}

type rule struct {
	substr    string
	responses []Response
	next      int
}

func (r *rule) take() Response {
	resp := r.responses[r.next]
	if r.next < len(r.responses)-1 {
		r.next++
	}
	return resp
}

// ScriptedSession is a machine.Session answering commands from rules.
// A rule matches when the command contains its substring; the most recently
// added matching rule wins. Unmatched commands get Default.
type ScriptedSession struct {
	mu      sync.Mutex
	rules   []*rule
	calls   []string
	closed  bool
	Default Response
}

// NewScriptedSession creates a session answering status 0 with no output
// to every command.
func NewScriptedSession() *ScriptedSession {
	return &ScriptedSession{}
}

// On answers commands containing substr with resp.
func (s *ScriptedSession) On(substr string, resp Response) *ScriptedSession {
	return s.OnSequence(substr, resp)
}

// OnSequence answers successive matching commands with resps in order,
// repeating the last one.
func (s *ScriptedSession) OnSequence(substr string, resps ...Response) *ScriptedSession {
	if len(resps) == 0 {
		panic("testutil: OnSequence needs at least one response")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{substr: substr, responses: resps})
	return s
}

func (s *ScriptedSession) answer(command string) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Response{}, machine.ErrSessionClosed
	}
	s.calls = append(s.calls, command)
	for i := len(s.rules) - 1; i >= 0; i-- {
		if strings.Contains(command, s.rules[i].substr) {
			return s.rules[i].take(), nil
		}
	}
	return s.Default, nil
}

// Run returns the scripted status.
func (s *ScriptedSession) Run(ctx context.Context, command string) (int, error) {
	resp, err := s.answer(command)
	if err != nil {
		return -1, err
	}
	if resp.Err != nil {
		return -1, resp.Err
	}
	return resp.Status, nil
}

// RunCapture returns the scripted status and output.
func (s *ScriptedSession) RunCapture(ctx context.Context, command string) (int, string, error) {
	resp, err := s.answer(command)
	if err != nil {
		return -1, "", err
	}
	if resp.Err != nil {
		return -1, "", resp.Err
	}
	return resp.Status, resp.Output, nil
}

// Close marks the session closed.
func (s *ScriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *ScriptedSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reopen clears the closed flag so a host can hand the session out again.
func (s *ScriptedSession) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

// Calls returns every command received, in order.
func (s *ScriptedSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallsContaining returns the commands containing substr.
func (s *ScriptedSession) CallsContaining(substr string) []string {
	var out []string
	for _, c := range s.Calls() {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded commands.
func (s *ScriptedSession) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// FakeHost hands out one shared session.
type FakeHost struct {
	name    string
	addr    string
	session *ScriptedSession

	mu       sync.Mutex
	opens    int
	failures int
	copies   map[string]string
}

// NewFakeHost creates a host serving session.
func NewFakeHost(name string, session *ScriptedSession) *FakeHost {
	return &FakeHost{name: name, addr: name + ".test", session: session, copies: map[string]string{}}
}

// Name returns the host name.
func (h *FakeHost) Name() string {
	return h.name
}

// Addr returns the host address.
func (h *FakeHost) Addr() string {
	return h.addr
}

// FailSessions makes the next n Session calls fail, as a rebooting host would.
func (h *FakeHost) FailSessions(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = n
}

// Session returns the shared session, reopening it if it was closed.
func (h *FakeHost) Session(ctx context.Context) (machine.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return nil, errors.New("connection refused")
	}
	h.opens++
	h.session.Reopen()
	return h.session, nil
}

// Opens returns how many sessions were handed out.
func (h *FakeHost) Opens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

// CopyFrom records the transfer.
func (h *FakeHost) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.copies[remotePath] = localPath
	return nil
}

// ShellHost runs commands in local shells and keeps every session it opened.
type ShellHost struct {
	*machine.LocalHost
	mu     sync.Mutex
	Opened []*machine.LocalSession
}

// NewShellHost creates a local host recording its sessions.
func NewShellHost() *ShellHost {
	return &ShellHost{LocalHost: machine.NewLocalHost("selftest")}
}

// Session opens a new local shell session.
func (h *ShellHost) Session(ctx context.Context) (machine.Session, error) {
	s := machine.NewLocalSession("sh")
	h.mu.Lock()
	h.Opened = append(h.Opened, s)
	h.mu.Unlock()
	return s, nil
}

// MemFS returns an in-memory machine.FS and the afero filesystem behind it.
func MemFS() (*machine.AferoFS, afero.Fs) {
	mem := afero.NewMemMapFs()
	return machine.NewAferoFS(mem), mem
}

// WriteFile writes content into fsys, failing the test on error.
func WriteFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Exists reports whether path exists in fsys, failing the test on error.
func Exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return ok
}

// ReadFile returns the content of path in fsys, failing the test on error.
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// String renders a response for failure messages.
func (r Response) String() string {
	return fmt.Sprintf("status=%d output=%q err=%v", r.Status, r.Output, r.Err)
}
