package machine

import (
	"context"
	"sync"
)

// ReconnectingSession is a Session that reopens its underlying session from
// the host after Reset. Profiles use it so a target can reboot under them.
type ReconnectingSession struct {
	host   Host
	mu     sync.Mutex
	cur    Session
	closed bool
}

// NewReconnectingSession creates a session that opens lazily from host.
func NewReconnectingSession(host Host) *ReconnectingSession {
	return &ReconnectingSession{host: host}
}

// Connect opens the underlying session if it is not open yet.
func (s *ReconnectingSession) Connect(ctx context.Context) error {
	_, err := s.current(ctx)
	return err
}

func (s *ReconnectingSession) current(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.cur == nil {
		sess, err := s.host.Session(ctx)
		if err != nil {
			return nil, err
		}
		s.cur = sess
	}
	return s.cur, nil
}

// Run executes command on the current session.
func (s *ReconnectingSession) Run(ctx context.Context, command string) (int, error) {
	sess, err := s.current(ctx)
	if err != nil {
		return -1, err
	}
	return sess.Run(ctx, command)
}

// RunCapture executes command on the current session.
func (s *ReconnectingSession) RunCapture(ctx context.Context, command string) (int, string, error) {
	sess, err := s.current(ctx)
	if err != nil {
		return -1, "", err
	}
	return sess.RunCapture(ctx, command)
}

// Reset drops the current session; the next command reconnects.
func (s *ReconnectingSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		_ = s.cur.Close()
		s.cur = nil
	}
}

// Close closes the current session and refuses further commands.
func (s *ReconnectingSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}
