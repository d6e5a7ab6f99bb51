// Package machine provides command execution on hosts and guests.
// A Host hands out Sessions; a Session runs shell commands synchronously
// and reports their exit status and output.
package machine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ErrSessionClosed is returned when a command is sent over a closed session.
var ErrSessionClosed = errors.New("machine: session closed")

// Session runs commands on a single machine.
type Session interface {
	// Run executes command and returns its exit status.
	// A non-nil error means the command could not be executed at all.
	Run(ctx context.Context, command string) (int, error)

	// RunCapture executes command and returns its exit status and stdout.
	// A single trailing newline is dropped from the output.
	RunCapture(ctx context.Context, command string) (int, string, error)

	// Close releases the underlying transport. Safe to call more than once.
	Close() error
}

// Host supplies sessions and file transfer for one machine.
type Host interface {
	// Name identifies the host in logs.
	Name() string

	// Addr is the address used to reach the host.
	Addr() string

	// Session opens a new command session.
	Session(ctx context.Context) (Session, error)

	// CopyFrom copies remotePath on the host to localPath on this machine.
	CopyFrom(ctx context.Context, remotePath, localPath string) error
}

// CommandError reports a mandatory command that exited non-zero.
type CommandError struct {
	Command string
	Status  int
	Output  string
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.Status)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.Status, e.Output)
}

// Check runs command and returns its output, failing on a non-zero status.
func Check(ctx context.Context, s Session, command string) (string, error) {
	status, out, err := s.RunCapture(ctx, command)
	if err != nil {
		return "", err
	}
	if status != 0 {
		return out, &CommandError{Command: command, Status: status, Output: out}
	}
	return out, nil
}

// RunChecked runs command and fails on a non-zero status.
func RunChecked(ctx context.Context, s Session, command string) error {
	status, err := s.Run(ctx, command)
	if err != nil {
		return err
	}
	if status != 0 {
		return &CommandError{Command: command, Status: status}
	}
	return nil
}

// Quote joins args into a single shell-safe command line.
func Quote(args ...string) string {
	return shellquote.Join(args...)
}

// Lines splits command output into non-empty lines.
func Lines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
