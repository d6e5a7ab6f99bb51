package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/poll"
)

// PersistentStatus is the progress of a persistent apply.
type PersistentStatus int

const (
	// NotRequired means no persistent apply is in progress.
	NotRequired PersistentStatus = iota

	// PendingReboot means the target has not yet run the boot hook.
	PendingReboot

	// Finished means the boot hook ran after a reboot.
	Finished
)

func (s PersistentStatus) String() string {
	switch s {
	case NotRequired:
		return "not-required"
	case PendingReboot:
		return "pending-reboot"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("PersistentStatus(%d)", int(s))
	}
}

func (p *profile) persistentStatus(ctx context.Context) (PersistentStatus, error) {
	finished, err := p.store.Has(ctx, KeyPersistentSetupFinished)
	if err != nil {
		return NotRequired, err
	}
	if finished {
		return Finished, nil
	}
	pending, err := p.store.Has(ctx, KeyPersistentProfileExpected)
	if err != nil {
		return NotRequired, err
	}
	if pending {
		return PendingReboot, nil
	}
	return NotRequired, nil
}

// CheckPersistentSetup never fails because the target is unreachable: a
// target that is rebooting reports PendingReboot and the session reconnects
// on the next check. A command that ran and failed is returned as is.
func (p *profile) CheckPersistentSetup(ctx context.Context) (PersistentStatus, error) {
	if err := p.checkOpen(); err != nil {
		return NotRequired, err
	}
	status, err := p.persistentStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return NotRequired, ctx.Err()
		}
		var cmdErr *machine.CommandError
		if errors.As(err, &cmdErr) {
			return NotRequired, fmt.Errorf("check persistent setup: %w", err)
		}
		p.log.V(logging.DEBUG).Info("Target unreachable, assuming reboot", "error", err.Error())
		p.sess.Reset()
		return PendingReboot, nil
	}
	return status, nil
}

// WaitPersistentSetup polls p until its persistent setup is no longer
// pending, bounded only by policy and ctx.
func WaitPersistentSetup(ctx context.Context, p Profile, policy poll.Policy) (PersistentStatus, error) {
	var status PersistentStatus
	_, err := poll.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		s, err := p.CheckPersistentSetup(ctx)
		if err != nil {
			return false, err
		}
		status = s
		return s != PendingReboot, nil
	})
	if err != nil {
		return status, fmt.Errorf("wait for %s to reboot: %w", p.Host().Name(), err)
	}
	return status, nil
}
