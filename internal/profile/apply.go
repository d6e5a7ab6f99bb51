package profile

import (
	"context"
	"fmt"

	"github.com/javanstorm/perftune/internal/logging"
)

func (p *profile) Apply(ctx context.Context, setupScript string) (Result, error) {
	if err := p.checkOpen(); err != nil {
		return Result{}, err
	}

	applied, ok, err := p.store.Lookup(ctx, KeySetProfile)
	if err != nil {
		return Result{}, err
	}
	if ok {
		pending, err := p.store.Has(ctx, KeyPersistentProfileExpected)
		if err != nil {
			return Result{}, err
		}
		if !pending || Variant(applied) != p.variant {
			return Result{}, fmt.Errorf("%w: %s is applied on %s", ErrAlreadyApplied, applied, p.host.Name())
		}
		return p.resume(ctx, setupScript)
	}

	p.log.Info("Applying profile")
	if err := p.store.Set(ctx, KeySetProfile, string(p.variant), false); err != nil {
		return Result{}, err
	}

	switch p.variant {
	case TunedAdm:
		if err := p.applyTuned(ctx, p.opts.TunedProfile); err != nil {
			return Result{}, err
		}
	case DefaultLibvirt:
		return p.provision(ctx, setupScript)
	case TunedLibvirt:
		return p.applyPersistent(ctx)
	}
	return Result{Outcome: Transient}, nil
}

// applyPersistent records the boot id, installs the boot hook and changes
// the boot configuration. The marker the hook renames is written last.
func (p *profile) applyPersistent(ctx context.Context) (Result, error) {
	bootID, err := p.bootID(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := p.store.Set(ctx, KeyPersistentProfileExpected, bootID, false); err != nil {
		return Result{}, err
	}
	if err := p.installBootHook(ctx); err != nil {
		return Result{}, err
	}
	if err := p.applyTuned(ctx, p.opts.HostTunedProfile); err != nil {
		return Result{}, err
	}
	if err := p.addBootArgs(ctx, p.opts.GrubArgs); err != nil {
		return Result{}, err
	}
	if err := p.store.Set(ctx, KeyPersistentSetupExpected, bootID, false); err != nil {
		return Result{}, err
	}
	p.log.Info("Persistent setup written, reboot the host to continue")
	return Result{Outcome: PersistentPendingReboot}, nil
}

// resume finishes a persistent apply after the target rebooted.
func (p *profile) resume(ctx context.Context, setupScript string) (Result, error) {
	finished, err := p.store.Has(ctx, KeyPersistentSetupFinished)
	if err != nil {
		return Result{}, err
	}
	if !finished {
		return Result{}, ErrRebootPending
	}
	p.log.Info("Resuming persistent apply")
	if err := p.store.Remove(ctx, KeyPersistentProfileExpected); err != nil {
		return Result{}, err
	}
	if p.variant.provisionsGuests() {
		return p.provision(ctx, setupScript)
	}
	return Result{Outcome: Transient}, nil
}

func (p *profile) Revert(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}

	applied, ok, err := p.store.Lookup(ctx, KeySetProfile)
	if err != nil {
		return err
	}
	if !ok {
		p.log.V(logging.DEBUG).Info("Profile not applied, nothing to revert")
		return nil
	}
	if Variant(applied) != p.variant {
		return fmt.Errorf("%w: %q recorded on %s, reverting as %s", ErrUnsupportedRevert, applied, p.host.Name(), p.variant)
	}

	p.log.Info("Reverting profile")
	persistent, err := p.hasPersistentMarkers(ctx)
	if err != nil {
		return err
	}
	if err := p.destroyGuests(ctx); err != nil {
		return err
	}
	if err := p.restoreBootHook(ctx); err != nil {
		return err
	}
	if err := p.removeBootArgs(ctx); err != nil {
		return err
	}
	if err := p.restoreTuned(ctx); err != nil {
		return err
	}
	if err := p.removePaths(ctx); err != nil {
		return err
	}
	if err := p.store.Clear(ctx); err != nil {
		return err
	}
	if persistent {
		p.log.Info("Boot configuration restored, reboot the host for it to take effect")
	}
	return nil
}

// removePaths deletes every path registered with RemoveOnRevert.
func (p *profile) removePaths(ctx context.Context) error {
	paths, err := p.store.Lines(ctx, KeyPathsToRemove)
	if err != nil {
		return err
	}
	for _, target := range paths {
		p.log.V(logging.DEBUG).Info("Removing", "path", target)
		if err := p.fs.Remove(ctx, target); err != nil {
			return fmt.Errorf("remove %s: %w", target, err)
		}
	}
	return p.store.Remove(ctx, KeyPathsToRemove)
}
