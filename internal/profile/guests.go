package profile

import (
	"context"
	"fmt"

	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/machine"
)

// provision starts the guests and applies the guest profile in each.
// Every guest is recorded before it is started.
func (p *profile) provision(ctx context.Context, setupScript string) (Result, error) {
	if p.provisioner == nil {
		return Result{}, ErrNoProvisioner
	}
	image, err := p.provisioner.EnsureImage(ctx, setupScript)
	if err != nil {
		return Result{}, fmt.Errorf("prepare guest image: %w", err)
	}

	for i := 0; i < p.opts.GuestCount; i++ {
		name := p.provisioner.GuestName(i)
		if err := p.store.Append(ctx, KeyGuests, name); err != nil {
			return Result{}, err
		}
		if err := p.RemoveOnRevert(ctx, p.provisioner.DiskPath(name)); err != nil {
			return Result{}, err
		}
		host, err := p.provisioner.Start(ctx, name, image)
		if err != nil {
			return Result{}, fmt.Errorf("start guest %s: %w", name, err)
		}
		g, err := p.openGuest(ctx, i, name, host)
		if err != nil {
			return Result{}, err
		}
		res, err := g.Profile.Apply(ctx, "")
		if err != nil {
			return Result{}, fmt.Errorf("apply %s in guest %s: %w", g.Profile.Variant(), name, err)
		}
		if res.Outcome != Transient {
			return Result{}, fmt.Errorf("guest %s: %s apply is %s, want transient", name, g.Profile.Variant(), res.Outcome)
		}
	}
	p.log.Info("Provisioned guests", "count", len(p.guests))
	return Result{Outcome: Provisioned, Guests: append([]Guest(nil), p.guests...)}, nil
}

// openGuest opens the profile inside guest i and keeps it for Info and Close.
func (p *profile) openGuest(ctx context.Context, i int, name string, host machine.Host) (Guest, error) {
	child, err := Open(ctx, p.guestVariant(), host, p.guestOptions(i))
	if err != nil {
		return Guest{}, fmt.Errorf("open guest %s: %w", name, err)
	}
	g := Guest{Index: i, Name: name, Host: host, Profile: child}
	p.guests = append(p.guests, g)
	return g, nil
}

// attachGuests reopens the guests recorded by an apply made by another
// process. Unreachable guests are skipped.
func (p *profile) attachGuests(ctx context.Context) error {
	if len(p.guests) > 0 || p.provisioner == nil {
		return nil
	}
	names, err := p.store.Lines(ctx, KeyGuests)
	if err != nil {
		return err
	}
	for i, name := range names {
		host, err := p.provisioner.Attach(ctx, name)
		if err != nil {
			p.log.Info("Guest not reachable", "guest", name, "error", err.Error())
			continue
		}
		if _, err := p.openGuest(ctx, i, name, host); err != nil {
			p.log.Info("Guest not reachable", "guest", name, "error", err.Error())
		}
	}
	return nil
}

// destroyGuests closes and destroys recorded guests, newest first.
func (p *profile) destroyGuests(ctx context.Context) error {
	for _, g := range p.guests {
		if err := g.Profile.Close(); err != nil {
			p.log.V(logging.DEBUG).Info("Closing guest profile failed", "guest", g.Name, "error", err.Error())
		}
	}
	p.guests = nil

	names, err := p.store.Lines(ctx, KeyGuests)
	if err != nil || len(names) == 0 {
		return err
	}
	if p.provisioner == nil {
		return ErrNoProvisioner
	}
	for i := len(names) - 1; i >= 0; i-- {
		if err := p.provisioner.Destroy(ctx, names[i]); err != nil {
			return fmt.Errorf("destroy guest %s: %w", names[i], err)
		}
	}
	return p.store.Remove(ctx, KeyGuests)
}
