// Package profile applies and reverts tuning profiles on a host and on the
// guests it provisions.
//
// Every change is recorded in a kvstore.Store on the target before it is
// made, so Revert can undo a partial apply. The store layout is one file per
// key under the storage root:
//
//	set_profile                  variant that applied the profile
//	persistent_profile_expected  boot id at the time of a persistent apply
//	persistent_setup_expected    renamed by the boot hook on the next boot
//	persistent_setup_finished    present once the target rebooted
//	tuned_adm_profile            tuned profile active before apply
//	grub_args                    kernel arguments added by apply
//	rc_local                     prior boot script mode and layout, or "missing"
//	guests                       provisioned guest domains, one per line
//	paths_to_remove              paths deleted on revert, one per line
package profile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-logr/logr"

	"github.com/javanstorm/perftune/internal/kvstore"
	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/vm"
)

// Variant names a kind of profile. Its string form is recorded under
// set_profile.
type Variant string

const (
	// Localhost changes nothing; it only records that it was applied.
	Localhost Variant = "Localhost"

	// TunedAdm switches the tuned profile.
	TunedAdm Variant = "TunedAdm"

	// DefaultLibvirt provisions untuned guests.
	DefaultLibvirt Variant = "DefaultLibvirt"

	// TunedLibvirt tunes the host for virtualization, which needs a
	// reboot, then provisions tuned guests.
	TunedLibvirt Variant = "TunedLibvirt"
)

// Variants returns every known variant.
func Variants() []Variant {
	return []Variant{Localhost, TunedAdm, DefaultLibvirt, TunedLibvirt}
}

// ParseVariant returns the variant named s.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants() {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w %q, available: %v", ErrUnknownVariant, s, Variants())
}

func (v Variant) provisionsGuests() bool {
	return v == DefaultLibvirt || v == TunedLibvirt
}

// Store keys
const (
	KeySetProfile                = kvstore.LastKey
	KeyPersistentProfileExpected = "persistent_profile_expected"
	KeyPersistentSetupExpected   = "persistent_setup_expected"
	KeyPersistentSetupFinished   = "persistent_setup_finished"
	KeyTunedAdmProfile           = "tuned_adm_profile"
	KeyGrubArgs                  = "grub_args"
	KeyRCLocal                   = "rc_local"
	KeyGuests                    = "guests"
	KeyPathsToRemove             = "paths_to_remove"
)

// Defaults
const (
	DefaultStorageRoot       = "/var/lib/perftune"
	DefaultRCLocalPath       = "/etc/rc.d/rc.local"
	DefaultTunedProfile      = "throughput-performance"
	DefaultHostTunedProfile  = "virtual-host"
	DefaultGuestTunedProfile = "virtual-guest"
)

// Outcome tells how an apply took effect.
type Outcome int

const (
	// Transient changes are in effect now.
	Transient Outcome = iota

	// PersistentPendingReboot changes take effect after the target reboots;
	// call Apply again once it has.
	PersistentPendingReboot

	// Provisioned changes are in effect and guests were started.
	Provisioned
)

func (o Outcome) String() string {
	switch o {
	case Transient:
		return "transient"
	case PersistentPendingReboot:
		return "persistent, reboot required"
	case Provisioned:
		return "provisioned"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Guest is a provisioned guest and the profile applied inside it.
type Guest struct {
	// Index is the guest's position in the recorded guests; it names the
	// guest's store and its info keys.
	Index   int
	Name    string
	Host    machine.Host
	Profile Profile
}

// Result is the outcome of Apply. Guests is set only for Provisioned.
type Result struct {
	Outcome Outcome
	Guests  []Guest
}

// RebootRequired reports whether the target must reboot before the apply
// can complete.
func (r Result) RebootRequired() bool {
	return r.Outcome == PersistentPendingReboot
}

// Profile applies and reverts one variant on one host.
// A Profile is not safe for concurrent use.
type Profile interface {
	// Variant returns the profile kind.
	Variant() Variant

	// Host returns the tuned host.
	Host() machine.Host

	// Store returns the trail of recorded changes.
	Store() *kvstore.Store

	// Apply applies the profile. setupScript customizes guest images.
	Apply(ctx context.Context, setupScript string) (Result, error)

	// Revert undoes a recorded apply. Reverting an unapplied profile is a
	// no-op.
	Revert(ctx context.Context) error

	// Info gathers read-only information about the target.
	Info(ctx context.Context) (map[string]string, error)

	// CheckPersistentSetup checks once whether the boot hook of a
	// persistent apply has run.
	CheckPersistentSetup(ctx context.Context) (PersistentStatus, error)

	// RemoveOnRevert registers a path on the target for deletion on revert.
	RemoveOnRevert(ctx context.Context, p string) error

	// Close releases the session and the sessions of all guests.
	Close() error
}

// ProvisionerFunc creates the guest provisioner for a host.
type ProvisionerFunc func(sess machine.Session, fsys machine.FS) vm.Provisioner

// Options configures a profile.
type Options struct {
	// StorageRoot is the directory of the store on the target.
	StorageRoot string

	// FS overrides file access on the target. Guests inherit it.
	FS machine.FS

	Log logr.Logger

	// TunedProfile is the profile TunedAdm switches to.
	TunedProfile string

	// HostTunedProfile is the profile TunedLibvirt switches the host to.
	HostTunedProfile string

	// GuestTunedProfile is the profile applied inside TunedLibvirt guests.
	GuestTunedProfile string

	// GrubArgs are kernel arguments TunedLibvirt adds on the host.
	GrubArgs []string

	// RCLocalPath is the boot-time script on the host.
	RCLocalPath string

	// GuestCount is the number of guests to provision.
	GuestCount int

	// Provisioner is required by variants that provision guests.
	Provisioner ProvisionerFunc
}

func (o Options) withDefaults() Options {
	if o.StorageRoot == "" {
		o.StorageRoot = DefaultStorageRoot
	}
	if o.Log.GetSink() == nil {
		o.Log = logr.Discard()
	}
	if o.TunedProfile == "" {
		o.TunedProfile = DefaultTunedProfile
	}
	if o.HostTunedProfile == "" {
		o.HostTunedProfile = DefaultHostTunedProfile
	}
	if o.GuestTunedProfile == "" {
		o.GuestTunedProfile = DefaultGuestTunedProfile
	}
	if o.RCLocalPath == "" {
		o.RCLocalPath = DefaultRCLocalPath
	}
	if o.GuestCount <= 0 {
		o.GuestCount = 1
	}
	return o
}

type profile struct {
	variant     Variant
	host        machine.Host
	sess        *machine.ReconnectingSession
	fs          machine.FS
	store       *kvstore.Store
	opts        Options
	log         logr.Logger
	provisioner vm.Provisioner
	guests      []Guest
	closed      bool
}

// Open connects to host and returns the profile. The caller must Close it.
func Open(ctx context.Context, variant Variant, host machine.Host, opts Options) (Profile, error) {
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if variant.provisionsGuests() && opts.Provisioner == nil {
		return nil, ErrNoProvisioner
	}

	sess := machine.NewReconnectingSession(host)
	if err := sess.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", host.Name(), err)
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = machine.NewSessionFS(sess)
	}
	p := &profile{
		variant: variant,
		host:    host,
		sess:    sess,
		fs:      fsys,
		store:   kvstore.New(fsys, opts.StorageRoot),
		opts:    opts,
		log:     opts.Log.WithValues("host", host.Name(), "profile", string(variant)),
	}
	if opts.Provisioner != nil {
		p.provisioner = opts.Provisioner(sess, fsys)
	}
	return p, nil
}

func (p *profile) Variant() Variant {
	return p.variant
}

func (p *profile) Host() machine.Host {
	return p.host
}

func (p *profile) Store() *kvstore.Store {
	return p.store
}

// guestOptions returns the options of the profile inside guest i.
func (p *profile) guestOptions(i int) Options {
	name := fmt.Sprintf("guest%d", i)
	opts := Options{
		StorageRoot:  path.Join(p.opts.StorageRoot, name),
		FS:           p.opts.FS,
		Log:          p.opts.Log.WithName(name),
		TunedProfile: p.opts.GuestTunedProfile,
	}
	return opts
}

// guestVariant returns the variant applied inside guests.
func (p *profile) guestVariant() Variant {
	if p.variant == TunedLibvirt {
		return TunedAdm
	}
	return Localhost
}

func (p *profile) RemoveOnRevert(ctx context.Context, target string) error {
	if err := p.store.Append(ctx, KeyPathsToRemove, target); err != nil {
		return fmt.Errorf("register %s for removal: %w", target, err)
	}
	return nil
}

func (p *profile) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for _, g := range p.guests {
		if err := g.Profile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Name, err))
		}
	}
	p.guests = nil
	if err := p.sess.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close profile on %s: %w", p.host.Name(), err)
	}
	return nil
}

func (p *profile) checkOpen() error {
	if p.closed {
		return ErrClosed
	}
	return nil
}
