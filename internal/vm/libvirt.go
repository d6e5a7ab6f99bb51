package vm

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/poll"
)

const (
	// DefaultCPUs is the vCPU count of a guest.
	DefaultCPUs = 2

	// DefaultMemoryMB is the memory size of a guest.
	DefaultMemoryMB = 2048

	// DefaultNetwork is the libvirt network guests attach to.
	DefaultNetwork = "default"
)

// LibvirtConfig configures guests started by Libvirt.
type LibvirtConfig struct {
	ImageDir string
	Distro   distro.Provider
	Arch     distro.Arch
	CPUs     int
	MemoryMB int
	Network  string
	PubKey   string
	Poll     poll.Policy
	Log      logr.Logger
}

// Libvirt provisions guests with virsh, virt-install and qemu-img on the
// host behind its session.
type Libvirt struct {
	sess      machine.Session
	fs        machine.FS
	cfg       LibvirtConfig
	builder   Builder
	guestHost GuestHostFunc
	id        string
}

// NewLibvirt creates a provisioner. Guest names carry a random suffix so
// concurrent runs on one host do not collide.
func NewLibvirt(sess machine.Session, fsys machine.FS, cfg LibvirtConfig, builder Builder, guestHost GuestHostFunc) *Libvirt {
	if cfg.CPUs <= 0 {
		cfg.CPUs = DefaultCPUs
	}
	if cfg.MemoryMB <= 0 {
		cfg.MemoryMB = DefaultMemoryMB
	}
	if cfg.Network == "" {
		cfg.Network = DefaultNetwork
	}
	if cfg.Arch == "" {
		cfg.Arch = distro.CurrentArch()
	}
	if cfg.Log.GetSink() == nil {
		cfg.Log = logr.Discard()
	}
	return &Libvirt{
		sess:      sess,
		fs:        fsys,
		cfg:       cfg,
		builder:   builder,
		guestHost: guestHost,
		id:        uuid.NewString()[:8],
	}
}

// ImageDescriptor returns the descriptor of the base image.
func (l *Libvirt) ImageDescriptor() ImageDescriptor {
	return NewImageDescriptor(path.Join(l.cfg.ImageDir, l.cfg.Distro.ImageName(l.cfg.Arch)))
}

// EnsureImage reuses the base image only when its provenance matches.
func (l *Libvirt) EnsureImage(ctx context.Context, setupScript string) (string, error) {
	if l.cfg.PubKey == "" {
		return "", ErrNoPublicKey
	}
	desc := l.ImageDescriptor()
	reason, err := ImageUpToDate(ctx, l.fs, desc, l.cfg.PubKey, setupScript)
	if err != nil {
		return "", err
	}
	if reason == "" {
		l.cfg.Log.V(logging.DEBUG).Info("Reusing base image", "image", desc.ImagePath)
		return desc.ImagePath, nil
	}

	l.cfg.Log.Info("Building base image", "image", desc.ImagePath, "reason", reason)
	if err := l.builder.Build(ctx, desc, l.cfg.PubKey, setupScript); err != nil {
		return "", fmt.Errorf("build %s: %w", path.Base(desc.ImagePath), err)
	}
	return desc.ImagePath, nil
}

// GuestName returns "perftune-<i>-<id>".
func (l *Libvirt) GuestName(i int) string {
	return fmt.Sprintf("perftune-%d-%s", i, l.id)
}

// DiskPath returns the overlay disk of the named guest.
func (l *Libvirt) DiskPath(name string) string {
	return path.Join(l.cfg.ImageDir, name+".qcow2")
}

// Start creates an overlay disk, imports it as a new domain and waits until
// the guest accepts SSH sessions.
func (l *Libvirt) Start(ctx context.Context, name, baseImage string) (machine.Host, error) {
	disk := l.DiskPath(name)
	create := machine.Quote("qemu-img", "create", "-f", "qcow2", "-F", "qcow2", "-b", baseImage, disk)
	if _, err := machine.Check(ctx, l.sess, create); err != nil {
		return nil, fmt.Errorf("create overlay disk: %w", err)
	}

	install := machine.Quote("virt-install",
		"--name", name,
		"--memory", strconv.Itoa(l.cfg.MemoryMB),
		"--vcpus", strconv.Itoa(l.cfg.CPUs),
		"--arch", l.cfg.Arch.BuilderArch(),
		"--disk", "path="+disk+",format=qcow2",
		"--import",
		"--os-variant", l.cfg.Distro.OSVariant(),
		"--network", "network="+l.cfg.Network,
		"--graphics", "none",
		"--noautoconsole",
	)
	if _, err := machine.Check(ctx, l.sess, install); err != nil {
		return nil, fmt.Errorf("define guest %s: %w", name, err)
	}
	l.cfg.Log.Info("Started guest", "name", name)

	var addr string
	attempts, err := poll.Until(ctx, l.cfg.Poll, func(ctx context.Context) (bool, error) {
		a, err := l.address(ctx, name)
		if err != nil {
			return false, err
		}
		addr = a
		return addr != "", nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for %s address: %w", name, err)
	}
	l.cfg.Log.V(logging.DEBUG).Info("Guest address", "name", name, "addr", addr, "attempts", attempts)

	host, err := l.guestHost(name, addr)
	if err != nil {
		return nil, err
	}
	if _, err := poll.Until(ctx, l.cfg.Poll, func(ctx context.Context) (bool, error) {
		sess, err := host.Session(ctx)
		if err != nil {
			l.cfg.Log.V(logging.DEBUG).Info("Guest not reachable yet", "name", name, "error", err.Error())
			return false, nil
		}
		sess.Close()
		return true, nil
	}); err != nil {
		return nil, fmt.Errorf("wait for %s ssh: %w", name, err)
	}
	return host, nil
}

// Attach looks up the address of a running guest.
func (l *Libvirt) Attach(ctx context.Context, name string) (machine.Host, error) {
	addr, err := l.address(ctx, name)
	if err != nil {
		return nil, err
	}
	if addr == "" {
		return nil, fmt.Errorf("attach %s: %w", name, ErrNoAddress)
	}
	return l.guestHost(name, addr)
}

// address returns the first IPv4 address libvirt reports for the domain,
// or "" while it has none.
func (l *Libvirt) address(ctx context.Context, name string) (string, error) {
	status, out, err := l.sess.RunCapture(ctx, machine.Quote("virsh", "-q", "domifaddr", name))
	if err != nil {
		return "", err
	}
	if status != 0 {
		return "", nil
	}
	return ParseDomIfAddr(out), nil
}

// ParseDomIfAddr extracts the first IPv4 address from `virsh -q domifaddr`.
func ParseDomIfAddr(out string) string {
	for _, line := range machine.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[2] != "ipv4" {
			continue
		}
		addr, _, _ := strings.Cut(fields[3], "/")
		return addr
	}
	return ""
}

// Destroy stops and undefines the domain.
func (l *Libvirt) Destroy(ctx context.Context, name string) error {
	status, err := l.sess.Run(ctx, machine.Quote("virsh", "-q", "dominfo", name))
	if err != nil {
		return err
	}
	if status != 0 {
		l.cfg.Log.V(logging.DEBUG).Info("Guest already gone", "name", name)
		return nil
	}
	// A shut off domain fails destroy; undefine still has to run.
	if _, err := l.sess.Run(ctx, machine.Quote("virsh", "destroy", name)); err != nil {
		return err
	}
	if err := machine.RunChecked(ctx, l.sess, machine.Quote("virsh", "undefine", name)); err != nil {
		return fmt.Errorf("undefine %s: %w", name, err)
	}
	l.cfg.Log.Info("Destroyed guest", "name", name)
	return nil
}
