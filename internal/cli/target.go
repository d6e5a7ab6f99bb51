package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/poll"
	"github.com/javanstorm/perftune/internal/profile"
	"github.com/javanstorm/perftune/internal/vm"
)

// guestUser is the account virt-builder injects the perftune key into.
const guestUser = "root"

func (a *app) keys() *machine.KeyManager {
	return machine.NewKeyManager(a.paths.DataDir)
}

// host returns the configured target machine.
func (a *app) host() (machine.Host, error) {
	if a.cfg.IsLocal() {
		return machine.NewLocalHost("localhost"), nil
	}
	keyPath := a.cfg.SSHKeyPath
	if keyPath == "" {
		var err error
		if keyPath, err = a.keys().PrivateKeyPath(); err != nil {
			return nil, err
		}
	}
	return machine.NewSSHHost(a.cfg.Host, machine.SSHConfig{
		Addr:           a.cfg.Host,
		Port:           a.cfg.SSHPort,
		User:           a.cfg.SSHUser,
		KeyPath:        keyPath,
		KnownHostsPath: a.cfg.SSHKnownHosts,
	}), nil
}

// guestHosts reaches guests with the perftune key. Guests on a remote host
// sit on its private libvirt network and are reached through the host.
func (a *app) guestHosts(host machine.Host, keyPath string) vm.GuestHostFunc {
	jump, _ := host.(*machine.SSHHost)
	return func(name, addr string) (machine.Host, error) {
		return machine.NewSSHHost(name, machine.SSHConfig{
			Addr:    addr,
			User:    guestUser,
			KeyPath: keyPath,
			Jump:    jump,
		}), nil
	}
}

func (a *app) pollPolicy() poll.Policy {
	return poll.Policy{
		Interval:    a.cfg.PollInterval,
		MaxInterval: a.cfg.PollMaxInterval,
		Timeout:     a.cfg.PollTimeout,
	}
}

// provisioner returns the libvirt provisioner factory for host. The perftune
// key pair is created on first use since it is baked into guest images.
func (a *app) provisioner(host machine.Host) (profile.ProvisionerFunc, error) {
	provider, err := distro.Lookup(a.cfg.GuestDistro)
	if err != nil {
		return nil, err
	}
	arch := distro.Arch(a.cfg.GuestArch)

	if err := a.paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create perftune directories: %w", err)
	}
	keyPath, _, err := a.keys().EnsureKeyPair()
	if err != nil {
		return nil, err
	}
	pubKey, err := a.keys().PublicKey()
	if err != nil {
		return nil, err
	}

	guestHosts := a.guestHosts(host, keyPath)
	log := a.log.WithName("vm")
	return func(sess machine.Session, fsys machine.FS) vm.Provisioner {
		builder := vm.NewVirtBuilder(sess, fsys, provider, arch, log)
		return vm.NewLibvirt(sess, fsys, vm.LibvirtConfig{
			ImageDir: a.cfg.ImageDir,
			Distro:   provider,
			Arch:     arch,
			CPUs:     a.cfg.GuestCPUs,
			MemoryMB: a.cfg.GuestMemoryMB,
			Network:  a.cfg.GuestNetwork,
			PubKey:   pubKey,
			Poll:     a.pollPolicy(),
			Log:      log,
		}, builder, guestHosts)
	}, nil
}

// options maps the configuration onto profile options.
func (a *app) options() profile.Options {
	return profile.Options{
		StorageRoot:       a.cfg.StorageRoot,
		Log:               a.log.WithName("profile"),
		TunedProfile:      a.cfg.TunedProfile,
		HostTunedProfile:  a.cfg.HostTunedProfile,
		GuestTunedProfile: a.cfg.GuestTunedProfile,
		GrubArgs:          a.cfg.HostGrubArgs,
		RCLocalPath:       a.cfg.RCLocalPath,
		GuestCount:        a.cfg.GuestCount,
	}
}

// openProfile connects to the host and opens variant on it.
func (a *app) openProfile(ctx context.Context, variant profile.Variant) (profile.Profile, error) {
	host, err := a.host()
	if err != nil {
		return nil, err
	}
	opts := a.options()
	if variant == profile.DefaultLibvirt || variant == profile.TunedLibvirt {
		if opts.Provisioner, err = a.provisioner(host); err != nil {
			return nil, err
		}
	}
	a.log.V(logging.DEBUG).Info("Opening profile", "variant", string(variant), "host", host.Name())
	return profile.Open(ctx, variant, host, opts)
}

// readSetupScript returns the content of the local file at path, or "" for
// an empty path.
func readSetupScript(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read setup script: %w", err)
	}
	return string(data), nil
}
