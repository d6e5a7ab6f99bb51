package vm

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/go-logr/logr"

	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/machine"
)

// VirtBuilder builds base images with virt-builder on the host behind its
// session.
type VirtBuilder struct {
	sess   machine.Session
	fs     machine.FS
	distro distro.Provider
	arch   distro.Arch
	log    logr.Logger
}

// NewVirtBuilder creates a builder for guests of the given distro.
func NewVirtBuilder(sess machine.Session, fsys machine.FS, provider distro.Provider, arch distro.Arch, log logr.Logger) *VirtBuilder {
	if arch == "" {
		arch = distro.CurrentArch()
	}
	return &VirtBuilder{sess: sess, fs: fsys, distro: provider, arch: arch, log: log}
}

// Command returns the virt-builder invocation for desc. scriptPath is the
// uploaded setup script, or "" for none.
func (b *VirtBuilder) Command(desc ImageDescriptor, pubKey, scriptPath string) (string, error) {
	template, err := b.distro.Template(b.arch)
	if err != nil {
		return "", err
	}
	args := []string{
		"virt-builder", template,
		"--output", desc.ImagePath,
		"--format", "qcow2",
		"--arch", b.arch.BuilderArch(),
		"--root-password", "random",
		"--ssh-inject", "root:string:" + strings.TrimSuffix(pubKey, "\n"),
		"--selinux-relabel",
	}
	if pkgs := b.distro.Packages(); len(pkgs) > 0 {
		args = append(args, "--install", strings.Join(pkgs, ","))
	}
	for _, c := range b.distro.FirstbootCommands() {
		args = append(args, "--firstboot-command", c)
	}
	if scriptPath != "" {
		args = append(args, "--run", scriptPath)
	}
	return machine.Quote(args...), nil
}

// Build removes any previous image, runs virt-builder and records the
// provenance of the new image. A failed build leaves no records, so the
// image stays stale.
func (b *VirtBuilder) Build(ctx context.Context, desc ImageDescriptor, pubKey, setupScript string) error {
	if pubKey == "" {
		return ErrNoPublicKey
	}
	if err := RemoveImage(ctx, b.fs, desc); err != nil {
		return err
	}
	if err := b.fs.MkdirAll(ctx, path.Dir(desc.ImagePath)); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	scriptPath := ""
	if setupScript != "" {
		scriptPath = desc.ImagePath + ".setup.sh"
		if err := b.fs.WriteFile(ctx, scriptPath, setupScript); err != nil {
			return fmt.Errorf("upload setup script: %w", err)
		}
		defer b.fs.Remove(ctx, scriptPath)
	}

	command, err := b.Command(desc, pubKey, scriptPath)
	if err != nil {
		return err
	}
	b.log.Info("Running virt-builder", "distro", b.distro.ID(), "image", desc.ImagePath)
	if _, err := machine.Check(ctx, b.sess, command); err != nil {
		return fmt.Errorf("virt-builder: %w", err)
	}
	return RecordProvenance(ctx, b.fs, desc, pubKey, setupScript)
}
