// Package distro provides distribution-specific configuration for guest images.
package distro

import (
	"fmt"
	"runtime"
)

// ID identifies a Linux distribution.
type ID string

const (
	Fedora       ID = "fedora"
	CentOSStream ID = "centos-stream"
	Ubuntu       ID = "ubuntu"
	Debian       ID = "debian"
)

// Arch represents a CPU architecture.
type Arch string

const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
)

// CurrentArch returns the current system architecture.
func CurrentArch() Arch {
	switch runtime.GOARCH {
	case "amd64":
		return ArchAMD64
	case "arm64":
		return ArchARM64
	default:
		return ""
	}
}

// BuilderArch returns the architecture name used by virt-builder and libvirt.
func (a Arch) BuilderArch() string {
	switch a {
	case ArchAMD64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	default:
		return string(a)
	}
}

// Provider defines the interface for distribution-specific configuration.
type Provider interface {
	// ID returns the unique identifier for this distribution.
	ID() ID

	// Name returns the human-readable name.
	Name() string

	// Version returns the distribution version.
	Version() string

	// SupportedArchs returns the architectures this distro supports.
	SupportedArchs() []Arch

	// SupportsArch checks if the given architecture is supported.
	SupportsArch(arch Arch) bool

	// Template returns the virt-builder template for arch.
	Template(arch Arch) (string, error)

	// OSVariant returns the libosinfo short id passed to virt-install.
	OSVariant() string

	// Packages lists packages installed into the image at build time.
	Packages() []string

	// FirstbootCommands run once on the first guest boot.
	FirstbootCommands() []string

	// ImageName returns the base image file name for arch.
	ImageName(arch Arch) string
}

// BaseProvider implements common Provider functionality.
type BaseProvider struct {
	id        ID
	name      string
	version   string
	archs     []Arch
	template  string
	osVariant string
}

// ID returns the distribution identifier.
func (p *BaseProvider) ID() ID {
	return p.id
}

// Name returns the human-readable name.
func (p *BaseProvider) Name() string {
	return p.name
}

// Version returns the distribution version.
func (p *BaseProvider) Version() string {
	return p.version
}

// SupportedArchs returns the supported architectures.
func (p *BaseProvider) SupportedArchs() []Arch {
	return p.archs
}

// SupportsArch checks if the given architecture is supported.
func (p *BaseProvider) SupportsArch(arch Arch) bool {
	for _, a := range p.archs {
		if a == arch {
			return true
		}
	}
	return false
}

// Template returns the virt-builder template.
func (p *BaseProvider) Template(arch Arch) (string, error) {
	if !p.SupportsArch(arch) {
		return "", &ErrUnsupportedArch{Distro: p.id, Arch: arch}
	}
	return p.template, nil
}

// OSVariant returns the libosinfo short id.
func (p *BaseProvider) OSVariant() string {
	return p.osVariant
}

// Packages returns the tuning packages every guest needs.
func (p *BaseProvider) Packages() []string {
	return []string{"tuned"}
}

// FirstbootCommands returns nothing by default.
func (p *BaseProvider) FirstbootCommands() []string {
	return nil
}

// ImageName returns "{distro}-{version}-{arch}.qcow2".
func (p *BaseProvider) ImageName(arch Arch) string {
	return fmt.Sprintf("%s-%s-%s.qcow2", p.id, p.version, arch)
}

// ErrUnsupportedArch is returned when an architecture is not supported.
type ErrUnsupportedArch struct {
	Distro ID
	Arch   Arch
}

func (e *ErrUnsupportedArch) Error() string {
	return fmt.Sprintf("architecture %s not supported by %s", e.Arch, e.Distro)
}
