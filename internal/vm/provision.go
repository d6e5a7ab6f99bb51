// Package vm provisions the guests a profile tunes: base images checked for
// provenance, built with virt-builder and started under libvirt.
package vm

import (
	"context"
	"errors"

	"github.com/javanstorm/perftune/internal/machine"
)

// Provisioning errors
var (
	ErrNoAddress   = errors.New("vm: guest reported no IPv4 address")
	ErrNoPublicKey = errors.New("vm: guest public key is required")
)

// Provisioner creates and destroys guests on one hypervisor host.
type Provisioner interface {
	// EnsureImage returns a base image matching setupScript, rebuilding it
	// when ImageUpToDate reports it stale.
	EnsureImage(ctx context.Context, setupScript string) (string, error)

	// GuestName returns the domain name of the guest with index i.
	GuestName(i int) string

	// DiskPath returns the overlay disk of the named guest.
	DiskPath(name string) string

	// Start creates the guest on top of baseImage and returns a host
	// reachable over SSH.
	Start(ctx context.Context, name, baseImage string) (machine.Host, error)

	// Attach returns a host for a guest started earlier, possibly by
	// another process.
	Attach(ctx context.Context, name string) (machine.Host, error)

	// Destroy stops and undefines the guest. Unknown guests are ignored.
	Destroy(ctx context.Context, name string) error
}

// Builder creates a base image and its provenance records.
type Builder interface {
	Build(ctx context.Context, desc ImageDescriptor, pubKey, setupScript string) error
}

// GuestHostFunc returns a host for the guest reachable at addr.
type GuestHostFunc func(name, addr string) (machine.Host, error)
