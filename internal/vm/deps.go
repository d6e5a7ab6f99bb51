package vm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/javanstorm/perftune/internal/machine"
)

// Dependency represents a required external tool on a host.
type Dependency struct {
	Name        string            // Tool name (e.g., "virt-builder")
	Command     string            // Command to check (e.g., "virt-builder")
	Packages    map[string]string // OS family -> package name mapping
	Description string            // Human-readable description
}

// Package returns the package providing d on osFamily, or "".
func (d Dependency) Package(osFamily string) string {
	return d.Packages[osFamily]
}

// LibvirtDeps are the tools the libvirt provisioner runs on the host.
var LibvirtDeps = []Dependency{
	{
		Name:        "virsh",
		Command:     "virsh",
		Description: "Query, stop and undefine guests",
		Packages:    map[string]string{"fedora": "libvirt-client", "debian": "libvirt-clients"},
	},
	{
		Name:        "virt-install",
		Command:     "virt-install",
		Description: "Define and start guests",
		Packages:    map[string]string{"fedora": "virt-install", "debian": "virtinst"},
	},
	{
		Name:        "virt-builder",
		Command:     "virt-builder",
		Description: "Build guest base images",
		Packages:    map[string]string{"fedora": "guestfs-tools", "debian": "guestfs-tools"},
	},
	{
		Name:        "qemu-img",
		Command:     "qemu-img",
		Description: "Create guest overlay disks",
		Packages:    map[string]string{"fedora": "qemu-img", "debian": "qemu-utils"},
	},
}

// TuningDeps are the tools the tuned profiles run on the host.
var TuningDeps = []Dependency{
	{
		Name:        "tuned-adm",
		Command:     "tuned-adm",
		Description: "Switch tuned profiles",
		Packages:    map[string]string{"fedora": "tuned", "debian": "tuned"},
	},
	{
		Name:        "grubby",
		Command:     "grubby",
		Description: "Change kernel boot arguments",
		Packages:    map[string]string{"fedora": "grubby"},
	},
}

// DetectOSFamily reads /etc/os-release on the host and returns "fedora" for
// the Red Hat family, "debian" for the Debian family, or the raw ID.
func DetectOSFamily(ctx context.Context, fsys machine.FS) (string, error) {
	content, err := fsys.ReadFile(ctx, "/etc/os-release")
	if errors.Is(err, fs.ErrNotExist) {
		return "linux", nil
	}
	if err != nil {
		return "", fmt.Errorf("read os-release: %w", err)
	}
	return parseOSFamily(content), nil
}

func parseOSFamily(content string) string {
	fields := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		if key, value, ok := strings.Cut(line, "="); ok {
			fields[key] = strings.Trim(value, `"'`)
		}
	}
	for _, id := range append([]string{fields["ID"]}, strings.Fields(fields["ID_LIKE"])...) {
		switch id {
		case "fedora", "rhel", "centos", "rocky", "almalinux":
			return "fedora"
		case "debian", "ubuntu":
			return "debian"
		}
	}
	if fields["ID"] != "" {
		return fields["ID"]
	}
	return "linux"
}

// MissingDependencies returns the deps whose command is not on the host's PATH.
func MissingDependencies(ctx context.Context, sess machine.Session, deps []Dependency) ([]Dependency, error) {
	var missing []Dependency
	for _, dep := range deps {
		status, err := sess.Run(ctx, "command -v "+machine.Quote(dep.Command)+" >/dev/null")
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", dep.Name, err)
		}
		if status != 0 {
			missing = append(missing, dep)
		}
	}
	return missing, nil
}

// FormatMissing describes missing deps with the packages to install on
// osFamily.
func FormatMissing(missing []Dependency, osFamily string) string {
	if len(missing) == 0 {
		return ""
	}
	var b strings.Builder
	for _, dep := range missing {
		fmt.Fprintf(&b, "  %-14s %s", dep.Name, dep.Description)
		if pkg := dep.Package(osFamily); pkg != "" {
			fmt.Fprintf(&b, " (install %s)", pkg)
		}
		b.WriteString("\n")
	}
	return b.String()
}
