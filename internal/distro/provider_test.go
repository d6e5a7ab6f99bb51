package distro

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestProviderTemplates(t *testing.T) {
	for _, p := range Providers() {
		id := p.ID()
		for _, arch := range p.SupportedArchs() {
			t.Run(fmt.Sprintf("%s/%s", id, arch), func(t *testing.T) {
				template, err := p.Template(arch)
				if err != nil {
					t.Fatalf("Template(%q) failed: %v", arch, err)
				}
				if template == "" {
					t.Error("Template should not be empty")
				}
				if p.OSVariant() == "" {
					t.Error("OSVariant should not be empty")
				}
				name := p.ImageName(arch)
				if !strings.HasSuffix(name, ".qcow2") || !strings.Contains(name, string(arch)) {
					t.Errorf("ImageName(%q) = %q", arch, name)
				}
			})
		}
	}
}

func TestProviderUnsupportedArch(t *testing.T) {
	p, err := Get(Ubuntu)
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Template(ArchARM64)
	var archErr *ErrUnsupportedArch
	if !errors.As(err, &archErr) {
		t.Fatalf("Template(arm64) error = %v, want *ErrUnsupportedArch", err)
	}
	if archErr.Distro != Ubuntu || archErr.Arch != ArchARM64 {
		t.Errorf("ErrUnsupportedArch = %+v", archErr)
	}
}

func TestProviderGuestSetup(t *testing.T) {
	tests := []struct {
		id        ID
		firstboot bool
	}{
		{Fedora, false},
		{CentOSStream, false},
		{Ubuntu, true},
		{Debian, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			p, err := Get(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if got := len(p.FirstbootCommands()) > 0; got != tt.firstboot {
				t.Errorf("FirstbootCommands() present = %v, want %v", got, tt.firstboot)
			}
			hasTuned := false
			for _, pkg := range p.Packages() {
				if pkg == "tuned" {
					hasTuned = true
				}
			}
			if !hasTuned {
				t.Error("Packages() should include tuned")
			}
		})
	}
}

func TestBuilderArch(t *testing.T) {
	tests := []struct {
		arch Arch
		want string
	}{
		{ArchAMD64, "x86_64"},
		{ArchARM64, "aarch64"},
		{Arch("riscv64"), "riscv64"},
	}
	for _, tt := range tests {
		if got := tt.arch.BuilderArch(); got != tt.want {
			t.Errorf("%q.BuilderArch() = %q, want %q", tt.arch, got, tt.want)
		}
	}
}
