package vm

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/javanstorm/perftune/internal/testutil"
)

func TestParseOSFamily(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"fedora", "NAME=\"Fedora Linux\"\nID=fedora\nVERSION_ID=40\n", "fedora"},
		{"rocky", "ID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n", "fedora"},
		{"ubuntu", "ID=ubuntu\nID_LIKE=debian\n", "debian"},
		{"mint", "ID=linuxmint\nID_LIKE=\"ubuntu debian\"\n", "debian"},
		{"arch", "ID=arch\n", "arch"},
		{"empty", "", "linux"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseOSFamily(tt.content); got != tt.want {
				t.Errorf("parseOSFamily() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectOSFamily(t *testing.T) {
	ctx := context.Background()
	fsys, mem := testutil.MemFS()

	if got, err := DetectOSFamily(ctx, fsys); err != nil || got != "linux" {
		t.Errorf("DetectOSFamily() without os-release = %q, %v", got, err)
	}
	testutil.WriteFile(t, mem, "/etc/os-release", "ID=\"centos\"\n")
	if got, err := DetectOSFamily(ctx, fsys); err != nil || got != "fedora" {
		t.Errorf("DetectOSFamily() = %q, %v", got, err)
	}
}

func TestMissingDependencies(t *testing.T) {
	ctx := context.Background()
	sess := testutil.NewScriptedSession()
	sess.On("command -v virt-builder", testutil.Response{Status: 1})
	sess.On("command -v grubby", testutil.Response{Status: 1})

	missing, err := MissingDependencies(ctx, sess, append(LibvirtDeps, TuningDeps...))
	if err != nil {
		t.Fatalf("MissingDependencies() error = %v", err)
	}
	var names []string
	for _, dep := range missing {
		names = append(names, dep.Name)
	}
	if diff := cmp.Diff([]string{"virt-builder", "grubby"}, names); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}

	out := FormatMissing(missing, "debian")
	if !strings.Contains(out, "install guestfs-tools") {
		t.Errorf("FormatMissing() should name the package:\n%s", out)
	}
	if strings.Contains(out, "install grubby") {
		t.Errorf("grubby has no Debian package:\n%s", out)
	}
	if FormatMissing(nil, "fedora") != "" {
		t.Error("FormatMissing(nil) should be empty")
	}

	sess.Close()
	if _, err := MissingDependencies(ctx, sess, TuningDeps); err == nil {
		t.Error("MissingDependencies() should fail on a closed session")
	}
}
