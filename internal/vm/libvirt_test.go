package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/poll"
	"github.com/javanstorm/perftune/internal/testutil"
)

type fakeBuilder struct {
	builds []string
}

func (b *fakeBuilder) Build(ctx context.Context, desc ImageDescriptor, pubKey, setupScript string) error {
	b.builds = append(b.builds, setupScript)
	return nil
}

func testLibvirt(t *testing.T, sess *testutil.ScriptedSession, builder Builder) (*Libvirt, *testutil.FakeHost) {
	t.Helper()
	provider, err := distro.Get(distro.Fedora)
	if err != nil {
		t.Fatal(err)
	}
	fsys, _ := testutil.MemFS()
	guest := testutil.NewFakeHost("guest", testutil.NewScriptedSession())
	cfg := LibvirtConfig{
		ImageDir: "/var/lib/perftune/images",
		Distro:   provider,
		Arch:     distro.ArchAMD64,
		PubKey:   "ssh-ed25519 AAAA perftune@perftune",
		Poll:     poll.Policy{Interval: time.Millisecond, MaxInterval: time.Millisecond},
		Log:      logr.Discard(),
	}
	l := NewLibvirt(sess, fsys, cfg, builder, func(name, addr string) (machine.Host, error) {
		if addr != "192.168.122.10" {
			t.Errorf("guest address = %q", addr)
		}
		return guest, nil
	})
	return l, guest
}

func TestLibvirtGuestNames(t *testing.T) {
	l, _ := testLibvirt(t, testutil.NewScriptedSession(), &fakeBuilder{})

	a, b := l.GuestName(0), l.GuestName(1)
	if a == b {
		t.Errorf("guest names collide: %q", a)
	}
	if !strings.HasPrefix(a, "perftune-0-") {
		t.Errorf("GuestName(0) = %q", a)
	}
	if got := l.DiskPath(a); got != "/var/lib/perftune/images/"+a+".qcow2" {
		t.Errorf("DiskPath() = %q", got)
	}
}

func TestLibvirtEnsureImage(t *testing.T) {
	ctx := context.Background()
	builder := &fakeBuilder{}
	l, _ := testLibvirt(t, testutil.NewScriptedSession(), builder)
	desc := l.ImageDescriptor()

	image, err := l.EnsureImage(ctx, "foo")
	if err != nil {
		t.Fatalf("EnsureImage() error = %v", err)
	}
	if image != "/var/lib/perftune/images/fedora-40-amd64.qcow2" {
		t.Errorf("EnsureImage() = %q", image)
	}
	if len(builder.builds) != 1 {
		t.Fatalf("builds = %d, want 1 for a missing image", len(builder.builds))
	}

	// Simulate a finished build, then ask again.
	if err := l.fs.WriteFile(ctx, desc.ImagePath, ""); err != nil {
		t.Fatal(err)
	}
	if err := RecordProvenance(ctx, l.fs, desc, l.cfg.PubKey, "foo"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.EnsureImage(ctx, "foo"); err != nil {
		t.Fatal(err)
	}
	if len(builder.builds) != 1 {
		t.Errorf("fresh image was rebuilt")
	}

	if _, err := l.EnsureImage(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if len(builder.builds) != 2 {
		t.Errorf("image built with a setup script should be rebuilt without one")
	}
}

func TestLibvirtStart(t *testing.T) {
	ctx := context.Background()
	sess := testutil.NewScriptedSession()
	sess.OnSequence("domifaddr",
		testutil.Response{Status: 1},
		testutil.Response{Output: ""},
		testutil.Response{Output: " vnet0      52:54:00:6b:3c:58    ipv4         192.168.122.10/24"},
	)
	l, guest := testLibvirt(t, sess, &fakeBuilder{})
	guest.FailSessions(2)

	host, err := l.Start(ctx, "perftune-0-abc", "/images/base.qcow2")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if host != guest {
		t.Error("Start() should return the guest host")
	}
	if got := sess.CallsContaining("qemu-img create -f qcow2 -F qcow2 -b /images/base.qcow2"); len(got) != 1 {
		t.Errorf("qemu-img calls = %v", got)
	}
	installs := sess.CallsContaining("virt-install")
	if len(installs) != 1 || !strings.Contains(installs[0], "--os-variant fedora40") || !strings.Contains(installs[0], "--import") {
		t.Errorf("virt-install calls = %v", installs)
	}
	if got := len(sess.CallsContaining("domifaddr")); got != 3 {
		t.Errorf("domifaddr polled %d times, want 3", got)
	}
}

func TestLibvirtStartFailure(t *testing.T) {
	sess := testutil.NewScriptedSession()
	sess.On("virt-install", testutil.Response{Status: 1, Output: "ERROR    Guest name 'x' is already in use."})
	l, _ := testLibvirt(t, sess, &fakeBuilder{})

	_, err := l.Start(context.Background(), "x", "/images/base.qcow2")
	var cmdErr *machine.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Start() error = %v, want *machine.CommandError", err)
	}
}

func TestLibvirtDestroy(t *testing.T) {
	ctx := context.Background()

	t.Run("running", func(t *testing.T) {
		sess := testutil.NewScriptedSession()
		l, _ := testLibvirt(t, sess, &fakeBuilder{})
		if err := l.Destroy(ctx, "perftune-0-abc"); err != nil {
			t.Fatalf("Destroy() error = %v", err)
		}
		if len(sess.CallsContaining("virsh destroy perftune-0-abc")) != 1 ||
			len(sess.CallsContaining("virsh undefine perftune-0-abc")) != 1 {
			t.Errorf("calls = %v", sess.Calls())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		sess := testutil.NewScriptedSession()
		sess.On("dominfo", testutil.Response{Status: 1})
		l, _ := testLibvirt(t, sess, &fakeBuilder{})
		if err := l.Destroy(ctx, "gone"); err != nil {
			t.Fatalf("Destroy() error = %v", err)
		}
		if len(sess.CallsContaining("undefine")) != 0 {
			t.Error("undefine should not run for an unknown domain")
		}
	})
}

func TestParseDomIfAddr(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"empty", "", ""},
		{"ipv4", " vnet0  52:54:00:6b:3c:58  ipv4  192.168.122.10/24", "192.168.122.10"},
		{"ipv6 first", " vnet0  52:54:00:6b:3c:58  ipv6  fe80::1/64\n vnet0  52:54:00:6b:3c:58  ipv4  10.0.0.5/8", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDomIfAddr(tt.out); got != tt.want {
				t.Errorf("ParseDomIfAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLibvirtAttach(t *testing.T) {
	ctx := context.Background()
	sess := testutil.NewScriptedSession()
	l, guest := testLibvirt(t, sess, &fakeBuilder{})

	if _, err := l.Attach(ctx, "perftune-0-abc"); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Attach() without address error = %v, want ErrNoAddress", err)
	}

	sess.On("domifaddr", testutil.Response{Output: " vnet0  52:54:00:6b:3c:58  ipv4  192.168.122.10/24"})
	host, err := l.Attach(ctx, "perftune-0-abc")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if host != guest {
		t.Error("Attach() should return the guest host")
	}
}
