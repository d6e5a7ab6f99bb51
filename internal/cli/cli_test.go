package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/perftune/internal/config"
	"github.com/javanstorm/perftune/internal/profile"
)

// run executes perftune with args in an isolated home directory.
func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "perftune dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestVariants(t *testing.T) {
	out, err := run(t, t.TempDir(), "variants")
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	for _, v := range profile.Variants() {
		if !strings.Contains(out, string(v)) {
			t.Errorf("variants output is missing %s:\n%s", v, out)
		}
	}
	if !strings.Contains(out, "* fedora") {
		t.Errorf("default distro should be marked:\n%s", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, t.TempDir(), "variants", "--guest-count", "0")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestConfigFromFile(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "perftune.yaml")
	if err := os.WriteFile(file, []byte("host: hv1.lab\nguest_count: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, home, "config", "--config", file, "--guest-count", "3")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var got map[string]any
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("config output is not YAML: %v\n%s", err, out)
	}
	if got["host"] != "hv1.lab" || got["guest_count"] != 3 {
		t.Errorf("config = %v", got)
	}
	if len(got) != len(config.Keys()) {
		t.Errorf("config shows %d keys, want %d", len(got), len(config.Keys()))
	}
}

// Applies, inspects and reverts the Localhost profile on this machine.
func TestLocalhostLifecycle(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(t.TempDir(), "state")
	common := []string{"--variant", "localhost", "--storage-root", root}

	out, err := run(t, home, append([]string{"apply"}, common...)...)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(out, "Localhost applied on localhost") {
		t.Errorf("apply output = %q", out)
	}
	data, err := os.ReadFile(filepath.Join(root, "set_profile"))
	if err != nil || string(data) != "Localhost\n" {
		t.Errorf("set_profile = %q, %v", data, err)
	}

	if _, err := run(t, home, append([]string{"apply"}, common...)...); err == nil {
		t.Error("second apply should fail")
	}

	out, err = run(t, home, append([]string{"info", "-c", "general,params"}, common...)...)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var info map[string]string
	if err := yaml.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("info output is not YAML: %v\n%s", err, out)
	}
	if _, ok := info["params"]; !ok || len(info) != 2 {
		t.Errorf("info keys = %v", info)
	}
	if !strings.Contains(info["general"], "applied: Localhost") {
		t.Errorf("general = %q", info["general"])
	}

	out, err = run(t, home, "status", "--storage-root", root)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Applied:     Localhost", "Persistent:  not-required", "Guests:      0"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output is missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, home, append([]string{"revert"}, common...)...); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "set_profile")); !os.IsNotExist(err) {
		t.Errorf("set_profile should be gone after revert (err = %v)", err)
	}
}

func TestKeygenAndImageCheck(t *testing.T) {
	home := t.TempDir()
	if _, err := run(t, home, "image-check", "/nonexistent.qcow2"); err == nil {
		t.Error("image-check should fail before keygen")
	}

	out, err := run(t, home, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.Contains(out, "Key pair generated.") {
		t.Errorf("keygen output = %q", out)
	}
	pub, err := os.ReadFile(filepath.Join(home, ".perftune", "ssh", "perftune.pub"))
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := run(t, home, "keygen"); !strings.Contains(out, "already exists") {
		t.Errorf("second keygen output = %q", out)
	}

	image := filepath.Join(t.TempDir(), "fedora.qcow2")
	out, err = run(t, home, "image-check", image)
	if err != nil {
		t.Fatalf("image-check: %v", err)
	}
	if !strings.Contains(out, "stale, does not exist") {
		t.Errorf("image-check output = %q", out)
	}

	if err := os.WriteFile(image, []byte("qcow"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(image+".pubkey", pub, 0644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, home, "image-check", image)
	if err != nil {
		t.Fatalf("image-check: %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Errorf("image-check output = %q", out)
	}

	script := filepath.Join(t.TempDir(), "setup.sh")
	if err := os.WriteFile(script, []byte("dnf -y install fio\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, home, "image-check", image, "--setup-script", script, "--remove")
	if err != nil {
		t.Fatalf("image-check: %v", err)
	}
	if !strings.Contains(out, "stale, not created with setup script") || !strings.Contains(out, "removed") {
		t.Errorf("image-check output = %q", out)
	}
	if _, err := os.Stat(image); !os.IsNotExist(err) {
		t.Error("stale image should be removed")
	}
}

func TestFilterInfo(t *testing.T) {
	info := map[string]string{
		"general":        "g",
		"kernel":         "k",
		"params":         "p",
		"guest0_kernel":  "gk",
		"guest0_general": "gg",
	}
	got := filterInfo(info, []string{"kernel"})
	want := map[string]string{"kernel": "k", "guest0_kernel": "gk"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filterInfo() mismatch (-want +got):\n%s", diff)
	}
	if got := filterInfo(info, nil); len(got) != len(info) {
		t.Errorf("filterInfo(nil) dropped keys: %v", got)
	}
}

func TestWriteInfo(t *testing.T) {
	var buf bytes.Buffer
	info := map[string]string{
		"params":      "BOOT_IMAGE=/vmlinuz root=/dev/vda1",
		"mitigations": "/sys/devices/system/cpu/vulnerabilities/meltdown:Not affected\n/sys/devices/system/cpu/vulnerabilities/spectre_v1:Mitigation",
		"rpm":         "",
	}
	if err := writeInfo(&buf, info); err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(info, got); diff != "" {
		t.Errorf("writeInfo() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "mitigations: |") {
		t.Errorf("multi-line values should be literal blocks:\n%s", buf.String())
	}
}

func TestReadSetupScript(t *testing.T) {
	if got, err := readSetupScript(""); got != "" || err != nil {
		t.Errorf("readSetupScript(\"\") = %q, %v", got, err)
	}
	path := filepath.Join(t.TempDir(), "setup.sh")
	if err := os.WriteFile(path, []byte("echo hi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got, err := readSetupScript(path); got != "echo hi\n" || err != nil {
		t.Errorf("readSetupScript() = %q, %v", got, err)
	}
	if _, err := readSetupScript(path + ".missing"); err == nil {
		t.Error("readSetupScript() should fail for a missing file")
	}
}
