package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/javanstorm/perftune/internal/logging"
)

// Info categories
const (
	InfoGeneral     = "general"
	InfoKernel      = "kernel"
	InfoMitigations = "mitigations"
	InfoParams      = "params"
	InfoRPM         = "rpm"
	InfoPersistent  = "persistent"
)

var infoCommands = []struct {
	category string
	command  string
}{
	{InfoKernel, "uname -a"},
	{InfoMitigations, "grep . /sys/devices/system/cpu/vulnerabilities/* 2>/dev/null"},
	{InfoParams, "cat /proc/cmdline"},
}

func (p *profile) Info(ctx context.Context) (map[string]string, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	applied, err := p.store.Get(ctx, KeySetProfile, "")
	if err != nil {
		return nil, err
	}
	info := map[string]string{
		InfoGeneral: p.general(applied),
	}

	// Output is kept even on a non-zero status: grep exits 1 when the
	// kernel exposes no vulnerability files.
	for _, c := range infoCommands {
		_, out, err := p.sess.RunCapture(ctx, c.command)
		if err != nil {
			return nil, fmt.Errorf("gather %s info: %w", c.category, err)
		}
		info[c.category] = out
	}

	if status, err := p.sess.Run(ctx, "command -v rpm >/dev/null"); err == nil && status == 0 {
		if status, out, err := p.sess.RunCapture(ctx, "rpm -qa | sort"); err == nil && status == 0 {
			info[InfoRPM] = out
		}
	}

	persistent, err := p.persistentInfo(ctx)
	if err != nil {
		return nil, err
	}
	if persistent != "" {
		info[InfoPersistent] = persistent
	}

	if err := p.attachGuests(ctx); err != nil {
		return nil, err
	}
	for _, g := range p.guests {
		guestInfo, err := g.Profile.Info(ctx)
		if err != nil {
			p.log.V(logging.DEBUG).Info("Guest info unavailable", "guest", g.Name, "error", err.Error())
			continue
		}
		for category, value := range guestInfo {
			info[fmt.Sprintf("guest%d_%s", g.Index, category)] = value
		}
	}
	return info, nil
}

func (p *profile) general(applied string) string {
	if applied == "" {
		applied = "none"
	}
	lines := []string{
		"host: " + p.host.Name(),
		"addr: " + p.host.Addr(),
		"profile: " + string(p.variant),
		"applied: " + applied,
	}
	return strings.Join(lines, "\n")
}

// persistentInfo describes the persistent apply state, or "" when there was
// no persistent apply.
func (p *profile) persistentInfo(ctx context.Context) (string, error) {
	status, err := p.persistentStatus(ctx)
	if err != nil || status == NotRequired {
		return "", err
	}
	var lines []string
	for _, key := range []string{KeyPersistentProfileExpected, KeyPersistentSetupExpected, KeyPersistentSetupFinished, KeyGrubArgs, KeyTunedAdmProfile, KeyRCLocal} {
		value, ok, err := p.store.Lookup(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			lines = append(lines, key+": "+value)
		}
	}
	return strings.Join(append([]string{"state: " + status.String()}, lines...), "\n"), nil
}
