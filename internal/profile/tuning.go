package profile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/machine"
)

const (
	hookBegin = "# BEGIN perftune persistent setup"
	hookEnd   = "# END perftune persistent setup"

	shebang = "#!/bin/sh\n"

	// rcLocalMissing records that the boot script did not exist before apply.
	rcLocalMissing = "missing"
	// rcLocalEmpty follows the mode of a script that existed but was empty.
	rcLocalEmpty = "empty"
	// rcLocalUnterminated follows the mode of a script without a final newline.
	rcLocalUnterminated = "unterminated"
)

func (p *profile) bootID(ctx context.Context) (string, error) {
	out, err := machine.Check(ctx, p.sess, "cat /proc/sys/kernel/random/boot_id")
	if err != nil {
		return "", fmt.Errorf("read boot id: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// bootHook renames the expected marker on the next boot.
func (p *profile) bootHook() string {
	expected := machine.Quote(p.store.Path(KeyPersistentSetupExpected))
	finished := machine.Quote(p.store.Path(KeyPersistentSetupFinished))
	return fmt.Sprintf("%s\n[ -e %s ] && mv -f %s %s\n%s\n", hookBegin, expected, expected, finished, hookEnd)
}

// installBootHook appends the hook to the boot script, recording the prior
// state of the script first. The record holds the script mode and, when the
// hook needed a prefix to fit the script, the kind of prefix inserted.
func (p *profile) installBootHook(ctx context.Context) error {
	rc := p.opts.RCLocalPath
	status, out, err := p.sess.RunCapture(ctx, machine.Quote("stat", "-c", "%a", rc))
	if err != nil {
		return err
	}
	content, err := p.fs.ReadFile(ctx, rc)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", rc, err)
	}

	prior := rcLocalMissing
	prefix := shebang
	if status == 0 {
		prior = strings.TrimSpace(out)
		switch {
		case content == "":
			prior += " " + rcLocalEmpty
		case !strings.HasSuffix(content, "\n"):
			prior += " " + rcLocalUnterminated
			prefix = "\n"
		default:
			prefix = ""
		}
	}
	if strings.Contains(content, hookBegin) {
		prior, _, _ = strings.Cut(prior, " ")
	}
	if err := p.store.Set(ctx, KeyRCLocal, prior, false); err != nil {
		return err
	}

	if !strings.Contains(content, hookBegin) {
		if err := p.fs.AppendFile(ctx, rc, prefix+p.bootHook()); err != nil {
			return fmt.Errorf("install boot hook: %w", err)
		}
	}
	if err := machine.RunChecked(ctx, p.sess, machine.Quote("chmod", "0755", rc)); err != nil {
		return fmt.Errorf("make %s executable: %w", rc, err)
	}
	p.log.V(logging.DEBUG).Info("Installed boot hook", "path", rc, "prior", prior)
	return nil
}

// stripHook removes the hook block from a boot script, together with prefix
// when it directly precedes the block.
func stripHook(content, prefix string) string {
	start := strings.Index(content, hookBegin+"\n")
	if start < 0 {
		return content
	}
	stop := len(content)
	if i := strings.Index(content[start:], hookEnd); i >= 0 {
		stop = start + i + len(hookEnd)
		if stop < len(content) && content[stop] == '\n' {
			stop++
		}
	}
	head := content[:start]
	if prefix != "" && strings.HasSuffix(head, prefix) {
		head = strings.TrimSuffix(head, prefix)
	}
	return head + content[stop:]
}

func (p *profile) restoreBootHook(ctx context.Context) error {
	prior, ok, err := p.store.Lookup(ctx, KeyRCLocal)
	if err != nil || !ok {
		return err
	}
	rc := p.opts.RCLocalPath
	mode, layout, _ := strings.Cut(prior, " ")
	if mode == rcLocalMissing {
		if err := p.fs.Remove(ctx, rc); err != nil {
			return fmt.Errorf("remove %s: %w", rc, err)
		}
		return p.store.Remove(ctx, KeyRCLocal)
	}

	content, err := p.fs.ReadFile(ctx, rc)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", rc, err)
	}
	if err == nil {
		prefix := ""
		switch layout {
		case rcLocalEmpty:
			prefix = shebang
		case rcLocalUnterminated:
			prefix = "\n"
		}
		if err := p.fs.WriteFile(ctx, rc, stripHook(content, prefix)); err != nil {
			return fmt.Errorf("restore %s: %w", rc, err)
		}
		if mode != "" {
			if err := machine.RunChecked(ctx, p.sess, machine.Quote("chmod", mode, rc)); err != nil {
				return fmt.Errorf("restore %s mode: %w", rc, err)
			}
		}
	}
	return p.store.Remove(ctx, KeyRCLocal)
}

// parseTunedActive extracts the profile name from `tuned-adm active`.
// It returns "" when no profile is active.
func parseTunedActive(out string) string {
	for _, line := range machine.Lines(out) {
		if name, value, ok := strings.Cut(line, ":"); ok && strings.Contains(strings.ToLower(name), "profile") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func (p *profile) applyTuned(ctx context.Context, name string) error {
	out, err := machine.Check(ctx, p.sess, "tuned-adm active")
	if err != nil {
		return fmt.Errorf("query tuned profile: %w", err)
	}
	current := parseTunedActive(out)
	if current == name {
		p.log.V(logging.DEBUG).Info("Tuned profile already active", "tuned", name)
		return nil
	}
	if err := p.store.Set(ctx, KeyTunedAdmProfile, current, false); err != nil {
		return err
	}
	if err := machine.RunChecked(ctx, p.sess, machine.Quote("tuned-adm", "profile", name)); err != nil {
		return fmt.Errorf("switch tuned profile: %w", err)
	}
	p.log.Info("Switched tuned profile", "from", current, "to", name)
	return nil
}

func (p *profile) restoreTuned(ctx context.Context) error {
	prior, ok, err := p.store.Lookup(ctx, KeyTunedAdmProfile)
	if err != nil || !ok {
		return err
	}
	command := machine.Quote("tuned-adm", "profile", prior)
	if prior == "" {
		command = "tuned-adm off"
	}
	if err := machine.RunChecked(ctx, p.sess, command); err != nil {
		return fmt.Errorf("restore tuned profile: %w", err)
	}
	return p.store.Remove(ctx, KeyTunedAdmProfile)
}

// addBootArgs adds the arguments missing from the running kernel command line.
func (p *profile) addBootArgs(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmdline, err := machine.Check(ctx, p.sess, "cat /proc/cmdline")
	if err != nil {
		return fmt.Errorf("read kernel command line: %w", err)
	}
	present := map[string]bool{}
	for _, arg := range strings.Fields(cmdline) {
		present[arg] = true
	}
	var missing []string
	for _, arg := range args {
		if !present[arg] {
			missing = append(missing, arg)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	joined := strings.Join(missing, " ")
	if err := p.store.Set(ctx, KeyGrubArgs, joined, false); err != nil {
		return err
	}
	if err := machine.RunChecked(ctx, p.sess, machine.Quote("grubby", "--update-kernel=ALL", "--args="+joined)); err != nil {
		return fmt.Errorf("add boot arguments: %w", err)
	}
	p.log.Info("Added boot arguments", "args", joined)
	return nil
}

func (p *profile) removeBootArgs(ctx context.Context) error {
	args, ok, err := p.store.Lookup(ctx, KeyGrubArgs)
	if err != nil || !ok {
		return err
	}
	if args != "" {
		if err := machine.RunChecked(ctx, p.sess, machine.Quote("grubby", "--update-kernel=ALL", "--remove-args="+args)); err != nil {
			return fmt.Errorf("remove boot arguments: %w", err)
		}
	}
	return p.store.Remove(ctx, KeyGrubArgs)
}

func (p *profile) hasPersistentMarkers(ctx context.Context) (bool, error) {
	for _, key := range []string{KeyPersistentProfileExpected, KeyPersistentSetupExpected, KeyPersistentSetupFinished} {
		ok, err := p.store.Has(ctx, key)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
