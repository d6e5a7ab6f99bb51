package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/logging"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

// ValidateConfig checks a loaded configuration.
// Returns a list of validation errors/warnings.
func ValidateConfig(cfg *Config) []ValidationError {
	var errors []ValidationError
	fatal := func(field, format string, args ...any) {
		errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Fatal: true})
	}

	for field, p := range map[string]string{
		"storage_root":  cfg.StorageRoot,
		"image_dir":     cfg.ImageDir,
		"rc_local_path": cfg.RCLocalPath,
	} {
		if !path.IsAbs(p) {
			fatal(field, "must be an absolute path on the target, got %q", p)
		}
	}
	if cfg.StorageRoot == "/" {
		fatal("storage_root", "must not be the root directory")
	}

	if cfg.SSHPort < 1 || cfg.SSHPort > 65535 {
		fatal("ssh_port", "%d is not a valid port", cfg.SSHPort)
	}
	if !cfg.IsLocal() && cfg.SSHUser == "" {
		fatal("ssh_user", "is required for a remote host")
	}

	if p, err := distro.Lookup(cfg.GuestDistro); err != nil {
		fatal("guest_distro", "%v", err)
	} else if !p.SupportsArch(distro.Arch(cfg.GuestArch)) {
		fatal("guest_arch", "%s has no %s image", p.Name(), cfg.GuestArch)
	}
	if cfg.GuestCount < 1 {
		fatal("guest_count", "must be at least 1, got %d", cfg.GuestCount)
	}
	if cfg.GuestCPUs < 1 {
		fatal("guest_cpus", "must be at least 1, got %d", cfg.GuestCPUs)
	}
	if cfg.GuestMemoryMB < 512 {
		errors = append(errors, ValidationError{
			Field:   "guest_memory_mb",
			Message: fmt.Sprintf("%d MB is likely too little for a guest to boot", cfg.GuestMemoryMB),
		})
	}

	for _, arg := range cfg.HostGrubArgs {
		if arg == "" || strings.ContainsAny(arg, " \t\n") {
			fatal("host_grub_args", "%q is not a single kernel argument", arg)
		}
	}

	if cfg.PollInterval <= 0 {
		fatal("poll_interval", "must be positive, got %s", cfg.PollInterval)
	}
	if cfg.PollMaxInterval < cfg.PollInterval {
		fatal("poll_max_interval", "%s is shorter than poll_interval %s", cfg.PollMaxInterval, cfg.PollInterval)
	}
	if cfg.PollTimeout < 0 {
		fatal("poll_timeout", "must not be negative, got %s", cfg.PollTimeout)
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		fatal("log_level", "%v", err)
	}
	return errors
}

// HasFatal reports whether any error prevents running.
func HasFatal(errors []ValidationError) bool {
	for _, e := range errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration problems:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
