package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/perftune/internal/config"
	"github.com/javanstorm/perftune/internal/distro"
	"github.com/javanstorm/perftune/internal/profile"
	"github.com/javanstorm/perftune/internal/version"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: fmt.Sprintf(`Print the configuration after merging defaults, the config file,
%s_* environment variables and flags, in that order.`, config.EnvPrefix),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(configView(a.cfg))
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// configView keys the configuration like the config file.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"storage_root":        cfg.StorageRoot,
		"host":                cfg.Host,
		"ssh_user":            cfg.SSHUser,
		"ssh_port":            cfg.SSHPort,
		"ssh_key_path":        cfg.SSHKeyPath,
		"ssh_known_hosts":     cfg.SSHKnownHosts,
		"guest_distro":        cfg.GuestDistro,
		"guest_arch":          cfg.GuestArch,
		"guest_count":         cfg.GuestCount,
		"guest_cpus":          cfg.GuestCPUs,
		"guest_memory_mb":     cfg.GuestMemoryMB,
		"guest_network":       cfg.GuestNetwork,
		"image_dir":           cfg.ImageDir,
		"tuned_profile":       cfg.TunedProfile,
		"host_tuned_profile":  cfg.HostTunedProfile,
		"guest_tuned_profile": cfg.GuestTunedProfile,
		"host_grub_args":      cfg.HostGrubArgs,
		"rc_local_path":       cfg.RCLocalPath,
		"poll_interval":       cfg.PollInterval.String(),
		"poll_max_interval":   cfg.PollMaxInterval.String(),
		"poll_timeout":        cfg.PollTimeout.String(),
		"log_level":           cfg.LogLevel,
	}
}

func newVariantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List profile variants and guest distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Profile variants:")
			for _, v := range profile.Variants() {
				fmt.Fprintf(w, "  %s\n", v)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Guest distributions:")
			configured, _ := distro.ParseID(a.cfg.GuestDistro)
			for _, p := range distro.Providers() {
				marker := " "
				if p.ID() == configured {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %-14s %s %s %v\n", marker, p.ID(), p.Name(), p.Version(), p.SupportedArchs())
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the version, commit hash, and build date of perftune.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}
