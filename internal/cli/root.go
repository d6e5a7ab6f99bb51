// Package cli provides the command-line interface for perftune.
package cli

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/javanstorm/perftune/internal/config"
	"github.com/javanstorm/perftune/internal/logging"
)

// app is the state shared by all commands of one invocation.
type app struct {
	configFile string
	timing     bool

	cfg   *config.Config
	paths *config.Paths
	log   logr.Logger
}

// NewRootCmd builds the perftune command tree.
func NewRootCmd() *cobra.Command {
	a := &app{log: logr.Discard()}

	rootCmd := &cobra.Command{
		Use:   "perftune",
		Short: "perftune - apply and revert benchmark tuning profiles",
		Long: `perftune applies system tuning profiles to a benchmark host and to the
guests it provisions, records every change on the target, and reverts
them exactly.

Profiles that change the boot configuration need a reboot of the host;
run apply again (or pass --wait) once the host is back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for commands that don't need it
			switch cmd.Name() {
			case "version", "completion", "help":
				return nil
			}
			return a.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: config.yaml in the config dir)")
	flags.BoolVar(&a.timing, "timing", false, "Print a timing report of the run phases")
	flags.String("host", "", "Host to tune; localhost tunes this machine")
	flags.String("storage-root", "", "Directory on the target recording applied changes")
	flags.String("ssh-user", "", "SSH user for the host")
	flags.Int("ssh-port", 0, "SSH port of the host")
	flags.String("ssh-key-path", "", "Private key for the host (default: the perftune key)")
	flags.String("ssh-known-hosts", "", "known_hosts file to verify the host key against")
	flags.String("guest-distro", "", "Distribution guests are built from")
	flags.Int("guest-count", 0, "Number of guests the libvirt profiles start")
	flags.String("image-dir", "", "Directory on the host holding guest images")
	flags.String("log-level", "", "Log level: info, debug or trace")

	rootCmd.AddCommand(
		newApplyCmd(a),
		newRevertCmd(a),
		newInfoCmd(a),
		newWaitRebootCmd(a),
		newImageCheckCmd(a),
		newKeygenCmd(a),
		newStatusCmd(a),
		newConfigCmd(a),
		newVariantsCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads and validates the configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	loader := &config.Loader{ConfigFile: a.configFile, Flags: cmd.Flags()}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), config.FormatValidationErrors(errs))
		if config.HasFatal(errs) {
			return fmt.Errorf("invalid configuration")
		}
	}

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("failed to determine paths: %w", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	log, err := logging.New(level)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.paths = paths
	a.log = log
	if used := loader.ConfigFileUsed(); used != "" {
		log.V(logging.DEBUG).Info("Loaded config", "file", used)
	}
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}
