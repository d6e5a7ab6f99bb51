package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/javanstorm/perftune/internal/logging"
	"github.com/javanstorm/perftune/internal/profile"
	"github.com/javanstorm/perftune/internal/timing"
)

func addVariantFlag(cmd *cobra.Command, variant *string, def profile.Variant) {
	cmd.Flags().StringVarP(variant, "variant", "p", string(def), fmt.Sprintf("Profile variant %v", profile.Variants()))
}

// report prints or logs the phase timings of a run.
func (a *app) report(cmd *cobra.Command, timer *timing.Timer) {
	if a.timing {
		timer.Report(cmd.ErrOrStderr())
		return
	}
	timer.Log(a.log.V(logging.DEBUG))
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		variant     string
		setupScript string
		wait        bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a tuning profile",
		Long: `Apply a tuning profile to the host.

Every change is recorded under the storage root on the host before it is
made, so 'perftune revert' can undo a partial apply.

Variants:
  Localhost       records the apply only
  TunedAdm        switches the tuned profile
  DefaultLibvirt  starts untuned guests
  TunedLibvirt    tunes the host for virtualization (needs a reboot),
                  then starts tuned guests

A TunedLibvirt apply stops after the boot configuration is written. Reboot
the host and run apply again, or pass --wait to poll until the host is back
and continue automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := profile.ParseVariant(variant)
			if err != nil {
				return err
			}
			script, err := readSetupScript(setupScript)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			timer := timing.New("Apply")
			defer a.report(cmd, timer)

			p, err := a.openProfile(ctx, v)
			if err != nil {
				return err
			}
			defer p.Close()
			timer.Mark("connect")

			var res profile.Result
			if err := timer.Time("apply", func() error {
				res, err = p.Apply(ctx, script)
				return err
			}); err != nil {
				return err
			}

			if res.RebootRequired() && wait {
				fmt.Fprintf(cmd.OutOrStdout(), "Reboot %s to continue; waiting for it to come back.\n", p.Host().Name())
				if err := timer.Time("wait-reboot", func() error {
					_, err := profile.WaitPersistentSetup(ctx, p, a.pollPolicy())
					return err
				}); err != nil {
					return err
				}
				if err := timer.Time("resume", func() error {
					res, err = p.Apply(ctx, script)
					return err
				}); err != nil {
					return err
				}
			}

			printResult(cmd.OutOrStdout(), p, res)
			return nil
		},
	}
	addVariantFlag(cmd, &variant, profile.TunedAdm)
	cmd.Flags().StringVar(&setupScript, "setup-script", "", "Local script run while building guest images")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the host to reboot and finish the apply")
	return cmd
}

func printResult(w io.Writer, p profile.Profile, res profile.Result) {
	switch res.Outcome {
	case profile.PersistentPendingReboot:
		fmt.Fprintf(w, "%s written on %s; reboot it and run apply again.\n", p.Variant(), p.Host().Name())
	case profile.Provisioned:
		fmt.Fprintf(w, "%s applied on %s with %d guest(s):\n", p.Variant(), p.Host().Name(), len(res.Guests))
		for _, g := range res.Guests {
			fmt.Fprintf(w, "  %-28s %s (%s)\n", g.Name, g.Host.Addr(), g.Profile.Variant())
		}
	default:
		fmt.Fprintf(w, "%s applied on %s.\n", p.Variant(), p.Host().Name())
	}
}

func newRevertCmd(a *app) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Revert an applied tuning profile",
		Long: `Undo every change recorded by apply, destroy the guests it started and
clear the storage root. Reverting a profile that is not applied does
nothing. The variant must match the one that was applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := profile.ParseVariant(variant)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			timer := timing.New("Revert")
			defer a.report(cmd, timer)

			p, err := a.openProfile(ctx, v)
			if err != nil {
				return err
			}
			defer p.Close()
			timer.Mark("connect")

			if err := timer.Time("revert", func() error { return p.Revert(ctx) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reverted on %s.\n", v, p.Host().Name())
			return nil
		},
	}
	addVariantFlag(cmd, &variant, profile.TunedAdm)
	return cmd
}

func newWaitRebootCmd(a *app) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "wait-reboot",
		Short: "Wait until a rebooted host finished its persistent setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := profile.ParseVariant(variant)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := a.openProfile(ctx, v)
			if err != nil {
				return err
			}
			defer p.Close()

			status, err := profile.WaitPersistentSetup(ctx, p, a.pollPolicy())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Persistent setup on %s: %s\n", p.Host().Name(), status)
			return nil
		},
	}
	addVariantFlag(cmd, &variant, profile.TunedLibvirt)
	return cmd
}
