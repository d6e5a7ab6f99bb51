package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/profile"
	"github.com/javanstorm/perftune/internal/vm"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied profile and the host's tooling",
		Long: `Display the profile recorded on the host, the progress of a persistent
apply, and the host tools the profiles need that are missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			host, err := a.host()
			if err != nil {
				return err
			}
			sess, err := host.Session(ctx)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", host.Name(), err)
			}
			defer sess.Close()
			fsys := machine.NewSessionFS(sess)

			// Any variant reads the store; Localhost needs no provisioner.
			w := cmd.OutOrStdout()
			p, err := profile.Open(ctx, profile.Localhost, host, profile.Options{StorageRoot: a.cfg.StorageRoot, Log: a.log})
			if err != nil {
				return err
			}
			defer p.Close()
			applied, err := p.Store().Get(ctx, profile.KeySetProfile, "none")
			if err != nil {
				return err
			}
			persistent, err := p.CheckPersistentSetup(ctx)
			if err != nil {
				return err
			}
			guests, err := p.Store().Lines(ctx, profile.KeyGuests)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "Host:        %s (%s)\n", host.Name(), host.Addr())
			fmt.Fprintf(w, "Storage:     %s\n", a.cfg.StorageRoot)
			fmt.Fprintf(w, "Applied:     %s\n", applied)
			fmt.Fprintf(w, "Persistent:  %s\n", persistent)
			fmt.Fprintf(w, "Guests:      %d\n", len(guests))
			for _, g := range guests {
				fmt.Fprintf(w, "  %s\n", g)
			}

			family, err := vm.DetectOSFamily(ctx, fsys)
			if err != nil {
				return err
			}
			missing, err := vm.MissingDependencies(ctx, sess, append(append([]vm.Dependency{}, vm.TuningDeps...), vm.LibvirtDeps...))
			if err != nil {
				return err
			}
			fmt.Fprintln(w)
			if len(missing) == 0 {
				fmt.Fprintln(w, "All host tools present.")
				return nil
			}
			fmt.Fprintf(w, "Missing host tools (%s):\n%s", family, vm.FormatMissing(missing, family))
			return nil
		},
	}
}
