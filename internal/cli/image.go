package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/perftune/internal/machine"
	"github.com/javanstorm/perftune/internal/vm"
)

func newImageCheckCmd(a *app) *cobra.Command {
	var (
		setupScript string
		remove      bool
	)
	cmd := &cobra.Command{
		Use:   "image-check IMAGE",
		Short: "Check whether a guest image on the host can be reused",
		Long: `Check a base image on the host against the current perftune key and a
setup script. An image is stale when it is missing, was built for another
key, or was built with a different setup script (or with one when none is
given, and the other way round). Stale images are rebuilt by the libvirt
profiles; --remove deletes a stale image and its records right away.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readSetupScript(setupScript)
			if err != nil {
				return err
			}
			pubKey, err := a.keys().PublicKey()
			if err != nil {
				return err
			}

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

			desc := vm.NewImageDescriptor(args[0])
			reason, err := vm.ImageUpToDate(ctx, fsys, desc, pubKey, script)
			if err != nil {
				return err
			}
			if reason == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", desc.ImagePath)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: stale, %s\n", desc.ImagePath, reason)
			if remove && reason != vm.ReasonMissing {
				if err := vm.RemoveImage(ctx, fsys, desc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed\n", desc.ImagePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&setupScript, "setup-script", "", "Local setup script the image should have been built with")
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the image if it is stale")
	return cmd
}

func newKeygenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the SSH key injected into guest images",
		Long: `Generate the ed25519 key pair perftune injects into guest images and uses
to reach guests (and, unless ssh_key_path is set, the host). An existing
key pair is kept; images built for another key are rebuilt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.paths.EnsureDirectories(); err != nil {
				return fmt.Errorf("create perftune directories: %w", err)
			}
			keys := a.keys()
			existed := keys.KeyPairExists()
			privPath, pubPath, err := keys.EnsureKeyPair()
			if err != nil {
				return err
			}
			pubKey, err := keys.PublicKey()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if existed {
				fmt.Fprintln(w, "Key pair already exists.")
			} else {
				fmt.Fprintln(w, "Key pair generated.")
			}
			fmt.Fprintf(w, "  Private key: %s\n", privPath)
			fmt.Fprintf(w, "  Public key:  %s\n", pubPath)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "To tune a remote host with this key, add it to the host's authorized keys:")
			fmt.Fprintf(w, "  echo '%s' >> ~/.ssh/authorized_keys\n", pubKey)
			return nil
		},
	}
}
