package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/perftune/internal/profile"
)

func newInfoCmd(a *app) *cobra.Command {
	var (
		variant    string
		categories []string
	)
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show information about the host and its guests",
		Long: `Gather read-only information about the host: kernel, CPU vulnerability
mitigations, boot parameters, installed packages and the state of a
persistent apply. Guests started by the profile are included with a
guest<N>_ prefix. Output is YAML.`,
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

			info, err := p.Info(ctx)
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), filterInfo(info, categories))
		},
	}
	addVariantFlag(cmd, &variant, profile.Localhost)
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "Only show these categories (e.g. kernel,params)")
	return cmd
}

// filterInfo keeps the requested categories, for the host and every guest.
func filterInfo(info map[string]string, categories []string) map[string]string {
	if len(categories) == 0 {
		return info
	}
	out := map[string]string{}
	for key, value := range info {
		for _, c := range categories {
			if key == c || strings.HasSuffix(key, "_"+c) && strings.HasPrefix(key, "guest") {
				out[key] = value
			}
		}
	}
	return out
}

// writeInfo renders info as a YAML mapping with literal blocks for
// multi-line values.
func writeInfo(w io.Writer, info map[string]string) error {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: info[k]}
		if strings.Contains(info[k], "\n") {
			value.Style = yaml.LiteralStyle
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, value)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode info: %w", err)
	}
	return enc.Close()
}
