package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maauso/scene-assembler/internal/captions"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List caption style presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFONT\tSIZE\tFORCE_STYLE")
			for _, p := range captions.Presets() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Name, p.FontName, p.FontSize, p.ForceStyle())
			}
			return tw.Flush()
		},
	}
}
