package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove workspaces and archives older than a maximum age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, deps, err := loadDependencies()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.WorkspaceMaxAge
			}

			report, err := deps.Sweep(cmd.Context(), maxAge)
			for _, path := range report.Workspaces {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d directories removed\n", len(report.Workspaces))
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "remove directories not modified for this long (default WORKSPACE_MAX_AGE)")
	return cmd
}
