// Package main provides renderctl, a command line client that runs render
// jobs through the same pipeline as the HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/scene-assembler/internal/bootstrap"
	"github.com/maauso/scene-assembler/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "renderctl",
	Short:         "Run and maintain scene assembler renders",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newRenderCmd(), newSweepCmd(), newPresetsCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadDependencies loads and validates the environment configuration and
// wires the pipeline.
func loadDependencies() (*config.Config, *bootstrap.Dependencies, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	deps, err := bootstrap.NewDependencies(cfg, cfg.NewLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return cfg, deps, nil
}
