// Copyright 2025 James Ross
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	configPath string
	rdbAddr    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "osmoctl",
	Short:   "osmoctl drives the OSMO control plane's job queue directly",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	rootCmd.PersistentFlags().StringVar(&rdbAddr, "redis", "", "Redis address override (defaults to the config file's value)")
}
