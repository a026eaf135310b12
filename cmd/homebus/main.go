package main

import (
	"fmt"
	"os"

	"github.com/homebus/homebus/internal/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "homebus:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homebus",
		Short:         "Event distribution core for home automation bindings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the event bus, binding manager and diagnostics server",
		Example: "  homebus serve --config config.yaml\n  HOMEBUS_LOG_LEVEL=debug homebus serve",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml, .toml or .json); defaults only when empty")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("config requires a subcommand: example|check")
		},
	}
	exampleCmd := &cobra.Command{
		Use:   "example",
		Short: "Print an example configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.DumpExample(cmd.OutOrStdout())
		},
	}
	checkCmd := &cobra.Command{
		Use:     "check <file>",
		Short:   "Load and validate a configuration file",
		Example: "  homebus config check config.toml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, warn, err := config.Load(args[0])
			if warn != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", warn)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
	configCmd.AddCommand(exampleCmd, checkCmd)

	root.AddCommand(serveCmd, configCmd)
	return root
}
