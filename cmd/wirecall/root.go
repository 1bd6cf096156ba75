package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "wirecall",
		Short:         "Call session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default from WIRECALL_CONFIG_DEFAULT_PATH or ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (console or json)")

	cmd.AddCommand(newServeCmd(opts), newTokenCmd(opts), newReplayCmd(opts))
	return cmd
}
