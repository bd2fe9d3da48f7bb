package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	apiURL     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usagereporter",
	Short: "usagereporter - daily application usage reports delivered to a webhook",
	Long: `usagereporter tracks how long each application is used, and once a day at a
configured local time posts a summary since midnight to an incoming webhook.
The outcome of every attempt is recorded and can be inspected or retried.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/usagereporter/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Base URL of a running daemon (default derived from server.bind_address and server.api_port)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
