package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "davrock",
	Short:   "CalDAV and CardDAV server",
	Long: `Davrock is a small CalDAV/CardDAV server for calendars,
to-do lists, journals and contacts.`,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: DAVROCK_LOGGING_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
