package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "qce-orch",
		Short: "Chat export orchestrator - batch exports and backup merges",
		Long: `qce-orch drives a chat export service in bulk. It submits one export task
per selected session, merges scheduled backups into a single archive,
and runs recurring exports from a schedule file.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
