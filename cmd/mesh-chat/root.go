package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mesh-chat",
	Short: "Terminal client for Mesh direct messages",
	Long: `mesh-chat opens a direct-message conversation with a Mesh user in the
terminal: history, live messages, replies, edits, reactions, threads and
voice notes.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default is ./mesh.yaml)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}
