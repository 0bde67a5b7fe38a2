// Package main is the entry point for the smshog CLI.
//
// Usage:
//
//	smshog serve                           # Start the emulator on :3000
//	smshog serve -c smshog.yaml            # Start with a config file
//	smshog validate -c smshog.yaml         # Validate configuration
//	smshog send -p +15551234567 -m "Hi"    # Publish through the AWS SDK
//	smshog version                         # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "smshog",
	Short: "A local AWS SNS SMS emulator",
	Long: `SMSHog accepts AWS SNS Publish and SetSMSAttributes calls and keeps
the messages instead of delivering them.

Quick start:
  1. Run: smshog serve
  2. Point your SNS client at http://localhost:3000
  3. Inspect messages at http://localhost:3000/api/v1/sms

Environment:
  SMSHOG_PERSIST=true        keep messages in a snapshot file
  SMSHOG_PERSIST_PATH=path   snapshot file (default smshog-data.json)
  PORT=3000                  listen port`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this smshog binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "smshog %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
