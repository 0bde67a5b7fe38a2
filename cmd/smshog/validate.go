package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zauberware/smshog/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an SMSHog configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. Environment overrides are not applied.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  smshog validate -c smshog.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	persistence := "off"
	if cfg.Persistence.Enabled {
		persistence = fmt.Sprintf("%s (every %s)", cfg.Persistence.Path, cfg.Persistence.FlushInterval.Duration())
	}

	cors := "disabled"
	if len(cfg.CORSOrigins) > 0 {
		cors = strings.Join(cfg.CORSOrigins, ", ")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:         %d\n", cfg.Port)
	fmt.Fprintf(out, "  Log level:    %s\n", cfg.Level())
	fmt.Fprintf(out, "  Persistence:  %s\n", persistence)
	fmt.Fprintf(out, "  CORS origins: %s\n", cors)
	fmt.Fprintf(out, "  Metrics:      %t\n", cfg.Metrics.Enabled)

	return nil
}
