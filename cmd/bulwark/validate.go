package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"palisade-hq/bulwark/pkg/cli"
	"palisade-hq/bulwark/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check a configuration file without starting the server.

The validate command loads the configuration, applies defaults, and runs
the full validation pass, reporting every failing field rather than
stopping at the first.

Examples:
  # Validate the default config file
  bulwark validate

  # Validate a specific file
  bulwark validate --config /etc/bulwark/config.yaml

  # Machine-readable report
  bulwark validate --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// configReport is the validate command's output shape.
type configReport struct {
	Config    string          `json:"config"`
	Valid     bool            `json:"valid"`
	Errors    []reportError   `json:"errors,omitempty"`
	Upstreams []string        `json:"upstreams,omitempty"`
	Features  map[string]bool `json:"features,omitempty"`
}

type reportError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func validateConfig(cmd *cobra.Command, args []string) error {
	report := configReport{Config: cfgFile}

	cfg, err := config.LoadConfig(cfgFile)
	switch {
	case err == nil:
		report.Valid = true
		for name := range cfg.Upstreams {
			report.Upstreams = append(report.Upstreams, name)
		}
		sort.Strings(report.Upstreams)
		report.Features = map[string]bool{
			"fallback": cfg.Fallback.Enabled,
			"metrics":  cfg.Telemetry.Metrics.Enabled,
		}
	default:
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			// Unreadable or unparseable file, not a field-level failure
			return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
		}
		for _, fe := range verr.Errors {
			report.Errors = append(report.Errors, reportError{Field: fe.Field, Message: fe.Message})
		}
	}

	if cli.OutputFormat(validateFlags.format) == cli.FormatJSON {
		formatter := cli.NewFormatter(cli.FormatJSON)
		if err := formatter.FormatTo(os.Stdout, report); err != nil {
			return cli.NewCommandError("validate", err)
		}
	} else {
		printReport(&report)
	}

	if !report.Valid {
		return cli.NewCommandError("validate",
			fmt.Errorf("%d validation errors in %s", len(report.Errors), cfgFile))
	}
	return nil
}

func printReport(report *configReport) {
	if report.Valid {
		fmt.Printf("✓ Configuration valid: %s\n", report.Config)
		if len(report.Upstreams) > 0 {
			fmt.Printf("  Upstreams: %d configured\n", len(report.Upstreams))
			for _, name := range report.Upstreams {
				fmt.Printf("    - %s\n", name)
			}
		}
		fmt.Printf("  Fallback cache: %s\n", enabledWord(report.Features["fallback"]))
		fmt.Printf("  Metrics: %s\n", enabledWord(report.Features["metrics"]))
		return
	}

	fmt.Printf("✗ Configuration invalid: %s\n", report.Config)
	for _, e := range report.Errors {
		fmt.Printf("  - %s: %s\n", e.Field, e.Message)
	}
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
