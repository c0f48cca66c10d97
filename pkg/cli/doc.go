/*
Package cli provides command-line interface utilities for the bulwark
command.

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, report); err != nil {
		return err
	}

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown

Errors:

ConfigError and CommandError give command failures a consistent shape;
CommandError wraps its cause for errors.Is and errors.As.
*/
package cli
