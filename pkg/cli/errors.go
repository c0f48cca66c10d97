package cli

import "fmt"

// ConfigError reports an invalid or missing configuration field. Field is
// the dotted path into the config file (e.g. "server.listenAddress").
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError builds a ConfigError for a field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError wraps a failure from a bulwark subcommand, keeping the
// command name for the top-level error message.
type CommandError struct {
	Command string
	Err     error
}

// NewCommandError wraps err as a failure of the named command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *CommandError) Unwrap() error {
	return e.Err
}
