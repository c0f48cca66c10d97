package cli

import (
	"errors"
	"testing"
)

func TestConfigError_Message(t *testing.T) {
	err := NewConfigError("server.listenAddress", "missing required field")

	want := "config error in server.listenAddress: missing required field"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Field != "server.listenAddress" {
		t.Errorf("Field = %q", err.Field)
	}
}

func TestCommandError_WrapsCause(t *testing.T) {
	cause := errors.New("config file not found")
	err := NewCommandError("validate", cause)

	want := "command validate failed: config file not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is must reach the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want the original cause", err.Unwrap())
	}
}
