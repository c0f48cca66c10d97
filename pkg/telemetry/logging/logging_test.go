package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"palisade-hq/bulwark/pkg/config"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("parsing log line %q: %v", buf.String(), err)
	}
	return m
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("hello", "upstream", "anthropic-primary")

	m := logLine(t, &buf)
	if m["msg"] != "hello" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["upstream"] != "anthropic-primary" {
		t.Errorf("upstream = %v", m["upstream"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record should be filtered at warn level: %q", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record should be emitted")
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSensitiveAttrsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("configured upstream", "apiKey", "sk-abcdef123456", "name", "primary")

	m := logLine(t, &buf)
	got, _ := m["apiKey"].(string)
	if strings.Contains(got, "abcdef") {
		t.Errorf("apiKey not redacted: %q", got)
	}
	if !strings.HasPrefix(got, "sk-a") || !strings.HasSuffix(got, "***") {
		t.Errorf("apiKey = %q, want 4-char prefix + ***", got)
	}
	if m["name"] != "primary" {
		t.Errorf("non-sensitive attr mangled: %v", m["name"])
	}
}

func TestContextFieldsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithUser(ctx, "alice")
	logger.InfoContext(ctx, "admitted")

	m := logLine(t, &buf)
	if m["request_id"] != "req-123" {
		t.Errorf("request_id = %v", m["request_id"])
	}
	if m["user"] != "alice" {
		t.Errorf("user = %v", m["user"])
	}
}

func TestContextFieldsAbsentWithoutValues(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.InfoContext(context.Background(), "plain")

	m := logLine(t, &buf)
	if _, ok := m["request_id"]; ok {
		t.Error("request_id should be absent without a context value")
	}
}

func TestRedactSecret(t *testing.T) {
	if got := RedactSecret("sk-verylongsecret"); got != "sk-v***" {
		t.Errorf("RedactSecret = %q", got)
	}
	if got := RedactSecret("abc"); got != "***" {
		t.Errorf("short secret should fully redact, got %q", got)
	}
}
