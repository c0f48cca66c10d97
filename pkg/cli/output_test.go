package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
)

func TestTextFormatter_AppendsNewline(t *testing.T) {
	f := &TextFormatter{}

	out, err := f.Format("configuration valid")
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(out) != "configuration valid\n" {
		t.Errorf("Format = %q, want trailing newline", string(out))
	}

	var buf bytes.Buffer
	if err := f.FormatTo(&buf, "configuration valid"); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	if buf.String() != "configuration valid\n" {
		t.Errorf("FormatTo = %q, want trailing newline", buf.String())
	}
}

func TestJSONFormatter_ProducesValidJSON(t *testing.T) {
	tests := []struct {
		name   string
		data   interface{}
		indent bool
	}{
		{"string", "ok", false},
		{"map indented", map[string]string{"upstream": "openai"}, true},
		{"report struct", struct {
			Valid     bool `json:"valid"`
			Upstreams int  `json:"upstreams"`
		}{Valid: true, Upstreams: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &JSONFormatter{Indent: tt.indent}
			out, err := f.Format(tt.data)
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			var decoded interface{}
			if err := json.Unmarshal(out, &decoded); err != nil {
				t.Errorf("Format produced invalid JSON: %v", err)
			}
		})
	}
}

func TestJSONFormatter_FormatTo(t *testing.T) {
	f := &JSONFormatter{Indent: true}
	var buf bytes.Buffer

	if err := f.FormatTo(&buf, map[string]string{"status": "valid"}); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("FormatTo produced invalid JSON: %v", err)
	}
	if decoded["status"] != "valid" {
		t.Errorf("round trip = %v", decoded)
	}
}

func TestNewFormatter_SelectsByFormat(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		want   string
	}{
		{"text", FormatText, "*cli.TextFormatter"},
		{"json", FormatJSON, "*cli.JSONFormatter"},
		{"unknown falls back to text", "yaml", "*cli.TextFormatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fmt.Sprintf("%T", NewFormatter(tt.format))
			if got != tt.want {
				t.Errorf("NewFormatter(%q) = %s, want %s", tt.format, got, tt.want)
			}
		})
	}
}
