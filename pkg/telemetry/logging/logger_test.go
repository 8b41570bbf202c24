package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_Formats(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		level   string
		wantErr bool
	}{
		{name: "json format", format: "json", level: "info"},
		{name: "text format", format: "text", level: "debug"},
		{name: "empty defaults to json", format: "", level: ""},
		{name: "unknown format", format: "xml", level: "info", wantErr: true},
		{name: "unknown level", format: "json", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := Setup(Config{Level: tt.level, Format: tt.format, Writer: &buf})
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	logger.Info("task enqueued", "task_id", "t-1", "priority", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput: %s", err, buf.String())
	}
	if entry["msg"] != "task enqueued" {
		t.Errorf("expected msg %q, got %q", "task enqueued", entry["msg"])
	}
	if entry["task_id"] != "t-1" {
		t.Errorf("expected task_id %q, got %v", "t-1", entry["task_id"])
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got output: %s", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected warn output, got: %s", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Setup(Config{Level: "info", Format: "json", Writer: &buf}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	Component("queue").Info("worker started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["component"] != "queue" {
		t.Errorf("expected component %q, got %v", "queue", entry["component"])
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{name: "empty", secret: "", want: ""},
		{name: "short", secret: "abc", want: "***"},
		{name: "boundary eight chars", secret: "12345678", want: "***"},
		{name: "long key keeps prefix", secret: "sk-abcdef123456", want: "sk-a***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.secret); got != tt.want {
				t.Errorf("MaskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestParseLevel_CaseInsensitive(t *testing.T) {
	level, err := parseLevel("WARN")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if level != slog.LevelWarn {
		t.Errorf("expected LevelWarn, got %v", level)
	}
}
