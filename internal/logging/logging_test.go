package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWithOptions_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(&buf, "info", "json")
	log.Debug("hidden")
	log.Info("ingestion: completed", slog.String("video_id", "dQw4w9WgXcQ"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "ingestion: completed" || rec["video_id"] != "dQw4w9WgXcQ" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWithOptions_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithOptions(&buf, "debug", "text").Debug("qa: answered", slog.Int("segments", 3))

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "segments=3") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context must yield slog.Default")
	}

	log := NewWithOptions(&bytes.Buffer{}, "info", "json")
	if FromContext(WithLogger(context.Background(), log)) != log {
		t.Error("FromContext must return the stored logger")
	}
}
