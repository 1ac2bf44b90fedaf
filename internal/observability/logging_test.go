package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"silly", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"fatal", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := LogLevelFromString(tc.in); got != tc.want {
			t.Errorf("LogLevelFromString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoggerRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf, RedactSecrets: true})

	logger.Info(context.Background(), "auth configured",
		"token", "bearer abcdefghijklmnopqrstuvwxyz123456",
	)

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz123456") {
		t.Errorf("output should not contain the raw token: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("output should contain redaction marker: %s", out)
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf, RedactSecrets: true})

	logger.Info(context.Background(), "config",
		"settings", map[string]any{"password": "hunter2secret", "port": 18789},
	)

	out := buf.String()
	if strings.Contains(out, "hunter2secret") {
		t.Errorf("output should not contain the password: %s", out)
	}
	if !strings.Contains(out, "18789") {
		t.Errorf("non-sensitive values should pass through: %s", out)
	}
}

func TestLoggerNoRedactionWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf})

	logger.Info(context.Background(), "value", "data", "plain-string")
	if !strings.Contains(buf.String(), "plain-string") {
		t.Errorf("output should contain the value: %s", buf.String())
	}
}

func TestLoggerContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Output: &buf})

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithChannel(ctx, "discord")
	logger.Info(ctx, "dispatch")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["session_id"] != "sess-1" {
		t.Errorf("session_id = %v, want sess-1", record["session_id"])
	}
	if record["channel"] != "discord" {
		t.Errorf("channel = %v, want discord", record["channel"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info(context.Background(), "dropped")
	logger.Warn(context.Background(), "kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record should pass: %s", out)
	}
}
