package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerFormatsOutput(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		level      string
		assertions func(t *testing.T, output string)
	}{
		{
			name:   "console format renders message",
			format: "console",
			level:  "info",
			assertions: func(t *testing.T, output string) {
				if !strings.Contains(output, "hello") || strings.HasPrefix(output, "{") {
					t.Fatalf("expected console output, got %q", output)
				}
			},
		},
		{
			name:   "json format starts with brace",
			format: "json",
			level:  "debug",
			assertions: func(t *testing.T, output string) {
				if !strings.HasPrefix(strings.TrimSpace(output), "{") {
					t.Fatalf("expected json output to start with '{', got %q", output)
				}
				if !strings.Contains(output, `"service":"numledger"`) {
					t.Fatalf("expected service field, got %q", output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(Config{Format: tt.format, Level: tt.level, Service: "numledger"}, &buf)
			log.Info().Msg("hello")

			output := buf.String()
			if output == "" {
				t.Fatalf("expected log output, got empty string")
			}

			tt.assertions(t, output)
		})
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json", Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	log.Warn().Msg("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn output, got %q", buf.String())
	}
}
