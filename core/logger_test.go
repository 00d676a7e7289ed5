package core

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

// TestParseLogLevel verifies accepted level names
// Given: Level names in various spellings
// When: ParseLogLevel is called
// Then: Known names map to their level and unknown names fail
func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":   LevelDebug,
		"DEBUG":   LevelDebug,
		"":        LevelInfo,
		"info":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("ParseLogLevel(loud) error = nil, want error")
	}
}

// TestDefaultLogger_FiltersByLevel verifies the minimum level and line format
// Given: A DefaultLogger at warn level writing into a buffer
// When: Messages of every level are logged
// Then: Only warn and error are written, with their fields
func TestDefaultLogger_FiltersByLevel(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	}()
	logger := NewDefaultLoggerWithLevel(LevelWarn)

	// Act
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message", F("units", 3))
	logger.Error("error message", F("pool", "p"), F("worker", 1))

	// Assert
	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("output contains filtered messages: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn message {units: 3}") {
		t.Errorf("output missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message {pool: p, worker: 1}") {
		t.Errorf("output missing error line: %q", out)
	}
}
