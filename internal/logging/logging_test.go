package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(DefaultConfig(), &buf, false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer closer.Close()

	logger.Info().Str("component", "sync").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["message"] != "hello" || entry["component"] != "sync" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestNew_ConsoleOnTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(DefaultConfig(), &buf, true)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info().Msg("hello")

	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected console output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("missing message in %q", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "WARN"
	logger, _, err := newLogger(cfg, &buf, false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn entry missing")
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "countsync.log")
	cfg := DefaultConfig()
	cfg.File = path
	cfg.Format = "none"

	logger, closer, err := newLogger(cfg, &bytes.Buffer{}, false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "loud"}},
		{"bad format", Config{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := newLogger(tt.cfg, &bytes.Buffer{}, false); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel(""); err != nil || l != zerolog.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", l, err)
	}
	if l, err := ParseLevel("Debug"); err != nil || l != zerolog.DebugLevel {
		t.Errorf("ParseLevel(Debug) = %v, %v", l, err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error")
	}
}
