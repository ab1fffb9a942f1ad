package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luki/farmdash/internal/config"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "farmdash.log")

	l, closer, err := New(config.LoggingConfig{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cl := Component(l, "refresh")
	cl.Info().Int("readings", 3).Msg("refresh complete")
	closer.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(b)
	for _, want := range []string{`"component":"refresh"`, `"readings":3`, `"message":"refresh complete"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestNewBadLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farmdash.log")
	l, closer, err := New(config.LoggingConfig{Level: "chatty", Format: "console", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), "shown") {
		t.Errorf("unexpected log content: %q", b)
	}
}
