package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
	}{
		{"default level", "", "", zerolog.InfoLevel},
		{"debug level", "debug", "", zerolog.DebugLevel},
		{"info level", "info", "json", zerolog.InfoLevel},
		{"warn level", "warn", "console", zerolog.WarnLevel},
		{"error level", "error", "", zerolog.ErrorLevel},
		{"case insensitive", "DEBUG", "CONSOLE", zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup, err := Init("", tt.level, tt.format)
			if err != nil {
				t.Fatalf("Init() failed: %v", err)
			}
			defer cleanup()

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("expected level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestInitWithFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "probe.log")

	cleanup, err := Init(logPath, "info", "json")
	if err != nil {
		t.Fatalf("Init() with file failed: %v", err)
	}
	Get().Info().Str("node", "access_1_1").Msg("test message")
	cleanup()

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(b), `"node":"access_1_1"`) {
		t.Fatalf("expected structured field in log file, got %q", string(b))
	}
}

func TestGet(t *testing.T) {
	if Get() == nil {
		t.Error("Get() returned nil logger")
	}
	// usable before Init
	Get().Debug().Msg("test")
}
