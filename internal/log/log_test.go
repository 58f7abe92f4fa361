package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLogLevelSet(t *testing.T) {
	var ll LogLevel
	if err := ll.Set("warn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ll != WARN {
		t.Errorf("expected warn, got %s", ll)
	}
	if err := ll.Set("loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestStrToLogLevel(t *testing.T) {
	tests := map[LogLevel]zerolog.Level{
		DEBUG:    zerolog.DebugLevel,
		INFO:     zerolog.InfoLevel,
		WARN:     zerolog.WarnLevel,
		ERROR:    zerolog.ErrorLevel,
		DISABLED: zerolog.Disabled,
		TRACE:    zerolog.TraceLevel,
	}
	for in, want := range tests {
		got, err := strToLogLevel(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("%s: expected %s, got %s", in, want, got)
		}
	}
	if _, err := strToLogLevel("verbose"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestInitWithLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pductl.log")
	if err := InitWithLogLevel(INFO, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		Close()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}()

	log.Debug().Msg("hidden")
	log.Info().Msg("outlet 3 turned on")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(b), "outlet 3 turned on") {
		t.Errorf("expected info message in log file, got %q", b)
	}
	if strings.Contains(string(b), "hidden") {
		t.Errorf("debug message should be filtered, got %q", b)
	}
}
