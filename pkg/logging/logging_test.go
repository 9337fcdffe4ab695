package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestLogModeFilters verifies that messages below the mode are dropped
func TestLogModeFilters(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogMode(WarningMode)
	defer SetLogMode(InfoMode)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warningf("warning %d", 3)
	Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "WARNING warning 3") || !strings.Contains(out, "ERROR error 4") {
		t.Errorf("Expected warning and error lines, got %q", out)
	}
}

// TestTimeLogAppendsElapsed checks the elapsed time suffix
func TestTimeLogAppendsElapsed(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogMode(DebugMode)
	defer SetLogMode(InfoMode)

	NewTimeLog().Infof("tile %d done", 7)
	out := buf.String()
	if !strings.Contains(out, "tile 7 done: ") {
		t.Errorf("Expected elapsed suffix, got %q", out)
	}
}

// TestParseMode covers the accepted level names
func TestParseMode(t *testing.T) {
	cases := map[string]ModeFlag{
		"":         InfoMode,
		"debug":    DebugMode,
		"warn":     WarningMode,
		"critical": CriticalMode,
		"silent":   SilentMode,
	}
	for name, want := range cases {
		got, err := ParseMode(name)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): expected %d, got %d (%v)", name, want, got, err)
		}
	}
	if _, err := ParseMode("loud"); err == nil {
		t.Errorf("Expected error for unknown level")
	}
}

// TestSetLoggerWritesFile verifies the rotating file logger
func TestSetLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jp2tiles.log")
	cfg := &LogConfig{Logfile: path, MaxSize: 1, MaxAge: 1}
	cfg.SetLogger()
	Infof("hello %s", "file")
	Shutdown()
	defer SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "INFO hello file") {
		t.Errorf("Expected log line in file, got %q", string(data))
	}
}
