package logging

import (
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		in   string
		want bool
	}{
		"trace":        {"trace", true},
		"TRACE upper":  {"TRACE", true},
		"debug":        {"debug", true},
		"info":         {"info", true},
		"notice":       {"notice", true},
		"warn":         {"warn", true},
		"warning":      {"warning", true},
		"error":        {"error", true},
		"critical":     {"critical", true},
		"unknown":      {"bogus", false},
	}
	for name, c := range cases {
		_, err := ParseLevel(c.in)
		if c.want && err != nil {
			t.Errorf("%s: ParseLevel(%q) unexpected error: %v", name, c.in, err)
		}
		if !c.want && err == nil {
			t.Errorf("%s: ParseLevel(%q) expected an error", name, c.in)
		}
	}
}

func TestEarlyReturnsLogger(t *testing.T) {
	if Early() == nil {
		t.Fatalf("Early() returned nil")
	}
}

func TestSetupRequiresADestination(t *testing.T) {
	_, err := Setup(Config{}, "", "")
	if err == nil {
		t.Fatalf("expected an error when neither logfile nor stdout is configured")
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Config{LogToStdout: true}, "bogus-level", "")
	if err == nil {
		t.Fatalf("expected an error for an invalid log level")
	}
}

func TestSetupWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	logger, err := Setup(Config{}, "info", path)
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Info("hello")
}

func TestSetupRejectsUnknownLogFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	format := "xml"
	_, err := Setup(Config{LogFileFormat: &format}, "info", path)
	if err == nil {
		t.Fatalf("expected an error for an unknown log file format")
	}
}

func TestSetupJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	format := "json"
	logger, err := Setup(Config{LogFileFormat: &format}, "info", path)
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	logger.Info("hello")
}
