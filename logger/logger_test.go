package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/firasghr/GoClearance/logger"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, logger.LevelWarn)
	l.Debug("debug line")
	l.Info("info line")
	l.Warnf("warn %d", 1)
	l.Errorf("error %d", 2)

	out := buf.String()
	for _, unwanted := range []string{"debug line", "info line"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output contains %q at warn level:\n%s", unwanted, out)
		}
	}
	for _, wanted := range []string{"WARN  ", "warn 1", "ERROR ", "error 2"} {
		if !strings.Contains(out, wanted) {
			t.Errorf("output missing %q:\n%s", wanted, out)
		}
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, logger.LevelError)
	l.Debug("hidden")
	l.SetLevel(logger.LevelDebug)
	l.Debugf("shown %s", "now")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message logged before SetLevel")
	}
	if !strings.Contains(buf.String(), "shown now") {
		t.Errorf("debug message missing after SetLevel: %q", buf.String())
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *logger.Logger
	l.Info("ignored")
	l.Errorf("ignored %d", 1)
	l.SetLevel(logger.LevelDebug)
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want logger.Level
	}{
		{"debug", logger.LevelDebug},
		{"INFO", logger.LevelInfo},
		{"", logger.LevelInfo},
		{"warning", logger.LevelWarn},
		{" error ", logger.LevelError},
	}
	for _, c := range cases {
		got, err := logger.ParseLevel(c.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := logger.ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
