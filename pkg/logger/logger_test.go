package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/arkforge/arkforge/pkg/logger"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("debug", &buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	out := buf.String()
	for _, want := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("warn", &buf)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug/info should be filtered at warn level, got:\n%s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn message missing from output:\n%s", out)
	}
}

func TestLoggerScope(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	scoped := log.WithScope("pyinstaller")
	scoped.Info("building")

	if !strings.Contains(buf.String(), "pyinstaller") {
		t.Errorf("scope prefix missing from output:\n%s", buf.String())
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("done", logger.WithField("exit_code", 0))

	if !strings.Contains(buf.String(), "exit_code=0") {
		t.Errorf("structured field missing from output:\n%s", buf.String())
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("not-a-level", &buf)

	log.Debug("hidden")
	log.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug should be filtered when level falls back to info")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info message missing after level fallback")
	}
}
