package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn").With(String("comp", "test"))

	log.Info("dropped")
	log.Warn("kept", Int("n", 2), Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["message"] != "kept" || rec["comp"] != "test" || rec["n"] != float64(2) || rec["err"] != "boom" {
		t.Fatalf("record = %v", rec)
	}
	if c, _ := rec["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %v", rec["caller"])
	}
}

func TestNewWriterUnknownLevelIsDebug(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "chatty").Debug("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestNewConsoleWritesToGivenSink(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, "INFO")
	log.Debug("quiet")
	log.Warn("no bot token configured")

	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "no bot token configured") {
		t.Fatalf("console output = %q", out)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	l.Error("ignored", String("k", "v"))
}
