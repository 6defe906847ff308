package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// TestProductionLoggerJSONFormat tests structured entries carry the
// standard fields plus the caller's
func TestProductionLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := &ProductionLogger{
		level:       "info",
		serviceName: "test-service",
		format:      "json",
		output:      &buf,
	}

	logger.Info("pipe send completed", map[string]interface{}{
		"operation": "pipe_send",
		"filters":   3,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}

	if entry["level"] != "INFO" {
		t.Errorf("expected level INFO, got %v", entry["level"])
	}
	if entry["service"] != "test-service" {
		t.Errorf("expected service name, got %v", entry["service"])
	}
	if entry["message"] != "pipe send completed" {
		t.Errorf("expected message, got %v", entry["message"])
	}
	if entry["operation"] != "pipe_send" {
		t.Errorf("expected caller field, got %v", entry["operation"])
	}
}

// TestProductionLoggerLevelThreshold tests entries below the configured
// level are suppressed
func TestProductionLoggerLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := &ProductionLogger{
		level:       "warn",
		serviceName: "test-service",
		format:      "json",
		output:      &buf,
	}

	logger.Debug("ignored", nil)
	logger.Info("ignored too", nil)
	if buf.Len() != 0 {
		t.Errorf("expected suppression below warn, got %q", buf.String())
	}

	logger.Warn("kept", nil)
	logger.Error("kept too", nil)
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 2 {
		t.Errorf("expected 2 entries, got %d: %q", lines, buf.String())
	}
}

// TestProductionLoggerTextFormat tests the human-readable format carries
// the message and fields
func TestProductionLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := &ProductionLogger{
		level:       "debug",
		serviceName: "local-dev",
		format:      "text",
		output:      &buf,
	}

	logger.Debug("retrying send", map[string]interface{}{"attempt": 2})

	out := buf.String()
	if !strings.Contains(out, "[DEBUG]") || !strings.Contains(out, "retrying send") {
		t.Errorf("unexpected text output: %q", out)
	}
	if !strings.Contains(out, "attempt=2") {
		t.Errorf("expected field in text output: %q", out)
	}
}

// TestNewProductionLoggerDefaultsUnknownLevel tests unknown levels fall
// back to info
func TestNewProductionLoggerDefaultsUnknownLevel(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Level: "chatty", Format: "json"}, "svc")
	pl, ok := logger.(*ProductionLogger)
	if !ok {
		t.Fatalf("expected *ProductionLogger, got %T", logger)
	}
	if pl.level != "info" {
		t.Errorf("expected fallback to info, got %q", pl.level)
	}
}

// TestNoOpLoggerSilent tests the no-op logger accepts all calls
func TestNoOpLoggerSilent(t *testing.T) {
	logger := &NoOpLogger{}
	logger.Info("a", nil)
	logger.Warn("b", map[string]interface{}{"k": "v"})
	logger.Error("c", nil)
	logger.Debug("d", nil)
}
