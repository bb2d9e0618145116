package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func capture(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: "json", Output: &buf, ServiceName: "scenegen-test"}), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v\n%s", err, buf.String())
	}
	return entry
}

func TestLoggerOutput(t *testing.T) {
	log, buf := capture("info")
	log.Info("sample committed", "digest", "ab12")

	entry := decode(t, buf)
	if entry["msg"] != "sample committed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["digest"] != "ab12" {
		t.Errorf("digest = %v", entry["digest"])
	}
	if entry["service"] != "scenegen-test" {
		t.Errorf("service = %v", entry["service"])
	}
	if ts, _ := entry["time"].(string); !strings.HasSuffix(ts, "Z") {
		t.Errorf("time %q is not UTC", ts)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "TEXT", Output: &buf}).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("x") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("x") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("x") }, true},
		{"warn drops info", "warn", func(l *Logger) { l.Info("x") }, false},
		{"error logs error", "error", func(l *Logger) { l.Error("x") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("x") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := capture(tt.level)
			tt.logFn(log)
			if got := buf.Len() > 0; got != tt.shouldLog {
				t.Errorf("logged = %v, want %v", got, tt.shouldLog)
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Logger) *Logger
		key   string
		want  any
	}{
		{"component", func(l *Logger) *Logger { return l.WithComponent("resolver") }, "component", "resolver"},
		{"request", func(l *Logger) *Logger { return l.WithRequestID("req-1") }, "request_id", "req-1"},
		{"run", func(l *Logger) *Logger { return l.WithRunID("run-1") }, "run_id", "run-1"},
		{"sample", func(l *Logger) *Logger { return l.WithSampleID("zoom_consistency_000042") }, "sample_id", "zoom_consistency_000042"},
		{"fields", func(l *Logger) *Logger { return l.WithFields(map[string]any{"attempt": 2}) }, "attempt", float64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := capture("info")
			tt.apply(log).Info("x")
			if got := decode(t, buf)[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestWithFieldsEmpty(t *testing.T) {
	log := Discard()
	if log.WithFields(nil) != log {
		t.Error("WithFields(nil) should return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	log, buf := capture("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithRunID(ctx, "run-xyz")
	ctx = ContextWithSampleID(ctx, "shape_extrapolation_000007")
	log.FromContext(ctx).Info("x")

	entry := decode(t, buf)
	for key, want := range map[string]string{
		"request_id": "req-abc",
		"run_id":     "run-xyz",
		"sample_id":  "shape_extrapolation_000007",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestFromContextWithoutValues(t *testing.T) {
	log := Discard()
	if log.FromContext(context.Background()) != log {
		t.Error("FromContext without values should return the same logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{" DEBUG ", "DEBUG"},
		{"info", "INFO"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SERVICE_NAME", "")

	cfg := DefaultConfig()
	if cfg.Level != "debug" || cfg.Format != "json" || cfg.ServiceName != "scenegen" {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}
