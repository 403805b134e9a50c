package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "carrier-pigeon" }},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2.0 }},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these may panic on a disabled instance.
	m.RecordImageRunStarted()
	m.RecordImageRunCompleted("succeeded", time.Minute)
	m.RecordAttempt("stockout", "us-central1-a", time.Minute)
	m.RecordPass()
	m.RecordBackoff(time.Minute)
	m.RecordTeardownLaunched()
	m.RecordTeardownCompleted(true, time.Minute)
	m.SetPendingTeardowns(3)
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordAttempt("stockout", "us-central1-a", 5*time.Minute)
	m.RecordTeardownLaunched()
	m.SetPendingTeardowns(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`imagebench_deploy_attempts_total{outcome="stockout",zone="us-central1-a"} 1`,
		"imagebench_teardowns_launched_total 1",
		"imagebench_pending_teardowns 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewTelemetryAndContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Error("telemetry not retrievable from context")
	}
	if got := FromContext(ctx); got != tel.Logger {
		t.Error("logger not retrievable from context")
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestLoggerFieldHelpers(t *testing.T) {
	cfg := DefaultConfig().Logging
	cfg.Level = "error"
	log, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	// Field helpers must return derived loggers, never mutate in place.
	derived := log.WithImage("img").WithZone("z").WithDeployment("d").WithRunID("r").WithPass(1)
	if derived == log {
		t.Error("expected a derived logger")
	}
}
