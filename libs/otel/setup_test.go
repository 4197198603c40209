package otelx

import (
	"context"
	"testing"
)

func TestSampleRatio(t *testing.T) {
	cases := map[string]float64{"0.25": 0.25, "0": 0, " 1 ": 1, "2": 1, "-0.1": 1, "half": 1}
	for raw, want := range cases {
		if got := sampleRatio(raw); got != want {
			t.Fatalf("sampleRatio(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestConfigFromEnvDisabled(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	cfg := ConfigFromEnv("booking-service")
	if cfg.exporting() {
		t.Fatalf("expected export off, endpoint %q", cfg.Endpoint)
	}
	if cfg.ServiceName != "booking-service" {
		t.Fatalf("service name = %q", cfg.ServiceName)
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "commission-service"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
