package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/acme/callbridge/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "callbridge-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown failed: %v", err)
	}
}

func TestSamplerSelection(t *testing.T) {
	if got := sampler(0).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("expected always-on root sampler for zero ratio, got %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Fatalf("expected ratio sampler, got %s", got)
	}
}

func TestServiceVersionFallback(t *testing.T) {
	if got := serviceVersion(config.TelemetryConfig{}); got != "dev" {
		t.Fatalf("expected dev fallback, got %q", got)
	}
	if got := serviceVersion(config.TelemetryConfig{ServiceVersion: "1.4.0"}); got != "1.4.0" {
		t.Fatalf("unexpected version %q", got)
	}
}
