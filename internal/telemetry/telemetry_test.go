package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), " ", "filmtrack-test", "test")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestExporterOptionsAcceptURLAndHostPort(t *testing.T) {
	for _, endpoint := range []string{"http://collector:4318", "https://otel.example.com/v1/traces", "collector:4318"} {
		opts, err := exporterOptions(endpoint)
		if err != nil {
			t.Fatalf("endpoint %q rejected: %v", endpoint, err)
		}
		if len(opts) == 0 {
			t.Fatalf("endpoint %q produced no exporter options", endpoint)
		}
	}
	for _, endpoint := range []string{"ftp://collector:4318", "http://", "http://[::1"} {
		if _, err := exporterOptions(endpoint); err == nil {
			t.Fatalf("endpoint %q must be rejected", endpoint)
		}
	}
}

func TestSetupWithURLEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "http://127.0.0.1:4318", "filmtrack-test", "test")
	if err != nil {
		t.Fatalf("setup with URL endpoint: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
