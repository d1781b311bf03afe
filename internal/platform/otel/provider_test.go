package otel

import (
	"context"
	"testing"
)

func TestSetup_NoEndpointReturnsNoop(t *testing.T) {
	t.Setenv("MPG_OTEL_ENDPOINT", "")
	shutdown, err := Setup(context.Background(), "game")
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected a shutdown function")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown returned error: %v", err)
	}
}

func TestSetup_DisabledReturnsNoop(t *testing.T) {
	t.Setenv("MPG_OTEL_ENABLED", "false")
	t.Setenv("MPG_OTEL_ENDPOINT", "http://localhost:4318")
	shutdown, err := Setup(context.Background(), "converter")
	if err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown returned error: %v", err)
	}
}
