package services_test

import (
	"context"
	"testing"

	"discdump/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithDevice(ctx, "/dev/sr0")
	ctx = services.WithPhase(ctx, "lead-out")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if dev, ok := services.DeviceFromContext(ctx); !ok || dev != "/dev/sr0" {
		t.Fatalf("unexpected device: %v %v", dev, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "lead-out" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
}

func TestPhaseBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPhase(ctx, "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
