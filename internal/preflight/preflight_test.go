package preflight

import (
	"context"
	"testing"

	"coalesce/internal/logging"
	"coalesce/internal/store"
	"coalesce/internal/testsupport"
)

func TestRunHealthyEnvironment(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	result := Run(context.Background(), cfg, logging.NewNop())
	if !result.Healthy() {
		t.Fatalf("expected healthy environment, got %+v", result.Checks)
	}
	if len(result.Checks) < 5 {
		t.Fatalf("expected config, directory, database, latch, and lock checks, got %d", len(result.Checks))
	}
}

func TestRunFlagsInvalidConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Matching.Weights.Phone += 5 // weights no longer sum to 100

	result := Run(context.Background(), cfg, logging.NewNop())
	if result.Healthy() {
		t.Fatal("expected config check to fail")
	}
}

func TestRunWarnsOnHaltLatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := s.CreateBatch(ctx, &store.Batch{ID: "batch-1", Threshold: 90}); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := s.HaltBatch(ctx, "batch-1", "sum drift"); err != nil {
		t.Fatalf("halt batch: %v", err)
	}

	result := Run(ctx, cfg, logging.NewNop())
	if !result.Healthy() {
		t.Fatalf("halt latch should warn, not fail: %+v", result.Checks)
	}
	found := false
	for _, c := range result.Checks {
		if c.Name == "halt latch" && c.Status == StatusWarn {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected halt latch warning, got %+v", result.Checks)
	}
}
