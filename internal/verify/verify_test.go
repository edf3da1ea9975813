package verify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"coalesce/internal/logging"
	"coalesce/internal/services"
	"coalesce/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "coalesce.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runMergedBatch(t *testing.T, s *store.Store, withBackup bool) *store.Batch {
	t.Helper()
	ctx := context.Background()

	canonical, err := s.InsertContact(ctx, &store.Contact{Email: "keep@example.com"})
	if err != nil {
		t.Fatalf("insert canonical: %v", err)
	}
	duplicate, err := s.InsertContact(ctx, &store.Contact{Email: "dupe@example.com"})
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if _, err := s.InsertTransaction(ctx, &store.Transaction{ContactID: duplicate.ID, AmountCents: 700}); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}

	preSum, err := s.LiveTransactionSum(ctx)
	if err != nil {
		t.Fatalf("pre sum: %v", err)
	}
	batch := &store.Batch{ID: "batch-1", Threshold: 90, PreSumCents: preSum}
	if err := s.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	decision, err := s.AppendDecision(ctx, &store.Decision{
		BatchID:    batch.ID,
		ContactAID: canonical.ID,
		ContactBID: duplicate.ID,
		Score:      95,
		Tier:       "very_high",
		Status:     store.StatusApproved,
		DecidedBy:  store.DecidedByScorer,
	})
	if err != nil {
		t.Fatalf("append decision: %v", err)
	}

	if withBackup {
		if _, err := s.InsertBackup(ctx, &store.Backup{
			BatchID:      batch.ID,
			DecisionID:   decision.ID,
			DuplicateID:  duplicate.ID,
			CanonicalID:  canonical.ID,
			SnapshotJSON: `{"id":2}`,
		}); err != nil {
			t.Fatalf("insert backup: %v", err)
		}
	}
	if _, err := s.ApplyMerge(ctx, batch.ID, canonical.ID, duplicate.ID); err != nil {
		t.Fatalf("apply merge: %v", err)
	}
	if _, err := s.AppendDecision(ctx, &store.Decision{
		BatchID:    batch.ID,
		ContactAID: canonical.ID,
		ContactBID: duplicate.ID,
		Score:      95,
		Tier:       "very_high",
		Status:     store.StatusMerged,
		DecidedBy:  store.DecidedByScorer,
	}); err != nil {
		t.Fatalf("append merged decision: %v", err)
	}
	return batch
}

func TestCheckBatchPassesAndAppendsVerified(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := runMergedBatch(t, s, true)

	checker := New(s, logging.NewNop())
	report, err := checker.CheckBatch(ctx, batch)
	if err != nil {
		t.Fatalf("check batch: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean report, got violations %v", report.Violations)
	}
	if report.RemovedContacts != 1 || report.BackedUp != 1 {
		t.Fatalf("unexpected coverage counts: %+v", report)
	}
	if report.Verified != 1 {
		t.Fatalf("expected 1 verified decision, got %d", report.Verified)
	}

	decisions, err := s.CurrentDecisionsByStatus(ctx, store.StatusVerified)
	if err != nil {
		t.Fatalf("query verified: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected 1 verified pair, got %d", len(decisions))
	}
}

func TestCheckBatchFlagsMissingBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := runMergedBatch(t, s, false)

	checker := New(s, logging.NewNop())
	report, err := checker.CheckBatch(ctx, batch)
	if err == nil {
		t.Fatal("expected data integrity error")
	}
	if !errors.Is(err, services.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("data integrity violations must be fatal")
	}
	if report.OK() {
		t.Fatal("report should carry violations")
	}
}

func TestCheckBatchFlagsSumDrift(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := runMergedBatch(t, s, true)

	// Simulate value appearing out of nowhere after the pre-batch snapshot.
	contacts, err := s.LiveContacts(ctx)
	if err != nil {
		t.Fatalf("live contacts: %v", err)
	}
	if _, err := s.InsertTransaction(ctx, &store.Transaction{ContactID: contacts[0].ID, AmountCents: 999}); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}

	checker := New(s, logging.NewNop())
	_, err = checker.CheckBatch(ctx, batch)
	if !errors.Is(err, services.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity for sum drift, got %v", err)
	}
}

func TestCheckStoreCleanDatabase(t *testing.T) {
	s := newTestStore(t)
	checker := New(s, logging.NewNop())
	report, err := checker.CheckStore(context.Background())
	if err != nil {
		t.Fatalf("check store: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean store, got %v", report.Violations)
	}
}
