package mergeexec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"coalesce/internal/logging"
	"coalesce/internal/planner"
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

func seedPair(t *testing.T, s *store.Store) (canonical, duplicate *store.Contact, decisionID int64) {
	t.Helper()
	ctx := context.Background()

	canonical, err := s.InsertContact(ctx, &store.Contact{Email: "keep@example.com"})
	if err != nil {
		t.Fatalf("insert canonical: %v", err)
	}
	duplicate, err = s.InsertContact(ctx, &store.Contact{Email: "dupe@example.com", Consent: true})
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if _, err := s.InsertTransaction(ctx, &store.Transaction{ContactID: duplicate.ID, AmountCents: 1200}); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}

	decision, err := s.AppendDecision(ctx, &store.Decision{
		BatchID:    "batch-1",
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
	return canonical, duplicate, decision.ID
}

func TestExecuteMergesAndRecordsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	canonical, duplicate, decisionID := seedPair(t, s)

	exec := New(s, logging.NewNop())
	outcome, err := exec.Execute(ctx, "batch-1", planner.Merge{
		CanonicalID: canonical.ID,
		DuplicateID: duplicate.ID,
		DecisionID:  decisionID,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.Merged {
		t.Fatal("expected merge to run")
	}
	if outcome.Result.TransactionsMoved != 1 {
		t.Fatalf("expected 1 transaction moved, got %d", outcome.Result.TransactionsMoved)
	}

	// Backup committed and references the duplicate's snapshot.
	backup, err := s.LatestBackupForContact(ctx, duplicate.ID)
	if err != nil {
		t.Fatalf("latest backup: %v", err)
	}
	if backup == nil {
		t.Fatal("expected a pre-merge backup")
	}
	if backup.DecisionID != decisionID || backup.CanonicalID != canonical.ID {
		t.Fatalf("backup references wrong rows: %+v", backup)
	}

	// Decision chain advanced to merged.
	current, err := s.CurrentDecision(ctx, store.PairKey(canonical.ID, duplicate.ID))
	if err != nil {
		t.Fatalf("current decision: %v", err)
	}
	if current.Status != store.StatusMerged {
		t.Fatalf("expected merged decision, got %s", current.Status)
	}

	removed, err := s.GetContact(ctx, duplicate.ID)
	if err != nil {
		t.Fatalf("get duplicate: %v", err)
	}
	if !removed.IsRemoved() {
		t.Fatal("expected duplicate tombstoned")
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	canonical, duplicate, decisionID := seedPair(t, s)

	exec := New(s, logging.NewNop())
	merge := planner.Merge{CanonicalID: canonical.ID, DuplicateID: duplicate.ID, DecisionID: decisionID}
	if _, err := exec.Execute(ctx, "batch-1", merge); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	outcome, err := exec.Execute(ctx, "batch-1", merge)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !outcome.AlreadyMerged || outcome.Merged {
		t.Fatalf("expected no-op on re-invocation, got %+v", outcome)
	}

	backups, err := s.BackupsForBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("re-invocation wrote another backup: %d total", len(backups))
	}
}

func TestExecuteStaleWhenDuplicateMergedElsewhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	canonical, duplicate, decisionID := seedPair(t, s)

	other, err := s.InsertContact(ctx, &store.Contact{Email: "other@example.com"})
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}
	if _, err := s.ApplyMerge(ctx, "batch-1", other.ID, duplicate.ID); err != nil {
		t.Fatalf("merge into other: %v", err)
	}

	exec := New(s, logging.NewNop())
	_, err = exec.Execute(ctx, "batch-1", planner.Merge{
		CanonicalID: canonical.ID,
		DuplicateID: duplicate.ID,
		DecisionID:  decisionID,
	})
	if !errors.Is(err, services.ErrStaleCandidate) {
		t.Fatalf("expected stale candidate error, got %v", err)
	}
	if !services.IsRecoverable(err) {
		t.Fatal("stale candidate must be recoverable")
	}
}

func TestExecuteStaleWhenCanonicalRemoved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	canonical, duplicate, decisionID := seedPair(t, s)

	other, err := s.InsertContact(ctx, &store.Contact{Email: "other@example.com"})
	if err != nil {
		t.Fatalf("insert other: %v", err)
	}
	if _, err := s.ApplyMerge(ctx, "batch-1", other.ID, canonical.ID); err != nil {
		t.Fatalf("merge canonical away: %v", err)
	}

	exec := New(s, logging.NewNop())
	_, err = exec.Execute(ctx, "batch-1", planner.Merge{
		CanonicalID: canonical.ID,
		DuplicateID: duplicate.ID,
		DecisionID:  decisionID,
	})
	if !errors.Is(err, services.ErrStaleCandidate) {
		t.Fatalf("expected stale candidate error, got %v", err)
	}
}
