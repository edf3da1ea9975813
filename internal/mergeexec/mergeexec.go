// Package mergeexec executes planned merges. Each merge is one backup
// commit followed by one destructive transaction, serialized per canonical
// through an in-process keyed lock so two workers never fold into the same
// survivor concurrently.
package mergeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"coalesce/internal/logging"
	"coalesce/internal/planner"
	"coalesce/internal/services"
	"coalesce/internal/store"
)

// BackupReason is written on every pre-merge snapshot.
const BackupReason = "pre-merge snapshot"

// Outcome reports what executing one planned merge did.
type Outcome struct {
	Merged        bool
	AlreadyMerged bool
	Result        store.MergeResult
}

// Executor runs merges against the store.
type Executor struct {
	store  *store.Store
	logger *slog.Logger
	locks  *keyedLocks
}

// New builds an executor. A nil logger logs nowhere.
func New(st *store.Store, logger *slog.Logger) *Executor {
	return &Executor{
		store:  st,
		logger: logging.NewComponentLogger(logger, "mergeexec"),
		locks:  newKeyedLocks(),
	}
}

// Execute folds one duplicate into its canonical. Re-invoking an already
// applied merge is a no-op; a pair whose either side was removed by a
// different merge is stale and skipped.
func (e *Executor) Execute(ctx context.Context, batchID string, m planner.Merge) (Outcome, error) {
	unlock := e.locks.lock(m.CanonicalID)
	defer unlock()

	ctx = services.WithPair(ctx, store.PairKey(m.CanonicalID, m.DuplicateID))
	logger := logging.WithContext(ctx, e.logger)

	duplicate, err := e.store.GetContact(ctx, m.DuplicateID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "merge", "load duplicate", "", err)
	}
	canonical, err := e.store.GetContact(ctx, m.CanonicalID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "merge", "load canonical", "", err)
	}

	switch {
	case duplicate == nil:
		return Outcome{}, services.Wrap(services.ErrStaleCandidate, "merge", "gate",
			fmt.Sprintf("duplicate %d does not exist", m.DuplicateID), nil)
	case duplicate.IsRemoved() && duplicate.MergedIntoID != nil && *duplicate.MergedIntoID == m.CanonicalID:
		logger.Debug("merge already applied",
			logging.Int64(logging.FieldDuplicateID, m.DuplicateID),
			logging.Int64(logging.FieldCanonicalID, m.CanonicalID),
		)
		return Outcome{AlreadyMerged: true}, nil
	case duplicate.IsRemoved():
		return Outcome{}, services.Wrap(services.ErrStaleCandidate, "merge", "gate",
			fmt.Sprintf("duplicate %d was already merged elsewhere", m.DuplicateID), nil)
	case canonical == nil || canonical.IsRemoved():
		return Outcome{}, services.Wrap(services.ErrStaleCandidate, "merge", "gate",
			fmt.Sprintf("canonical %d is no longer live", m.CanonicalID), nil)
	}

	// The snapshot commits in its own transaction before anything
	// destructive runs. If the merge below fails the snapshot stays behind
	// as a harmless orphan.
	snapshot, err := json.Marshal(duplicate)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "merge", "snapshot duplicate", "", err)
	}
	if _, err := e.store.InsertBackup(ctx, &store.Backup{
		BatchID:      batchID,
		DecisionID:   m.DecisionID,
		DuplicateID:  m.DuplicateID,
		CanonicalID:  m.CanonicalID,
		SnapshotJSON: string(snapshot),
		Reason:       BackupReason,
	}); err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "merge", "commit backup", "", err)
	}

	result, err := e.store.ApplyMerge(ctx, batchID, m.CanonicalID, m.DuplicateID)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrTransient, "merge", "apply", "", err)
	}

	if err := e.appendMergedDecision(ctx, batchID, m); err != nil {
		// The merge itself committed; a failed log append must not undo it.
		logging.ErrorWithContext(logger, "failed to append merged decision", "decision_append_failed",
			logging.Int64(logging.FieldDecisionID, m.DecisionID),
			logging.Error(err),
		)
	}

	logger.Info("merged duplicate into canonical",
		logging.String(logging.FieldEventType, "merge_executed"),
		logging.Int64(logging.FieldCanonicalID, m.CanonicalID),
		logging.Int64(logging.FieldDuplicateID, m.DuplicateID),
		logging.Int64("records_reassigned", result.RecordsReassigned()),
	)
	return Outcome{Merged: true, Result: result}, nil
}

func (e *Executor) appendMergedDecision(ctx context.Context, batchID string, m planner.Merge) error {
	trigger, err := e.store.GetDecision(ctx, m.DecisionID)
	if err != nil {
		return err
	}
	if trigger == nil {
		return fmt.Errorf("decision %d not found", m.DecisionID)
	}
	_, err = e.store.AppendDecision(ctx, &store.Decision{
		BatchID:     batchID,
		PairKey:     trigger.PairKey,
		ContactAID:  trigger.ContactAID,
		ContactBID:  trigger.ContactBID,
		BlockKeys:   trigger.BlockKeys,
		SignalsJSON: trigger.SignalsJSON,
		Score:       trigger.Score,
		Tier:        trigger.Tier,
		Status:      store.StatusMerged,
		Reason:      fmt.Sprintf("duplicate %d merged into canonical %d", m.DuplicateID, m.CanonicalID),
		DecidedBy:   store.DecidedByScorer,
	})
	return err
}

// keyedLocks hands out one mutex per canonical contact id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedLocks) lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
