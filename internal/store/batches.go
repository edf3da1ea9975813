package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const batchColumns = "id, started_at, finished_at, threshold, dry_run, status, pairs_scored, " +
	"merges_executed, contacts_removed, pre_sum_cents, post_sum_cents, halt_reason"

func scanBatch(scanner rowScanner) (*Batch, error) {
	var (
		b           Batch
		startedRaw  string
		finishedRaw sql.NullString
		dryRun      int
		status      string
		haltReason  sql.NullString
	)
	if err := scanner.Scan(
		&b.ID,
		&startedRaw,
		&finishedRaw,
		&b.Threshold,
		&dryRun,
		&status,
		&b.PairsScored,
		&b.MergesExecuted,
		&b.ContactsRemoved,
		&b.PreSumCents,
		&b.PostSumCents,
		&haltReason,
	); err != nil {
		return nil, err
	}
	b.DryRun = dryRun != 0
	b.Status = BatchStatus(status)
	b.HaltReason = haltReason.String
	if started, err := parseTimeString(startedRaw); err == nil {
		b.StartedAt = started
	}
	b.FinishedAt = scanNullTime(finishedRaw)
	return &b, nil
}

// CreateBatch records the start of a run.
func (s *Store) CreateBatch(ctx context.Context, b *Batch) error {
	if b == nil {
		return errors.New("batch is nil")
	}
	if b.ID == "" {
		return errors.New("batch id is required")
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = BatchRunning
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO batches (
            id, started_at, threshold, dry_run, status, pairs_scored,
            merges_executed, contacts_removed, pre_sum_cents, post_sum_cents
        ) VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, 0)`,
		b.ID,
		formatTime(b.StartedAt),
		b.Threshold,
		boolToInt(b.DryRun),
		string(b.Status),
		b.PreSumCents,
	); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// FinishBatch marks a run completed and records its final tallies.
func (s *Store) FinishBatch(ctx context.Context, b *Batch) error {
	if b == nil {
		return errors.New("batch is nil")
	}
	now := time.Now().UTC()
	b.FinishedAt = &now
	b.Status = BatchCompleted
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE batches SET finished_at = ?, status = ?, pairs_scored = ?,
            merges_executed = ?, contacts_removed = ?, post_sum_cents = ?
         WHERE id = ?`,
		formatTime(now),
		string(BatchCompleted),
		b.PairsScored,
		b.MergesExecuted,
		b.ContactsRemoved,
		b.PostSumCents,
		b.ID,
	); err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	return nil
}

// HaltBatch marks a run halted with the reason that stopped it. A halted
// batch leaves the halt latch set until an operator clears it.
func (s *Store) HaltBatch(ctx context.Context, batchID, reason string) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE batches SET finished_at = ?, status = ?, halt_reason = ? WHERE id = ?`,
		formatTime(now),
		string(BatchHalted),
		reason,
		batchID,
	); err != nil {
		return fmt.Errorf("halt batch: %w", err)
	}
	return nil
}

// GetBatch fetches one batch by identifier. Returns nil when absent.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// ListBatches returns batches newest first, up to limit (0 means all).
func (s *Store) ListBatches(ctx context.Context, limit int) ([]*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// LatestHaltedBatch returns the most recent halted batch, if any. A non-nil
// result means the halt latch is set and new runs must refuse to start.
func (s *Store) LatestHaltedBatch(ctx context.Context) (*Batch, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+batchColumns+` FROM batches WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(BatchHalted),
	)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest halted batch: %w", err)
	}
	return b, nil
}

// ClearHalt acknowledges a halted batch after operator investigation, moving
// it to completed so the latch no longer blocks new runs.
func (s *Store) ClearHalt(ctx context.Context, batchID string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE batches SET status = ? WHERE id = ? AND status = ?`,
		string(BatchCompleted),
		batchID,
		string(BatchHalted),
	)
	if err != nil {
		return fmt.Errorf("clear halt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("batch %s is not halted", batchID)
	}
	return nil
}
