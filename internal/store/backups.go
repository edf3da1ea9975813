package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const backupColumns = "id, batch_id, decision_id, duplicate_contact_id, canonical_contact_id, snapshot, reason, created_at"

func scanBackup(scanner rowScanner) (*Backup, error) {
	var (
		b          Backup
		reason     sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&b.ID,
		&b.BatchID,
		&b.DecisionID,
		&b.DuplicateID,
		&b.CanonicalID,
		&b.SnapshotJSON,
		&reason,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	b.Reason = reason.String
	if created, err := parseTimeString(createdRaw); err == nil {
		b.CreatedAt = created
	}
	return &b, nil
}

// InsertBackup commits a full pre-merge snapshot of the duplicate contact in
// its own transaction. It must return before any destructive write touches
// the duplicate; the snapshot is the recovery record if the merge fails.
func (s *Store) InsertBackup(ctx context.Context, b *Backup) (*Backup, error) {
	if b == nil {
		return nil, errors.New("backup is nil")
	}
	if b.SnapshotJSON == "" {
		return nil, errors.New("backup snapshot is empty")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO merge_backups (
            batch_id, decision_id, duplicate_contact_id, canonical_contact_id, snapshot, reason, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.BatchID,
		b.DecisionID,
		b.DuplicateID,
		b.CanonicalID,
		b.SnapshotJSON,
		nullableString(b.Reason),
		formatTime(b.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert backup: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return b, nil
}

// BackupsForBatch returns every snapshot a batch wrote, in write order.
func (s *Store) BackupsForBatch(ctx context.Context, batchID string) ([]*Backup, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+backupColumns+` FROM merge_backups WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// LatestBackupForContact returns the most recent snapshot taken of a contact
// before it was merged away. Returns nil when none exists.
func (s *Store) LatestBackupForContact(ctx context.Context, contactID int64) (*Backup, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+backupColumns+` FROM merge_backups WHERE duplicate_contact_id = ? ORDER BY id DESC LIMIT 1`,
		contactID,
	)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest backup: %w", err)
	}
	return b, nil
}

// BackedUpDuplicates returns the set of duplicate contact ids a batch wrote
// snapshots for. Verification checks it covers every contact the batch removed.
func (s *Store) BackedUpDuplicates(ctx context.Context, batchID string) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT DISTINCT duplicate_contact_id FROM merge_backups WHERE batch_id = ?`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query backed-up duplicates: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// RemovedContactIDs returns the ids of contacts tombstoned by a batch.
func (s *Store) RemovedContactIDs(ctx context.Context, batchID string) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT id FROM contacts WHERE removed_batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query removed contacts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
