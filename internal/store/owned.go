package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTransaction persists a financial record owned by a contact.
func (s *Store) InsertTransaction(ctx context.Context, txn *Transaction) (int64, error) {
	if txn == nil {
		return 0, errors.New("transaction is nil")
	}
	if txn.Currency == "" {
		txn.Currency = "USD"
	}
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO transactions (contact_id, amount_cents, currency, occurred_at, source_system)
         VALUES (?, ?, ?, ?, ?)`,
		txn.ContactID,
		txn.AmountCents,
		txn.Currency,
		formatTime(txn.OccurredAt),
		nullableString(txn.SourceSystem),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// InsertSubscription persists a subscription-like record owned by a contact.
func (s *Store) InsertSubscription(ctx context.Context, sub *Subscription) (int64, error) {
	if sub == nil {
		return 0, errors.New("subscription is nil")
	}
	if sub.Status == "" {
		sub.Status = "active"
	}
	if sub.StartedAt.IsZero() {
		sub.StartedAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO subscriptions (contact_id, plan_name, status, started_at) VALUES (?, ?, ?, ?)`,
		sub.ContactID,
		sub.PlanName,
		sub.Status,
		formatTime(sub.StartedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return res.LastInsertId()
}

// CountTransactions returns how many financial records a contact owns.
func (s *Store) CountTransactions(ctx context.Context, contactID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM transactions WHERE contact_id = ?`, contactID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

// CountSubscriptions returns how many subscription records a contact owns.
func (s *Store) CountSubscriptions(ctx context.Context, contactID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM subscriptions WHERE contact_id = ?`, contactID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return count, nil
}

// EnsureTag returns the identifier for a tag name, creating it when absent.
func (s *Store) EnsureTag(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("tag name is required")
	}
	if err := s.execWithoutResultRetry(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("ensure tag: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup tag: %w", err)
	}
	return id, nil
}

// AssignTag links a tag to a contact; re-assigning is a no-op.
func (s *Store) AssignTag(ctx context.Context, contactID, tagID int64) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO tag_assignments (contact_id, tag_id) VALUES (?, ?)`,
		contactID, tagID,
	); err != nil {
		return fmt.Errorf("assign tag: %w", err)
	}
	return nil
}

// TagIDs returns the identifiers of all tags assigned to a contact.
func (s *Store) TagIDs(ctx context.Context, contactID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT tag_id FROM tag_assignments WHERE contact_id = ? ORDER BY tag_id`, contactID)
	if err != nil {
		return nil, fmt.Errorf("query tag ids: %w", err)
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

// TagNames returns the names of all tags assigned to a contact.
func (s *Store) TagNames(ctx context.Context, contactID int64) ([]string, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT t.name FROM tag_assignments ta JOIN tags t ON t.id = ta.tag_id WHERE ta.contact_id = ? ORDER BY t.name`,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tag names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UpsertAddressValidation stores the external validation result for one
// contact address slot, replacing any previous result for that slot.
func (s *Store) UpsertAddressValidation(ctx context.Context, v *AddressValidation) error {
	if v == nil {
		return errors.New("validation is nil")
	}
	if v.Slot != 0 && v.Slot != 1 {
		return fmt.Errorf("invalid address slot %d", v.Slot)
	}
	if v.ValidatedAt.IsZero() {
		v.ValidatedAt = time.Now().UTC()
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO address_validations (contact_id, slot, match_code, vacant, validated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (contact_id, slot) DO UPDATE SET
             match_code = excluded.match_code,
             vacant = excluded.vacant,
             validated_at = excluded.validated_at`,
		v.ContactID,
		v.Slot,
		v.MatchCode,
		boolToInt(v.Vacant),
		formatTime(v.ValidatedAt),
	); err != nil {
		return fmt.Errorf("upsert address validation: %w", err)
	}
	return nil
}

// AddressValidations returns the stored validation results for a contact,
// keyed by address slot. Missing slots simply have no entry.
func (s *Store) AddressValidations(ctx context.Context, contactID int64) (map[int]AddressValidation, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT contact_id, slot, match_code, vacant, validated_at FROM address_validations WHERE contact_id = ?`,
		contactID,
	)
	if err != nil {
		return nil, fmt.Errorf("query address validations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]AddressValidation)
	for rows.Next() {
		var (
			v        AddressValidation
			vacant   int
			validRaw string
		)
		if err := rows.Scan(&v.ContactID, &v.Slot, &v.MatchCode, &vacant, &validRaw); err != nil {
			return nil, err
		}
		v.Vacant = vacant != 0
		if ts, err := parseTimeString(validRaw); err == nil {
			v.ValidatedAt = ts
		}
		out[v.Slot] = v
	}
	return out, rows.Err()
}

// LiveTransactionSum returns the total transaction amount owned by live
// contacts. Merges only reassign ownership, so a batch must never change it.
func (s *Store) LiveTransactionSum(ctx context.Context) (int64, error) {
	var sum sql.NullInt64
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT SUM(t.amount_cents) FROM transactions t
         JOIN contacts c ON c.id = t.contact_id
         WHERE c.removed_at IS NULL`,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum live transactions: %w", err)
	}
	return sum.Int64, nil
}

// CountOrphanedOwnedRecords counts transactions and subscriptions whose
// owning contact is removed or missing. Must be zero after every batch.
func (s *Store) CountOrphanedOwnedRecords(ctx context.Context) (int64, error) {
	var orphanedTxns int64
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM transactions t
         LEFT JOIN contacts c ON c.id = t.contact_id
         WHERE c.id IS NULL OR c.removed_at IS NOT NULL`,
	).Scan(&orphanedTxns)
	if err != nil {
		return 0, fmt.Errorf("count orphaned transactions: %w", err)
	}

	var orphanedSubs int64
	err = s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM subscriptions s
         LEFT JOIN contacts c ON c.id = s.contact_id
         WHERE c.id IS NULL OR c.removed_at IS NOT NULL`,
	).Scan(&orphanedSubs)
	if err != nil {
		return 0, fmt.Errorf("count orphaned subscriptions: %w", err)
	}
	return orphanedTxns + orphanedSubs, nil
}
