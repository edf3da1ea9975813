package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MergeResult reports what one merge transaction changed.
type MergeResult struct {
	TransactionsMoved  int64
	SubscriptionsMoved int64
	TagsCopied         int64
}

// RecordsReassigned is the total number of owned records that changed hands.
func (r MergeResult) RecordsReassigned() int64 {
	return r.TransactionsMoved + r.SubscriptionsMoved
}

// RemovalReasonMerged is the tombstone reason written for merged duplicates.
const RemovalReasonMerged = "merged"

// ApplyMerge folds the duplicate contact into the canonical one inside a
// single transaction: owned records change hands, the duplicate's primary
// email joins the canonical's alternates, consent and created_at are
// reconciled, tags are copied, and the duplicate is tombstoned with a link
// back to the canonical. Both contacts are re-read inside the transaction;
// callers must have already decided the merge is still valid, but the final
// liveness check happens here so a concurrent removal cannot slip through.
func (s *Store) ApplyMerge(ctx context.Context, batchID string, canonicalID, duplicateID int64) (MergeResult, error) {
	var result MergeResult
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		canonical, err := getContactTx(ctx, tx, canonicalID)
		if err != nil {
			return err
		}
		duplicate, err := getContactTx(ctx, tx, duplicateID)
		if err != nil {
			return err
		}
		if canonical == nil || canonical.IsRemoved() {
			return fmt.Errorf("canonical contact %d is not live", canonicalID)
		}
		if duplicate == nil || duplicate.IsRemoved() {
			return fmt.Errorf("duplicate contact %d is not live", duplicateID)
		}

		now := time.Now().UTC()

		// Fold the duplicate's primary email into the canonical's
		// alternates, skipping anything the canonical already carries.
		altEmails := mergedAltEmails(canonical, duplicate)
		consent := canonical.Consent || duplicate.Consent
		createdAt := canonical.CreatedAt
		if !duplicate.CreatedAt.IsZero() && duplicate.CreatedAt.Before(createdAt) {
			createdAt = duplicate.CreatedAt
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE contacts SET alt_emails = ?, consent = ?, created_at = ?, updated_at = ? WHERE id = ?`,
			marshalStrings(altEmails),
			boolToInt(consent),
			formatTime(createdAt),
			formatTime(now),
			canonicalID,
		); err != nil {
			return fmt.Errorf("update canonical: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE transactions SET contact_id = ? WHERE contact_id = ?`, canonicalID, duplicateID)
		if err != nil {
			return fmt.Errorf("reassign transactions: %w", err)
		}
		if result.TransactionsMoved, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `UPDATE subscriptions SET contact_id = ? WHERE contact_id = ?`, canonicalID, duplicateID)
		if err != nil {
			return fmt.Errorf("reassign subscriptions: %w", err)
		}
		if result.SubscriptionsMoved, err = res.RowsAffected(); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tag_assignments (contact_id, tag_id)
             SELECT ?, tag_id FROM tag_assignments WHERE contact_id = ?`,
			canonicalID, duplicateID,
		)
		if err != nil {
			return fmt.Errorf("copy tags: %w", err)
		}
		if result.TagsCopied, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_assignments WHERE contact_id = ?`, duplicateID); err != nil {
			return fmt.Errorf("remove duplicate tags: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE contacts SET removed_at = ?, removal_reason = ?, removed_batch_id = ?, merged_into_id = ?, updated_at = ?
             WHERE id = ?`,
			formatTime(now),
			RemovalReasonMerged,
			batchID,
			canonicalID,
			formatTime(now),
			duplicateID,
		); err != nil {
			return fmt.Errorf("tombstone duplicate: %w", err)
		}
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

func getContactTx(ctx context.Context, tx *sql.Tx, id int64) (*Contact, error) {
	row := tx.QueryRowContext(ensureContext(ctx), `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact in tx: %w", err)
	}
	return contact, nil
}

func mergedAltEmails(canonical, duplicate *Contact) []string {
	seen := make(map[string]struct{})
	mark := func(email string) bool {
		key := strings.ToLower(strings.TrimSpace(email))
		if key == "" {
			return false
		}
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	}
	mark(canonical.Email)

	out := make([]string, 0, len(canonical.AltEmails)+len(duplicate.AltEmails)+1)
	for _, email := range canonical.AltEmails {
		if mark(email) {
			out = append(out, email)
		}
	}
	if mark(duplicate.Email) {
		out = append(out, duplicate.Email)
	}
	for _, email := range duplicate.AltEmails {
		if mark(email) {
			out = append(out, email)
		}
	}
	return out
}
