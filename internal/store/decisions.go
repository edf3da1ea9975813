package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const decisionColumns = "id, batch_id, pair_key, contact_a_id, contact_b_id, block_keys, signals, " +
	"score, tier, status, reason, decided_by, supersedes_id, created_at"

func scanDecision(scanner rowScanner) (*Decision, error) {
	var (
		d            Decision
		blockKeys    sql.NullString
		signals      sql.NullString
		status       string
		reason       sql.NullString
		decidedBy    sql.NullString
		supersedesID sql.NullInt64
		createdRaw   string
	)
	if err := scanner.Scan(
		&d.ID,
		&d.BatchID,
		&d.PairKey,
		&d.ContactAID,
		&d.ContactBID,
		&blockKeys,
		&signals,
		&d.Score,
		&d.Tier,
		&status,
		&reason,
		&decidedBy,
		&supersedesID,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	d.BlockKeys = unmarshalStrings(blockKeys.String)
	d.SignalsJSON = signals.String
	d.Status = DecisionStatus(status)
	d.Reason = reason.String
	d.DecidedBy = decidedBy.String
	if supersedesID.Valid {
		v := supersedesID.Int64
		d.SupersedesID = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		d.CreatedAt = created
	}
	return &d, nil
}

// AppendDecision writes one row to the append-only decision log and returns
// it with its identifier set. When the pair already has a current decision,
// the new row must be a legal transition from it and must reference it via
// SupersedesID; rows are never updated in place.
func (s *Store) AppendDecision(ctx context.Context, d *Decision) (*Decision, error) {
	if d == nil {
		return nil, errors.New("decision is nil")
	}
	if _, ok := ParseDecisionStatus(string(d.Status)); !ok {
		return nil, fmt.Errorf("unknown decision status %q", d.Status)
	}
	if d.PairKey == "" {
		d.PairKey = PairKey(d.ContactAID, d.ContactBID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	// signals is NOT NULL; operator rows carry no signal vector.
	signals := d.SignalsJSON
	if signals == "" {
		signals = "{}"
	}

	current, err := s.CurrentDecision(ctx, d.PairKey)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.Status.IsTerminal() {
			return nil, fmt.Errorf("pair %s is terminal at %s", d.PairKey, current.Status)
		}
		if !CanTransition(current.Status, d.Status) {
			return nil, fmt.Errorf("illegal transition %s -> %s for pair %s", current.Status, d.Status, d.PairKey)
		}
		if d.SupersedesID == nil {
			id := current.ID
			d.SupersedesID = &id
		}
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO merge_decisions (
            batch_id, pair_key, contact_a_id, contact_b_id, block_keys, signals,
            score, tier, status, reason, decided_by, supersedes_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.BatchID,
		d.PairKey,
		d.ContactAID,
		d.ContactBID,
		marshalStrings(d.BlockKeys),
		signals,
		d.Score,
		d.Tier,
		string(d.Status),
		nullableString(d.Reason),
		nullableString(d.DecidedBy),
		nullableInt64(d.SupersedesID),
		formatTime(d.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("append decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return d, nil
}

// CurrentDecision returns the highest-id row for a pair, which is its
// current state. Returns nil when the pair has never been scored.
func (s *Store) CurrentDecision(ctx context.Context, pairKey string) (*Decision, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+decisionColumns+` FROM merge_decisions WHERE pair_key = ? ORDER BY id DESC LIMIT 1`,
		pairKey,
	)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current decision: %w", err)
	}
	return d, nil
}

// GetDecision fetches a single decision row by identifier.
func (s *Store) GetDecision(ctx context.Context, id int64) (*Decision, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+decisionColumns+` FROM merge_decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return d, nil
}

// CurrentDecisions returns the current (highest-id) row for every pair that
// has ever been scored, ordered by pair key.
func (s *Store) CurrentDecisions(ctx context.Context) ([]*Decision, error) {
	return s.queryDecisions(
		ctx,
		`SELECT `+decisionColumns+` FROM merge_decisions
         WHERE id IN (SELECT MAX(id) FROM merge_decisions GROUP BY pair_key)
         ORDER BY pair_key`,
	)
}

// CurrentDecisionsByStatus returns every pair whose current row sits at the
// given status.
func (s *Store) CurrentDecisionsByStatus(ctx context.Context, status DecisionStatus) ([]*Decision, error) {
	return s.queryDecisions(
		ctx,
		`SELECT `+decisionColumns+` FROM merge_decisions
         WHERE id IN (SELECT MAX(id) FROM merge_decisions GROUP BY pair_key)
           AND status = ?
         ORDER BY score DESC, pair_key`,
		string(status),
	)
}

// DecisionsForBatch returns every row a batch appended, in append order.
func (s *Store) DecisionsForBatch(ctx context.Context, batchID string) ([]*Decision, error) {
	return s.queryDecisions(
		ctx,
		`SELECT `+decisionColumns+` FROM merge_decisions WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
}

// DecisionHistory returns the full chain of rows for a pair, oldest first.
func (s *Store) DecisionHistory(ctx context.Context, pairKey string) ([]*Decision, error) {
	return s.queryDecisions(
		ctx,
		`SELECT `+decisionColumns+` FROM merge_decisions WHERE pair_key = ? ORDER BY id`,
		pairKey,
	)
}

// CountDecisionsByStatus tallies current decision rows per status.
func (s *Store) CountDecisionsByStatus(ctx context.Context) (map[DecisionStatus]int64, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT status, COUNT(1) FROM merge_decisions
         WHERE id IN (SELECT MAX(id) FROM merge_decisions GROUP BY pair_key)
         GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[DecisionStatus]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[DecisionStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) queryDecisions(ctx context.Context, query string, args ...any) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
