package store

import (
	"context"
	"fmt"
	"time"
)

// MarkBlockDone checkpoints a fully scored block for a batch. A resumed run
// skips checkpointed blocks instead of re-scoring them.
func (s *Store) MarkBlockDone(ctx context.Context, batchID, blockKey string, pairCount int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO scan_checkpoints (batch_id, block_key, pair_count, completed_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (batch_id, block_key) DO UPDATE SET
             pair_count = excluded.pair_count,
             completed_at = excluded.completed_at`,
		batchID,
		blockKey,
		pairCount,
		formatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("mark block done: %w", err)
	}
	return nil
}

// CompletedBlocks returns the block keys a batch has already checkpointed.
func (s *Store) CompletedBlocks(ctx context.Context, batchID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT block_key FROM scan_checkpoints WHERE batch_id = ?`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	blocks := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		blocks[key] = struct{}{}
	}
	return blocks, rows.Err()
}
