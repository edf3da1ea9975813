package services

import "context"

type contextKey string

const (
	batchIDKey contextKey = "batch_id"
	stageKey   contextKey = "stage"
	blockKey   contextKey = "block"
	pairKey    contextKey = "pair"
)

// WithBatchID annotates context with the batch identifier.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(batchIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBlock annotates context with the blocking group key under scan.
func WithBlock(ctx context.Context, block string) context.Context {
	if block == "" {
		return ctx
	}
	return context.WithValue(ctx, blockKey, block)
}

// BlockFromContext returns the blocking group key if present.
func BlockFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(blockKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPair annotates context with a candidate pair key (e.g. "12:57").
func WithPair(ctx context.Context, pair string) context.Context {
	if pair == "" {
		return ctx
	}
	return context.WithValue(ctx, pairKey, pair)
}

// PairFromContext returns the candidate pair key if present.
func PairFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pairKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
