package logging

import (
	"context"
	"log/slog"

	"coalesce/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBatchID is the standardized structured logging key for batch identifiers.
	FieldBatchID = "batch_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldBlockKey is the standardized structured logging key for blocking group keys.
	FieldBlockKey = "block"
	// FieldPairKey is the standardized structured logging key for candidate pair keys (e.g. 12:57).
	FieldPairKey = "pair"
	// FieldContactID is the standardized structured logging key for contact identifiers.
	FieldContactID = "contact_id"
	// FieldCanonicalID is the standardized structured logging key for merge survivors.
	FieldCanonicalID = "canonical_id"
	// FieldDuplicateID is the standardized structured logging key for merged-away contacts.
	FieldDuplicateID = "duplicate_id"
	// FieldDecisionID is the standardized structured logging key for decision log rows.
	FieldDecisionID = "decision_id"
	// FieldDecisionStatus is the standardized structured logging key for decision outcomes.
	FieldDecisionStatus = "decision_status"
	// FieldScore is the standardized structured logging key for confidence scores.
	FieldScore = "score"
	// FieldTier is the standardized structured logging key for confidence tiers.
	FieldTier = "tier"
	// FieldEventType is the standardized structured logging key for event classification.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.BatchIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBatchID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if block, ok := services.BlockFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBlockKey, block))
	}
	if pair, ok := services.PairFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPairKey, pair))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
