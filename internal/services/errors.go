package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDataIntegrity marks verification failures that must halt all further
	// destructive merging until an operator intervenes.
	ErrDataIntegrity = errors.New("data integrity error")
	// ErrAmbiguousCluster marks clusters whose canonical election ties out;
	// they are routed to review, never auto-resolved.
	ErrAmbiguousCluster = errors.New("ambiguous cluster")
	// ErrStaleCandidate marks pairs where one side was already merged away
	// earlier in the batch. Expected and recoverable: skip, log, continue.
	ErrStaleCandidate = errors.New("stale candidate")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrNotFound       = errors.New("not found")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether an error must stop all further destructive
// operations in the run rather than skipping to the next pair.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsRecoverable reports whether the batch may proceed with remaining pairs
// after logging the error.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrStaleCandidate) || errors.Is(err, ErrAmbiguousCluster)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
