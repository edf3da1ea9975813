package logging

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

type infoField struct {
	label string
	value string
}

const infoAttrLimit = 8

var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldDecisionStatus,
	"decision_reason",
	FieldScore,
	FieldTier,
	FieldCanonicalID,
	FieldDuplicateID,
	"threshold",
	"dry_run",
	"blocks_scanned",
	"pairs_scored",
	"pairs_approved",
	"pairs_pending_review",
	"pairs_rejected",
	"clusters",
	"merges_executed",
	"contacts_removed",
	"contacts_imported",
	"records_reassigned",
	"error_message",
	FieldErrorHint,
	"status",
	"reason",
	"scan_duration",
	"merge_duration",
	"batch_duration",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
// limit=0 means no limit. includeDebug controls whether debug-only keys are allowed.
func selectInfoFields(attrs []kv, limit int, includeDebug bool) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	if limit < 0 {
		limit = 0
	}
	used := make([]bool, len(attrs))
	formatted := make([]string, len(attrs))
	formattedSet := make([]bool, len(attrs))
	ensureValue := func(idx int) string {
		if !formattedSet[idx] {
			formatted[idx] = formatValueForKey(attrs[idx].key, attrs[idx].value)
			formattedSet[idx] = true
		}
		return formatted[idx]
	}
	result := make([]infoField, 0, infoAttrLimit)
	hidden := 0

	for _, key := range infoHighlightKeys {
		if limit > 0 && len(result) >= limit {
			break
		}
		for idx, attr := range attrs {
			if used[idx] || attr.key != key {
				continue
			}
			used[idx] = true
			if skipInfoKey(attr.key) {
				break
			}
			if !includeDebug && isDebugOnlyKey(attr.key) {
				hidden++
				break
			}
			val := ensureValue(idx)
			if !includeDebug && shouldHideInfoValue(attr.key, val) {
				hidden++
				break
			}
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
			break
		}
	}

	for idx, attr := range attrs {
		if used[idx] {
			continue
		}
		used[idx] = true
		if skipInfoKey(attr.key) {
			continue
		}
		if !includeDebug && isDebugOnlyKey(attr.key) {
			hidden++
			continue
		}
		val := ensureValue(idx)
		if !includeDebug && shouldHideInfoValue(attr.key, val) {
			hidden++
			continue
		}
		if limit <= 0 || len(result) < limit {
			result = append(result, infoField{label: displayLabel(attr.key), value: val})
		} else if limit > 0 {
			hidden++
		}
	}

	return result, hidden
}

// formatValueForKey applies smart formatting based on the key name.
func formatValueForKey(key string, v slog.Value) string {
	v = v.Resolve()

	if isCentsKey(key) && (v.Kind() == slog.KindInt64 || v.Kind() == slog.KindUint64) {
		var cents int64
		if v.Kind() == slog.KindInt64 {
			cents = v.Int64()
		} else {
			cents = int64(v.Uint64())
		}
		return formatCents(cents)
	}

	if isDurationKey(key) && v.Kind() == slog.KindDuration {
		return formatDurationHuman(v.Duration())
	}

	if v.Kind() == slog.KindBool {
		if v.Bool() {
			return "yes"
		}
		return "no"
	}

	value := formatValue(v)
	if key == "error" || key == "error_message" {
		value = truncateErrorValue(value)
	}
	return value
}

func isCentsKey(key string) bool {
	return strings.HasSuffix(key, "_cents")
}

func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_duration") ||
		strings.HasSuffix(key, "_elapsed") ||
		key == "elapsed" ||
		key == "duration" ||
		key == "backoff"
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + strconv.FormatInt(cents/100, 10) + "." + pad2(cents%100)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}

func formatDurationHuman(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func truncateErrorValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	const maxLen = 200
	if len(value) > maxLen {
		value = value[:maxLen] + "…"
	}
	return value
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldBatchID, FieldStage, FieldPairKey, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	if key == "" {
		return true
	}
	switch key {
	case "block_keys",
		"signals",
		"snapshot",
		"supersedes_id",
		"pair_count",
		"checkpointed":
		return true
	}
	if strings.Contains(key, "correlation") {
		return true
	}
	if strings.Contains(key, "_path") || strings.Contains(key, "_dir") {
		return true
	}
	return false
}

func shouldHideInfoValue(key, value string) bool {
	switch key {
	case "error_message", "error", "reason", "decision_reason":
		return false
	}
	return len(value) > 120
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldDecisionStatus:
		return "Decision"
	case "decision_reason":
		return "Reason"
	case FieldErrorHint:
		return "Hint"
	case FieldScore:
		return "Score"
	case FieldTier:
		return "Tier"
	case FieldBlockKey:
		return "Block"
	case FieldContactID:
		return "Contact"
	case FieldCanonicalID:
		return "Canonical"
	case FieldDuplicateID:
		return "Duplicate"
	case FieldDecisionID:
		return "Decision ID"
	case "dry_run":
		return "Dry Run"
	case "pairs_scored":
		return "Pairs Scored"
	case "pairs_approved":
		return "Approved"
	case "pairs_pending_review":
		return "Pending Review"
	case "pairs_rejected":
		return "Rejected"
	case "blocks_scanned":
		return "Blocks"
	case "clusters":
		return "Clusters"
	case "merges_executed":
		return "Merges"
	case "contacts_removed":
		return "Removed"
	case "contacts_imported":
		return "Imported"
	case "records_reassigned":
		return "Reassigned"
	case "pre_sum_cents":
		return "Pre Sum"
	case "post_sum_cents":
		return "Post Sum"
	case "scan_duration":
		return "Scan Time"
	case "merge_duration":
		return "Merge Time"
	case "batch_duration":
		return "Duration"
	case "reason":
		return "Reason"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	if key == "" {
		return ""
	}
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-'
	})
	if len(parts) == 0 {
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	}
	for i, part := range parts {
		parts[i] = capitalizeASCII(part)
	}
	return strings.Join(parts, " ")
}

func capitalizeASCII(value string) string {
	switch len(value) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(value)
	default:
		lower := strings.ToLower(value)
		return strings.ToUpper(lower[:1]) + lower[1:]
	}
}

func infoSummaryKey(component, batchID, pair string, attrs []kv) string {
	pair = strings.TrimSpace(pair)
	if pair != "" {
		return "pair:" + pair
	}
	batchID = strings.TrimSpace(batchID)
	if batchID != "" {
		return "batch:" + batchID
	}
	if component != "" {
		return component
	}
	return attrValue(attrs, FieldBlockKey)
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
