package store

import (
	"strings"
	"time"
)

// NameKind tags whether a contact's name belongs to a person or an
// organization. Sources that predate the tag import as unknown.
type NameKind string

const (
	NamePerson       NameKind = "person"
	NameOrganization NameKind = "organization"
	NameUnknown      NameKind = "unknown"
)

// ParseNameKind converts a string into a known NameKind, defaulting to unknown.
func ParseNameKind(value string) NameKind {
	switch NameKind(strings.ToLower(strings.TrimSpace(value))) {
	case NamePerson:
		return NamePerson
	case NameOrganization:
		return NameOrganization
	default:
		return NameUnknown
	}
}

// Address is one of a contact's two embedded postal address slots.
type Address struct {
	Line1  string `json:"line1,omitempty"`
	City   string `json:"city,omitempty"`
	Region string `json:"region,omitempty"`
	Postal string `json:"postal,omitempty"`
}

// IsZero reports whether the address slot is empty.
func (a Address) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.Region == "" && a.Postal == ""
}

// Contact is a person or organization identity. Contacts are created by
// import and mutated only by the merge executor afterwards.
type Contact struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email,omitempty"`
	AltEmails      []string   `json:"alt_emails,omitempty"`
	FirstName      string     `json:"first_name,omitempty"`
	LastName       string     `json:"last_name,omitempty"`
	OrgName        string     `json:"org_name,omitempty"`
	NameKind       NameKind   `json:"name_kind"`
	Phone          string     `json:"phone,omitempty"`
	Addresses      [2]Address `json:"addresses"`
	Consent        bool       `json:"consent"`
	SourceSystem   string     `json:"source_system,omitempty"`
	SourceRecordID string     `json:"source_record_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
	RemovalReason  string     `json:"removal_reason,omitempty"`
	RemovedBatchID string     `json:"removed_batch_id,omitempty"`
	MergedIntoID   *int64     `json:"merged_into_id,omitempty"`
}

// IsRemoved reports whether the contact carries a tombstone marker.
func (c *Contact) IsRemoved() bool {
	return c.RemovedAt != nil
}

// DisplayName returns the best human-readable name for the contact.
func (c *Contact) DisplayName() string {
	if c.OrgName != "" {
		return c.OrgName
	}
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name != "" {
		return name
	}
	return c.Email
}

// Transaction is a financial owned record with exactly one owning contact.
type Transaction struct {
	ID           int64
	ContactID    int64
	AmountCents  int64
	Currency     string
	OccurredAt   time.Time
	SourceSystem string
}

// Subscription is a recurring owned record with exactly one owning contact.
type Subscription struct {
	ID        int64
	ContactID int64
	PlanName  string
	Status    string
	StartedAt time.Time
}

// Tag is a label definition shared across contacts.
type Tag struct {
	ID   int64
	Name string
}

// AddressValidation is the stored output of the external address-validation
// collaborator for one contact address slot. Consumed as a scoring signal
// only; never produced by this engine.
type AddressValidation struct {
	ContactID   int64
	Slot        int
	MatchCode   string
	Vacant      bool
	ValidatedAt time.Time
}

// Deliverable reports whether the validation corroborates a live, usable
// address. Anything but a confirmed match, or a vacancy flag, is neutral.
func (v AddressValidation) Deliverable() bool {
	return !v.Vacant && strings.EqualFold(v.MatchCode, MatchCodeConfirmed)
}

// MatchCodeConfirmed is the collaborator's code for a fully confirmed address.
const MatchCodeConfirmed = "confirmed"

// DecisionStatus is the persisted state of a candidate pair. Discovered and
// Scored are transient in-scan states; the first row lands at the routed
// status with signals and score attached.
type DecisionStatus string

const (
	StatusRejected      DecisionStatus = "rejected"
	StatusPendingReview DecisionStatus = "pending_review"
	StatusApproved      DecisionStatus = "approved"
	StatusMerged        DecisionStatus = "merged"
	StatusVerified      DecisionStatus = "verified"
)

var allDecisionStatuses = []DecisionStatus{
	StatusRejected,
	StatusPendingReview,
	StatusApproved,
	StatusMerged,
	StatusVerified,
}

var decisionStatusSet = func() map[DecisionStatus]struct{} {
	set := make(map[DecisionStatus]struct{}, len(allDecisionStatuses))
	for _, status := range allDecisionStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// decisionTransitions lists the legal append transitions for a pair's
// decision chain. Rejected and verified are terminal; pending review leaves
// only via explicit operator action.
var decisionTransitions = map[DecisionStatus][]DecisionStatus{
	StatusPendingReview: {StatusApproved, StatusRejected},
	StatusApproved:      {StatusMerged, StatusPendingReview},
	StatusMerged:        {StatusVerified},
}

// AllDecisionStatuses returns the ordered list of known statuses.
func AllDecisionStatuses() []DecisionStatus {
	cp := make([]DecisionStatus, len(allDecisionStatuses))
	copy(cp, allDecisionStatuses)
	return cp
}

// ParseDecisionStatus converts a string into a known DecisionStatus.
func ParseDecisionStatus(value string) (DecisionStatus, bool) {
	normalized := DecisionStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := decisionStatusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether appending a row at next is legal for a pair
// whose current status is from.
func CanTransition(from, next DecisionStatus) bool {
	for _, allowed := range decisionTransitions[from] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further rows may be appended for the pair.
func (s DecisionStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusVerified
}

// DecidedByScorer marks decision rows routed automatically by the scan.
// Any other decided_by value records an explicit operator action.
const DecidedByScorer = "scorer"

// Decision is one row of the append-only decision log. A pair's current
// state is its highest-id row; rows are never updated in place.
type Decision struct {
	ID           int64
	BatchID      string
	PairKey      string
	ContactAID   int64
	ContactBID   int64
	BlockKeys    []string
	SignalsJSON  string
	Score        int
	Tier         string
	Status       DecisionStatus
	Reason       string
	DecidedBy    string
	SupersedesID *int64
	CreatedAt    time.Time
}

// Backup is a full pre-merge snapshot of a duplicate contact. Immutable once
// written; it must be durably committed before the duplicate is touched.
type Backup struct {
	ID           int64
	BatchID      string
	DecisionID   int64
	DuplicateID  int64
	CanonicalID  int64
	SnapshotJSON string
	Reason       string
	CreatedAt    time.Time
}

// BatchStatus is the lifecycle of a batch run.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchHalted    BatchStatus = "halted"
)

// Batch records one run of the engine, including the verification sums.
type Batch struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Threshold       int
	DryRun          bool
	Status          BatchStatus
	PairsScored     int64
	MergesExecuted  int64
	ContactsRemoved int64
	PreSumCents     int64
	PostSumCents    int64
	HaltReason      string
}

// PairKey renders the canonical unordered key for two contact ids, smaller
// id first, so (A,B) and (B,A) collapse to one log entry.
func PairKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return formatID(a) + ":" + formatID(b)
}
