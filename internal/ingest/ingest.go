// Package ingest reads upstream contact records into the store. Input is
// line-delimited JSON, one typed record per line, each carrying a
// provenance tag (source system plus source-specific id). Records whose
// provenance already exists are skipped, so re-importing a feed is safe.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"coalesce/internal/logging"
	"coalesce/internal/normalize"
	"coalesce/internal/services"
	"coalesce/internal/store"
)

// Record is the typed intake shape for one contact from one source system.
// Optional sections are explicit fields, never ad-hoc payload lookup.
type Record struct {
	SourceSystem   string `json:"source_system"`
	SourceRecordID string `json:"source_record_id"`

	Email     string   `json:"email,omitempty"`
	AltEmails []string `json:"alt_emails,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	LastName  string   `json:"last_name,omitempty"`
	OrgName   string   `json:"org_name,omitempty"`
	NameKind  string   `json:"name_kind,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Consent   bool     `json:"consent,omitempty"`

	Addresses     []AddressRecord      `json:"addresses,omitempty"`
	Transactions  []TransactionRecord  `json:"transactions,omitempty"`
	Subscriptions []SubscriptionRecord `json:"subscriptions,omitempty"`
	Tags          []string             `json:"tags,omitempty"`
	Validations   []ValidationRecord   `json:"address_validations,omitempty"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// AddressRecord is one postal address from the source feed. Only the first
// two map onto the contact's address slots.
type AddressRecord struct {
	Line1  string `json:"line1,omitempty"`
	City   string `json:"city,omitempty"`
	Region string `json:"region,omitempty"`
	Postal string `json:"postal,omitempty"`
}

// TransactionRecord is one financial event owned by the contact.
type TransactionRecord struct {
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency,omitempty"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
}

// SubscriptionRecord is one recurring relationship owned by the contact.
type SubscriptionRecord struct {
	PlanName  string     `json:"plan_name"`
	Status    string     `json:"status,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// ValidationRecord is an external address-validation result for one slot.
type ValidationRecord struct {
	Slot        int        `json:"slot"`
	MatchCode   string     `json:"match_code"`
	Vacant      bool       `json:"vacant,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

// Summary tallies one import run.
type Summary struct {
	CorrelationID string `json:"correlation_id"`
	Imported      int    `json:"imported"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
}

// Importer loads records into a store.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
}

// New builds an importer. A nil logger logs nowhere.
func New(st *store.Store, logger *slog.Logger) *Importer {
	return &Importer{store: st, logger: logging.NewComponentLogger(logger, "ingest")}
}

// Run imports every record from r. Bad lines are counted and logged, not
// fatal; the remaining feed still imports.
func (i *Importer) Run(ctx context.Context, r io.Reader) (*Summary, error) {
	summary := &Summary{CorrelationID: uuid.NewString()}
	logger := i.logger.With(logging.String("correlation_id", summary.CorrelationID))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			summary.Failed++
			logging.ErrorWithContext(logger, "skipping malformed record", "import_record_failed",
				logging.Int("line", line),
				logging.Error(err),
			)
			continue
		}

		imported, err := i.importRecord(ctx, &record)
		if err != nil {
			summary.Failed++
			logging.ErrorWithContext(logger, "skipping invalid record", "import_record_failed",
				logging.Int("line", line),
				logging.String("source_system", record.SourceSystem),
				logging.Error(err),
			)
			continue
		}
		if imported {
			summary.Imported++
		} else {
			summary.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, services.Wrap(services.ErrTransient, "import", "read input", "", err)
	}

	logger.Info("import finished",
		logging.String(logging.FieldEventType, "import_finished"),
		logging.Int("contacts_imported", summary.Imported),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (i *Importer) importRecord(ctx context.Context, record *Record) (bool, error) {
	if err := record.validate(); err != nil {
		return false, err
	}

	existing, err := i.store.FindContactBySource(ctx, record.SourceSystem, record.SourceRecordID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	contact := record.toContact()
	inserted, err := i.store.InsertContact(ctx, contact)
	if err != nil {
		return false, err
	}

	for _, txn := range record.Transactions {
		t := &store.Transaction{
			ContactID:    inserted.ID,
			AmountCents:  txn.AmountCents,
			Currency:     txn.Currency,
			SourceSystem: record.SourceSystem,
		}
		if txn.OccurredAt != nil {
			t.OccurredAt = *txn.OccurredAt
		}
		if _, err := i.store.InsertTransaction(ctx, t); err != nil {
			return false, err
		}
	}
	for _, sub := range record.Subscriptions {
		s := &store.Subscription{ContactID: inserted.ID, PlanName: sub.PlanName, Status: sub.Status}
		if sub.StartedAt != nil {
			s.StartedAt = *sub.StartedAt
		}
		if _, err := i.store.InsertSubscription(ctx, s); err != nil {
			return false, err
		}
	}
	for _, name := range record.Tags {
		tagID, err := i.store.EnsureTag(ctx, name)
		if err != nil {
			return false, err
		}
		if err := i.store.AssignTag(ctx, inserted.ID, tagID); err != nil {
			return false, err
		}
	}
	for _, v := range record.Validations {
		validation := &store.AddressValidation{
			ContactID: inserted.ID,
			Slot:      v.Slot,
			MatchCode: v.MatchCode,
			Vacant:    v.Vacant,
		}
		if v.ValidatedAt != nil {
			validation.ValidatedAt = *v.ValidatedAt
		}
		if err := i.store.UpsertAddressValidation(ctx, validation); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Record) validate() error {
	if strings.TrimSpace(r.SourceSystem) == "" || strings.TrimSpace(r.SourceRecordID) == "" {
		return services.Wrap(services.ErrValidation, "import", "provenance",
			"source_system and source_record_id are required", nil)
	}
	if len(r.Addresses) > 2 {
		return services.Wrap(services.ErrValidation, "import", "addresses",
			fmt.Sprintf("at most 2 addresses supported, got %d", len(r.Addresses)), nil)
	}
	for _, v := range r.Validations {
		if v.Slot != 0 && v.Slot != 1 {
			return services.Wrap(services.ErrValidation, "import", "validations",
				fmt.Sprintf("invalid address slot %d", v.Slot), nil)
		}
	}
	return nil
}

func (r *Record) toContact() *store.Contact {
	contact := &store.Contact{
		Email:          r.Email,
		AltEmails:      r.AltEmails,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		OrgName:        r.OrgName,
		NameKind:       resolveNameKind(r),
		Phone:          r.Phone,
		Consent:        r.Consent,
		SourceSystem:   r.SourceSystem,
		SourceRecordID: r.SourceRecordID,
	}
	for slot, addr := range r.Addresses {
		if slot > 1 {
			break
		}
		contact.Addresses[slot] = store.Address{
			Line1:  addr.Line1,
			City:   addr.City,
			Region: addr.Region,
			Postal: addr.Postal,
		}
	}
	if r.CreatedAt != nil {
		contact.CreatedAt = r.CreatedAt.UTC()
	}
	return contact
}

// resolveNameKind honors an explicit kind from the feed; untagged records
// fall back to the keyword classifier.
func resolveNameKind(r *Record) store.NameKind {
	if kind := store.ParseNameKind(r.NameKind); kind != store.NameUnknown {
		return kind
	}
	if r.OrgName != "" {
		if normalize.LooksLikeOrganization(r.OrgName) {
			return store.NameOrganization
		}
		return store.NameUnknown
	}
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	switch {
	case name == "":
		return store.NameUnknown
	case normalize.LooksLikeOrganization(name):
		return store.NameOrganization
	default:
		return store.NamePerson
	}
}
