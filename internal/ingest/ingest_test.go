package ingest

import (
	"context"
	"strings"
	"testing"

	"coalesce/internal/logging"
	"coalesce/internal/store"
	"coalesce/internal/testsupport"
)

func newImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	return New(s, logging.NewNop()), s
}

const feed = `{"source_system":"crm","source_record_id":"c-1","email":"pat@example.com","first_name":"Pat","last_name":"Doyle","consent":true,"phone":"555-010-2000","addresses":[{"line1":"123 Main St","city":"Springfield","postal":"01101"}],"transactions":[{"amount_cents":2500}],"tags":["member"],"address_validations":[{"slot":0,"match_code":"confirmed"}]}
{"source_system":"crm","source_record_id":"c-2","org_name":"Acme Holdings LLC","subscriptions":[{"plan_name":"monthly"}]}
`

func TestRunImportsTypedRecords(t *testing.T) {
	importer, s := newImporter(t)
	ctx := context.Background()

	summary, err := importer.Run(ctx, strings.NewReader(feed))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Imported != 2 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	person, err := s.FindContactBySource(ctx, "crm", "c-1")
	if err != nil {
		t.Fatalf("find person: %v", err)
	}
	if person == nil {
		t.Fatal("expected imported person")
	}
	if person.NameKind != store.NamePerson {
		t.Fatalf("expected person kind, got %s", person.NameKind)
	}
	if !person.Consent {
		t.Fatal("consent lost on import")
	}
	if person.Addresses[0].Line1 != "123 Main St" {
		t.Fatalf("address not mapped: %+v", person.Addresses[0])
	}
	if count, _ := s.CountTransactions(ctx, person.ID); count != 1 {
		t.Fatalf("expected 1 transaction, got %d", count)
	}
	tags, _ := s.TagNames(ctx, person.ID)
	if len(tags) != 1 || tags[0] != "member" {
		t.Fatalf("expected member tag, got %v", tags)
	}
	validations, _ := s.AddressValidations(ctx, person.ID)
	if v, ok := validations[0]; !ok || !v.Deliverable() {
		t.Fatalf("expected deliverable validation on slot 0, got %+v", validations)
	}

	org, err := s.FindContactBySource(ctx, "crm", "c-2")
	if err != nil {
		t.Fatalf("find org: %v", err)
	}
	if org == nil {
		t.Fatal("expected imported organization")
	}
	if org.NameKind != store.NameOrganization {
		t.Fatalf("LLC name should classify as organization, got %s", org.NameKind)
	}
	if count, _ := s.CountSubscriptions(ctx, org.ID); count != 1 {
		t.Fatalf("expected 1 subscription, got %d", count)
	}
}

func TestReimportSkipsByProvenance(t *testing.T) {
	importer, s := newImporter(t)
	ctx := context.Background()

	if _, err := importer.Run(ctx, strings.NewReader(feed)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := importer.Run(ctx, strings.NewReader(feed))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Imported != 0 || summary.Skipped != 2 {
		t.Fatalf("re-import must skip existing provenance: %+v", summary)
	}

	count, err := s.CountLiveContacts(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 contacts after re-import, got %d", count)
	}
}

func TestBadLinesAreCountedNotFatal(t *testing.T) {
	importer, s := newImporter(t)
	ctx := context.Background()

	input := `not json
{"email":"missing@provenance.example"}
{"source_system":"crm","source_record_id":"ok-1","email":"ok@example.com"}
`
	summary, err := importer.Run(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 2 || summary.Imported != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	count, _ := s.CountLiveContacts(ctx)
	if count != 1 {
		t.Fatalf("expected 1 contact, got %d", count)
	}
}

func TestExplicitNameKindWinsOverClassifier(t *testing.T) {
	importer, s := newImporter(t)
	ctx := context.Background()

	input := `{"source_system":"crm","source_record_id":"k-1","org_name":"Acme Holdings LLC","name_kind":"person"}
`
	if _, err := importer.Run(ctx, strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}
	c, err := s.FindContactBySource(ctx, "crm", "k-1")
	if err != nil || c == nil {
		t.Fatalf("find contact: %v", err)
	}
	if c.NameKind != store.NamePerson {
		t.Fatalf("explicit kind must win, got %s", c.NameKind)
	}
}
