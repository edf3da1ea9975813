package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const contactColumns = "id, email, alt_emails, first_name, last_name, org_name, name_kind, phone, " +
	"addr1_line1, addr1_city, addr1_region, addr1_postal, " +
	"addr2_line1, addr2_city, addr2_region, addr2_postal, " +
	"consent, source_system, source_record_id, created_at, updated_at, " +
	"removed_at, removal_reason, removed_batch_id, merged_into_id"

func scanContact(scanner rowScanner) (*Contact, error) {
	var (
		id             int64
		email          sql.NullString
		altEmails      sql.NullString
		firstName      sql.NullString
		lastName       sql.NullString
		orgName        sql.NullString
		nameKind       sql.NullString
		phone          sql.NullString
		addr1Line1     sql.NullString
		addr1City      sql.NullString
		addr1Region    sql.NullString
		addr1Postal    sql.NullString
		addr2Line1     sql.NullString
		addr2City      sql.NullString
		addr2Region    sql.NullString
		addr2Postal    sql.NullString
		consent        sql.NullInt64
		sourceSystem   sql.NullString
		sourceRecordID sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		removedRaw     sql.NullString
		removalReason  sql.NullString
		removedBatchID sql.NullString
		mergedIntoID   sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&email,
		&altEmails,
		&firstName,
		&lastName,
		&orgName,
		&nameKind,
		&phone,
		&addr1Line1,
		&addr1City,
		&addr1Region,
		&addr1Postal,
		&addr2Line1,
		&addr2City,
		&addr2Region,
		&addr2Postal,
		&consent,
		&sourceSystem,
		&sourceRecordID,
		&createdRaw,
		&updatedRaw,
		&removedRaw,
		&removalReason,
		&removedBatchID,
		&mergedIntoID,
	); err != nil {
		return nil, err
	}

	contact := &Contact{
		ID:             id,
		Email:          email.String,
		AltEmails:      unmarshalStrings(altEmails.String),
		FirstName:      firstName.String,
		LastName:       lastName.String,
		OrgName:        orgName.String,
		NameKind:       ParseNameKind(nameKind.String),
		Phone:          phone.String,
		Consent:        consent.Valid && consent.Int64 != 0,
		SourceSystem:   sourceSystem.String,
		SourceRecordID: sourceRecordID.String,
		RemovalReason:  removalReason.String,
		RemovedBatchID: removedBatchID.String,
	}
	contact.Addresses[0] = Address{Line1: addr1Line1.String, City: addr1City.String, Region: addr1Region.String, Postal: addr1Postal.String}
	contact.Addresses[1] = Address{Line1: addr2Line1.String, City: addr2City.String, Region: addr2Region.String, Postal: addr2Postal.String}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		contact.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		contact.UpdatedAt = updated
	}
	contact.RemovedAt = scanNullTime(removedRaw)
	if mergedIntoID.Valid {
		v := mergedIntoID.Int64
		contact.MergedIntoID = &v
	}
	return contact, nil
}

func contactInsertArgs(c *Contact, created, updated string) []any {
	return []any{
		nullableString(c.Email),
		marshalStrings(c.AltEmails),
		nullableString(c.FirstName),
		nullableString(c.LastName),
		nullableString(c.OrgName),
		string(c.NameKind),
		nullableString(c.Phone),
		nullableString(c.Addresses[0].Line1),
		nullableString(c.Addresses[0].City),
		nullableString(c.Addresses[0].Region),
		nullableString(c.Addresses[0].Postal),
		nullableString(c.Addresses[1].Line1),
		nullableString(c.Addresses[1].City),
		nullableString(c.Addresses[1].Region),
		nullableString(c.Addresses[1].Postal),
		boolToInt(c.Consent),
		nullableString(c.SourceSystem),
		nullableString(c.SourceRecordID),
		created,
		updated,
	}
}

// InsertContact persists a new contact and returns it with its identifier set.
func (s *Store) InsertContact(ctx context.Context, contact *Contact) (*Contact, error) {
	if contact == nil {
		return nil, errors.New("contact is nil")
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	if contact.NameKind == "" {
		contact.NameKind = NameUnknown
	}
	created := formatTime(contact.CreatedAt)
	updated := formatTime(now)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO contacts (
            email, alt_emails, first_name, last_name, org_name, name_kind, phone,
            addr1_line1, addr1_city, addr1_region, addr1_postal,
            addr2_line1, addr2_city, addr2_region, addr2_postal,
            consent, source_system, source_record_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contactInsertArgs(contact, created, updated)...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetContact(ctx, id)
}

// GetContact fetches a contact by identifier. Returns nil when absent.
func (s *Store) GetContact(ctx context.Context, id int64) (*Contact, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// FindContactBySource returns the contact imported for a provenance pair, if any.
func (s *Store) FindContactBySource(ctx context.Context, sourceSystem, sourceRecordID string) (*Contact, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+contactColumns+` FROM contacts WHERE source_system = ? AND source_record_id = ? ORDER BY id LIMIT 1`,
		sourceSystem, sourceRecordID,
	)
	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find contact by source: %w", err)
	}
	return contact, nil
}

// LiveContacts returns all non-removed contacts in identifier order.
func (s *Store) LiveContacts(ctx context.Context) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+contactColumns+` FROM contacts WHERE removed_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query live contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// CountLiveContacts returns the number of non-removed contacts.
func (s *Store) CountLiveContacts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM contacts WHERE removed_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count live contacts: %w", err)
	}
	return count, nil
}
