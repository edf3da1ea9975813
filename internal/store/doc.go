// Package store persists contacts, their owned records, the append-only
// merge decision log, pre-merge backups, and batch bookkeeping in SQLite.
//
// Decision rows are never updated in place. Each pair of contacts has a
// chain of rows linked by supersedes_id, and the highest-id row is the
// pair's current state. Contacts are never deleted either; a merged
// duplicate is tombstoned with removed_at and merged_into_id so its history
// stays resolvable.
package store
