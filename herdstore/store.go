// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a queue row does not exist.
var ErrNotFound = errors.New("herdstore: row not found")

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store is the durable on-device store. One instance is constructed at
// startup and handed to the sync engine and the UI layer; there is no
// process-wide singleton.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex // serialize writes to avoid SQLite lock contention
}

// Open opens (creating if needed) the store at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One pooled connection: every handle sees the same ":memory:"
	// database, and concurrent readers never hit SQLITE_BUSY against
	// the write path.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing SQLite handle, creating the schema if needed.
func New(db *sql.DB) (*Store, error) {
	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for callers that need ad hoc reads.
func (s *Store) DB() *sql.DB { return s.db }

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// AUTOINCREMENT keeps local ids monotonic and never reused, even
	// after deletes. Local and canonical ids are still kept apart by the
	// (ref, ref_local) column pair, not by numeric range.
	tables := []string{
		`CREATE TABLE IF NOT EXISTS device_info (
			owner_id   TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			PRIMARY KEY (owner_id)
		)`,

		`CREATE TABLE IF NOT EXISTS pending_animals (
			local_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id         TEXT NOT NULL,
			tag_label        TEXT NOT NULL,
			breed            TEXT NOT NULL DEFAULT '',
			weight_kg        REAL NOT NULL DEFAULT 0,
			sex              TEXT NOT NULL CHECK (sex IN ('male','female')),
			category         TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL CHECK (status IN ('active','sold')),
			origin           TEXT NOT NULL CHECK (origin IN ('purchased','born')),
			entry_date       TEXT NOT NULL DEFAULT '',
			acquisition_cost REAL NOT NULL DEFAULT 0,
			sire_tag         TEXT NOT NULL DEFAULT '',
			dam_tag          TEXT NOT NULL DEFAULT '',
			photo            TEXT NOT NULL DEFAULT '',
			sale_price       REAL NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,
			queued_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS pending_events (
			local_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			kind           TEXT NOT NULL CHECK (kind IN ('weighing','vaccination','medication','note')),
			description    TEXT NOT NULL DEFAULT '',
			value          REAL NOT NULL DEFAULT 0,
			cost           REAL NOT NULL DEFAULT 0,
			occurred_at    TEXT NOT NULL,
			animal_ref     INTEGER NOT NULL,
			animal_ref_local INTEGER NOT NULL CHECK (animal_ref_local IN (0,1)),
			queued_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS cache (
			canonical_id     INTEGER PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			tag_label        TEXT NOT NULL,
			breed            TEXT NOT NULL DEFAULT '',
			weight_kg        REAL NOT NULL DEFAULT 0,
			sex              TEXT NOT NULL,
			category         TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			origin           TEXT NOT NULL,
			entry_date       TEXT NOT NULL DEFAULT '',
			acquisition_cost REAL NOT NULL DEFAULT 0,
			sire_tag         TEXT NOT NULL DEFAULT '',
			dam_tag          TEXT NOT NULL DEFAULT '',
			photo            TEXT NOT NULL DEFAULT '',
			sale_price       REAL NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pending_events_parent
			ON pending_events (animal_ref, animal_ref_local)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// EnsureDeviceID returns the persisted device id for the owner, creating
// one on first use. The id rides along in auth tokens so the remote can
// tell devices apart.
func (s *Store) EnsureDeviceID(ctx context.Context, ownerID string, generate func() string) (string, error) {
	var deviceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id FROM device_info WHERE owner_id = ?`, ownerID).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = generate()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO device_info (owner_id, device_id) VALUES (?, ?)`, ownerID, deviceID); err != nil {
			return "", fmt.Errorf("failed to insert device info: %w", err)
		}
		return deviceID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query device info: %w", err)
	}
	return deviceID, nil
}

// AddPendingAnimal validates and enqueues a locally created animal,
// returning its local temporary id.
func (s *Store) AddPendingAnimal(ctx context.Context, a Animal) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_animals
			(owner_id, tag_label, breed, weight_kg, sex, category, status, origin,
			 entry_date, acquisition_cost, sire_tag, dam_tag, photo, sale_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.OwnerID, a.TagLabel, a.Breed, a.CurrentWeightKg, string(a.Sex), a.Category,
		string(a.Status), string(a.Origin), a.EntryDate, a.AcquisitionCost,
		a.SireTag, a.DamTag, a.Photo, a.SalePrice, a.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue animal: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read local id: %w", err)
	}
	return localID, nil
}

// AddPendingEvent validates and enqueues a locally created event,
// returning its local temporary id.
func (s *Store) AddPendingEvent(ctx context.Context, e Event) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	refLocal := 0
	if e.AnimalRef.IsLocal() {
		refLocal = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_events
			(kind, description, value, cost, occurred_at, animal_ref, animal_ref_local)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(e.Kind), e.Description, e.Value, e.Cost,
		e.OccurredAt.UTC().Format(timeLayout), e.AnimalRef.id, refLocal)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue event: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read local id: %w", err)
	}
	return localID, nil
}

// ListPendingAnimals returns queued animals in FIFO enqueue order.
func (s *Store) ListPendingAnimals(ctx context.Context) ([]PendingAnimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, owner_id, tag_label, breed, weight_kg, sex, category, status,
		       origin, entry_date, acquisition_cost, sire_tag, dam_tag, photo,
		       sale_price, created_at, queued_at
		FROM pending_animals
		ORDER BY queued_at, local_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending animals: %w", err)
	}
	defer rows.Close()

	var out []PendingAnimal
	for rows.Next() {
		var p PendingAnimal
		var sex, status, origin, createdAt, queuedAt string
		if err := rows.Scan(&p.LocalID, &p.Animal.OwnerID, &p.Animal.TagLabel,
			&p.Animal.Breed, &p.Animal.CurrentWeightKg, &sex, &p.Animal.Category,
			&status, &origin, &p.Animal.EntryDate, &p.Animal.AcquisitionCost,
			&p.Animal.SireTag, &p.Animal.DamTag, &p.Animal.Photo,
			&p.Animal.SalePrice, &createdAt, &queuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending animal: %w", err)
		}
		p.Animal.Sex = Sex(sex)
		p.Animal.Status = Status(status)
		p.Animal.Origin = Origin(origin)
		p.Animal.CreatedAt = parseTime(createdAt)
		p.QueuedAt = parseTime(queuedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending animals: %w", err)
	}
	return out, nil
}

// ListPendingEvents returns queued events in FIFO enqueue order.
func (s *Store) ListPendingEvents(ctx context.Context) ([]PendingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, kind, description, value, cost, occurred_at,
		       animal_ref, animal_ref_local, queued_at
		FROM pending_events
		ORDER BY queued_at, local_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var out []PendingEvent
	for rows.Next() {
		p, err := scanPendingEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending events: %w", err)
	}
	return out, nil
}

func scanPendingEvent(rows *sql.Rows) (PendingEvent, error) {
	var p PendingEvent
	var kind, occurredAt, queuedAt string
	var ref int64
	var refLocal int
	if err := rows.Scan(&p.LocalID, &kind, &p.Event.Description, &p.Event.Value,
		&p.Event.Cost, &occurredAt, &ref, &refLocal, &queuedAt); err != nil {
		return p, fmt.Errorf("failed to scan pending event: %w", err)
	}
	p.Event.Kind = EventKind(kind)
	p.Event.OccurredAt = parseTime(occurredAt)
	p.QueuedAt = parseTime(queuedAt)
	if refLocal == 1 {
		p.Event.AnimalRef = LocalRef(ref)
	} else {
		p.Event.AnimalRef = CanonicalRef(ref)
	}
	return p, nil
}

// DeletePendingAnimal removes a queue row after its remote write was
// confirmed. Dependent events are expected to have been reparented
// already; use DiscardPendingAnimal for user-initiated deletion.
func (s *Store) DeletePendingAnimal(ctx context.Context, localID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.deleteRow(ctx, `DELETE FROM pending_animals WHERE local_id = ?`, localID)
}

// DiscardPendingAnimal removes a still-pending animal at the user's
// request, cascade-deleting queued events that still reference its local
// id. Once the animal is gone those events could never resolve a parent,
// so keeping them would strand the queue.
func (s *Store) DiscardPendingAnimal(ctx context.Context, localID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_animals WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete pending animal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_events WHERE animal_ref = ? AND animal_ref_local = 1`, localID); err != nil {
		return fmt.Errorf("failed to cascade delete pending events: %w", err)
	}
	return tx.Commit()
}

// DeletePendingEvent removes a queue row after its remote write was
// confirmed.
func (s *Store) DeletePendingEvent(ctx context.Context, localID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.deleteRow(ctx, `DELETE FROM pending_events WHERE local_id = ?`, localID)
}

func (s *Store) deleteRow(ctx context.Context, query string, localID int64) error {
	res, err := s.db.ExecContext(ctx, query, localID)
	if err != nil {
		return fmt.Errorf("failed to delete row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RewriteEventParent rewrites one queued event's parent reference.
func (s *Store) RewriteEventParent(ctx context.Context, localID int64, newParent Ref) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	refLocal := 0
	if newParent.IsLocal() {
		refLocal = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_events SET animal_ref = ?, animal_ref_local = ? WHERE local_id = ?
	`, newParent.id, refLocal, localID)
	if err != nil {
		return fmt.Errorf("failed to rewrite event parent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReparentPendingEvents rewrites every queued event whose parent is the
// given local animal id to the canonical id the remote just assigned.
// Returns the number of events rewritten.
func (s *Store) ReparentPendingEvents(ctx context.Context, parentLocalID, canonicalID int64) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_events SET animal_ref = ?, animal_ref_local = 0
		WHERE animal_ref = ? AND animal_ref_local = 1
	`, canonicalID, parentLocalID)
	if err != nil {
		return 0, fmt.Errorf("failed to reparent pending events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

// ReplaceCache swaps the read cache wholesale: clear then bulk insert,
// never an incremental patch, so stale rows cannot accumulate.
func (s *Store) ReplaceCache(ctx context.Context, entries []CacheEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache
			(canonical_id, owner_id, tag_label, breed, weight_kg, sex, category, status,
			 origin, entry_date, acquisition_cost, sire_tag, dam_tag, photo, sale_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		a := e.Animal
		if _, err := stmt.ExecContext(ctx, e.CanonicalID, a.OwnerID, a.TagLabel,
			a.Breed, a.CurrentWeightKg, string(a.Sex), a.Category, string(a.Status),
			string(a.Origin), a.EntryDate, a.AcquisitionCost, a.SireTag, a.DamTag,
			a.Photo, a.SalePrice, a.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("failed to insert cache entry %d: %w", e.CanonicalID, err)
		}
	}
	return tx.Commit()
}

// ReadCache returns the mirrored animal set, newest first, for offline
// display.
func (s *Store) ReadCache(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical_id, owner_id, tag_label, breed, weight_kg, sex, category,
		       status, origin, entry_date, acquisition_cost, sire_tag, dam_tag,
		       photo, sale_price, created_at
		FROM cache
		ORDER BY created_at DESC, canonical_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var sex, status, origin, createdAt string
		if err := rows.Scan(&e.CanonicalID, &e.Animal.OwnerID, &e.Animal.TagLabel,
			&e.Animal.Breed, &e.Animal.CurrentWeightKg, &sex, &e.Animal.Category,
			&status, &origin, &e.Animal.EntryDate, &e.Animal.AcquisitionCost,
			&e.Animal.SireTag, &e.Animal.DamTag, &e.Animal.Photo,
			&e.Animal.SalePrice, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.Animal.Sex = Sex(sex)
		e.Animal.Status = Status(status)
		e.Animal.Origin = Origin(origin)
		e.Animal.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache: %w", err)
	}
	return out, nil
}

// UpdateCachedWeight patches one cached animal's displayed weight after a
// weighing is queued offline, so the list stays plausible until the next
// full refresh overwrites it with the remote truth.
func (s *Store) UpdateCachedWeight(ctx context.Context, canonicalID int64, weightKg float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache SET weight_kg = ? WHERE canonical_id = ?`, weightKg, canonicalID); err != nil {
		return fmt.Errorf("failed to update cached weight: %w", err)
	}
	return nil
}

// PendingAnimalCount returns the number of queued animals.
func (s *Store) PendingAnimalCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM pending_animals`)
}

// PendingEventCount returns the number of queued events.
func (s *Store) PendingEventCount(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM pending_events`)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

func parseTime(v string) time.Time {
	for _, layout := range []string{timeLayout, "2006-01-02T15:04:05.000Z", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
