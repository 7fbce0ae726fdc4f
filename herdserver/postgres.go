// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage is the production Storage backed by a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage wraps an existing pool and creates the schema if
// needed.
func NewPostgresStorage(ctx context.Context, pool *pgxpool.Pool) (*PostgresStorage, error) {
	s := &PostgresStorage{pool: pool}
	if err := s.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		migrations := []string{
			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS animals (
				id               BIGSERIAL PRIMARY KEY,
				owner_id         TEXT NOT NULL,
				tag_label        TEXT NOT NULL,
				breed            TEXT NOT NULL DEFAULT '',
				weight_kg        DOUBLE PRECISION NOT NULL DEFAULT 0,
				sex              TEXT NOT NULL CHECK (sex IN ('male','female')),
				category         TEXT NOT NULL DEFAULT '',
				status           TEXT NOT NULL CHECK (status IN ('active','sold')),
				origin           TEXT NOT NULL CHECK (origin IN ('purchased','born')),
				entry_date       TEXT NOT NULL DEFAULT '',
				acquisition_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
				sire_tag         TEXT NOT NULL DEFAULT '',
				dam_tag          TEXT NOT NULL DEFAULT '',
				photo            TEXT NOT NULL DEFAULT '',
				sale_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS idx_animals_owner_status
				ON animals (owner_id, status)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS events (
				id          BIGSERIAL PRIMARY KEY,
				owner_id    TEXT NOT NULL,
				animal_id   BIGINT NOT NULL REFERENCES animals(id) ON DELETE CASCADE,
				kind        TEXT NOT NULL CHECK (kind IN ('weighing','vaccination','medication','note')),
				description TEXT NOT NULL DEFAULT '',
				value       DOUBLE PRECISION NOT NULL DEFAULT 0,
				cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
				occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS idx_events_animal
				ON events (owner_id, animal_id, occurred_at DESC)`,
		}
		for _, migration := range migrations {
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStorage) CreateAnimal(ctx context.Context, a Animal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO animals
			(owner_id, tag_label, breed, weight_kg, sex, category, status, origin,
			 entry_date, acquisition_cost, sire_tag, dam_tag, photo, sale_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, a.OwnerID, a.TagLabel, a.Breed, a.CurrentWeightKg, a.Sex, a.Category,
		a.Status, a.Origin, a.EntryDate, a.AcquisitionCost, a.SireTag, a.DamTag,
		a.Photo, a.SalePrice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert animal: %w", err)
	}
	return id, nil
}

func (s *PostgresStorage) UpdateAnimal(ctx context.Context, ownerID string, id int64, patch AnimalPatch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 6)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.CurrentWeightKg != nil {
		add("weight_kg", *patch.CurrentWeightKg)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.SalePrice != nil {
		add("sale_price", *patch.SalePrice)
	}
	if patch.Photo != nil {
		add("photo", *patch.Photo)
	}
	args = append(args, id, ownerID)
	query := fmt.Sprintf(`UPDATE animals SET %s WHERE id = $%d AND owner_id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update animal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteAnimal(ctx context.Context, ownerID string, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM animals WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete animal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) ListAnimals(ctx context.Context, ownerID, status string) ([]Animal, error) {
	query := `
		SELECT id, owner_id, tag_label, breed, weight_kg, sex, category, status,
		       origin, entry_date, acquisition_cost, sire_tag, dam_tag, photo,
		       sale_price, created_at
		FROM animals
		WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query animals: %w", err)
	}
	defer rows.Close()

	var out []Animal
	for rows.Next() {
		var a Animal
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.TagLabel, &a.Breed,
			&a.CurrentWeightKg, &a.Sex, &a.Category, &a.Status, &a.Origin,
			&a.EntryDate, &a.AcquisitionCost, &a.SireTag, &a.DamTag, &a.Photo,
			&a.SalePrice, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan animal: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating animals: %w", err)
	}
	return out, nil
}

func (s *PostgresStorage) CreateEvent(ctx context.Context, ev Event) (int64, error) {
	// The insert is owner-scoped through the parent lookup so an owner
	// cannot attach events to someone else's animal.
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO events (owner_id, animal_id, kind, description, value, cost, occurred_at)
		SELECT $1, a.id, $3, $4, $5, $6, $7
		FROM animals a WHERE a.id = $2 AND a.owner_id = $1
		RETURNING id
	`, ev.OwnerID, ev.AnimalID, ev.Kind, ev.Description, ev.Value, ev.Cost,
		ev.OccurredAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (s *PostgresStorage) ListEventsByAnimal(ctx context.Context, ownerID string, animalID int64) ([]Event, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM animals WHERE id = $1 AND owner_id = $2)`,
		animalID, ownerID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check animal: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, animal_id, kind, description, value, cost, occurred_at
		FROM events
		WHERE owner_id = $1 AND animal_id = $2
		ORDER BY occurred_at DESC, id DESC
	`, ownerID, animalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.AnimalID, &ev.Kind,
			&ev.Description, &ev.Value, &ev.Cost, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}
