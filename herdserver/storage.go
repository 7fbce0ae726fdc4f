// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist for the owner.
// Records belonging to other owners are indistinguishable from missing
// ones on purpose.
var ErrNotFound = errors.New("herdserver: record not found")

// Storage is the persistence boundary of the service. Every method takes
// the authenticated owner id and must scope reads and writes to it.
type Storage interface {
	CreateAnimal(ctx context.Context, a Animal) (int64, error)
	UpdateAnimal(ctx context.Context, ownerID string, id int64, patch AnimalPatch) error
	DeleteAnimal(ctx context.Context, ownerID string, id int64) error
	ListAnimals(ctx context.Context, ownerID, status string) ([]Animal, error)

	CreateEvent(ctx context.Context, ev Event) (int64, error)
	ListEventsByAnimal(ctx context.Context, ownerID string, animalID int64) ([]Event, error)
}
