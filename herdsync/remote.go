// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

// Package herdsync drains the device's pending queues against the
// authoritative remote store when connectivity allows, remapping local
// animal ids to the canonical ids the remote assigns so that queued
// events always reach the remote with a resolvable parent.
package herdsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/elitonnmelo/faceboi-app/herdstore"
)

// RemoteStore is the authoritative backing store as the engine sees it.
// Every call is scoped to the authenticated owner by the implementation;
// the engine never reaches around that scoping.
type RemoteStore interface {
	// CreateAnimal submits a new animal and returns its canonical id.
	CreateAnimal(ctx context.Context, a herdstore.Animal) (int64, error)

	// CreateEvent submits a new event. The event's AnimalRef must be
	// canonical; implementations may assume the engine enforced that.
	CreateEvent(ctx context.Context, e herdstore.Event) (int64, error)

	// UpdateAnimalWeight sets the animal's current-weight field, which
	// the remote materializes from the latest weighing.
	UpdateAnimalWeight(ctx context.Context, canonicalID int64, weightKg float64) error

	// ListActiveAnimals fetches the owner's full active herd for a
	// wholesale cache refresh.
	ListActiveAnimals(ctx context.Context) ([]herdstore.CacheEntry, error)
}

// RemoteError is a rejection the remote store itself produced (validation
// or authorization), as opposed to the transport failing. Both leave the
// item queued for the next pass; the distinction only feeds logging and
// metrics since there is no dead-letter path.
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRejection reports whether err is a remote-side rejection rather than
// a transient transport failure.
func IsRejection(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
