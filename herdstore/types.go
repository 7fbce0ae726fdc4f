// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

// Package herdstore provides the on-device durable store for the herd
// tracker: the queues of not-yet-confirmed animals and events, and the
// read cache mirroring the remote herd.
//
// Records live in SQLite and survive process restarts. Queue rows are
// identified by local ids that are only meaningful on this device; the
// remote store assigns canonical ids when a row is first accepted.
package herdstore

import (
	"fmt"
	"time"
)

// Ref identifies an animal either by a device-local temporary id or by
// the canonical id assigned by the remote store. A Ref is always exactly
// one of the two; construct it with LocalRef or CanonicalRef.
type Ref struct {
	id    int64
	local bool
}

// LocalRef returns a Ref for a device-local temporary id.
func LocalRef(id int64) Ref { return Ref{id: id, local: true} }

// CanonicalRef returns a Ref for a remote-assigned canonical id.
func CanonicalRef(id int64) Ref { return Ref{id: id} }

// IsLocal reports whether the Ref denotes a device-local temporary id.
func (r Ref) IsLocal() bool { return r.local }

// LocalID returns the local temporary id, or false if the Ref is canonical.
func (r Ref) LocalID() (int64, bool) {
	if !r.local {
		return 0, false
	}
	return r.id, true
}

// CanonicalID returns the canonical id, or false if the Ref is local.
func (r Ref) CanonicalID() (int64, bool) {
	if r.local {
		return 0, false
	}
	return r.id, true
}

func (r Ref) String() string {
	if r.local {
		return fmt.Sprintf("local:%d", r.id)
	}
	return fmt.Sprintf("animal:%d", r.id)
}

// Sex of an animal.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Status of an animal within the herd.
type Status string

const (
	StatusActive Status = "active"
	StatusSold   Status = "sold"
)

// Origin describes how an animal entered the herd.
type Origin string

const (
	OriginPurchased Origin = "purchased"
	OriginBorn      Origin = "born"
)

// Animal is one head of livestock. Identity (local id while pending,
// canonical id once synced) is carried by the surrounding row, never by
// the struct itself, so a pending animal can never leak a canonical id
// and vice versa.
type Animal struct {
	OwnerID         string
	TagLabel        string // ear tag ("brinco")
	Breed           string
	CurrentWeightKg float64
	Sex             Sex
	Category        string // life stage: calf, heifer, steer, cow, bull
	Status          Status
	Origin          Origin
	EntryDate       string // birth or purchase date, YYYY-MM-DD
	AcquisitionCost float64
	SireTag         string
	DamTag          string
	Photo           string // base64 payload, optional
	SalePrice       float64
	CreatedAt       time.Time
}

// Validate checks the fields that the remote store would reject, so bad
// rows are refused at enqueue time rather than surfacing as permanently
// stuck queue entries.
func (a *Animal) Validate() error {
	if a.OwnerID == "" {
		return fmt.Errorf("animal: owner id is required")
	}
	if a.TagLabel == "" {
		return fmt.Errorf("animal: tag label is required")
	}
	switch a.Sex {
	case SexMale, SexFemale:
	default:
		return fmt.Errorf("animal: invalid sex %q", a.Sex)
	}
	switch a.Status {
	case StatusActive, StatusSold:
	default:
		return fmt.Errorf("animal: invalid status %q", a.Status)
	}
	switch a.Origin {
	case OriginPurchased, OriginBorn:
	default:
		return fmt.Errorf("animal: invalid origin %q", a.Origin)
	}
	return nil
}

// EventKind classifies a time-stamped occurrence against an animal.
type EventKind string

const (
	KindWeighing    EventKind = "weighing"
	KindVaccination EventKind = "vaccination"
	KindMedication  EventKind = "medication"
	KindNote        EventKind = "note"
)

// Event is one time-stamped occurrence against an animal. AnimalRef may
// point at a pending animal (local ref) or a synced one (canonical ref);
// a local ref must be rewritten to canonical before the event can leave
// the device.
type Event struct {
	Kind        EventKind
	Description string
	Value       float64 // e.g. weight in kg for weighings
	Cost        float64
	OccurredAt  time.Time
	AnimalRef   Ref
}

// Validate checks event fields at enqueue time.
func (e *Event) Validate() error {
	switch e.Kind {
	case KindWeighing, KindVaccination, KindMedication, KindNote:
	default:
		return fmt.Errorf("event: invalid kind %q", e.Kind)
	}
	if e.Kind == KindWeighing && e.Value <= 0 {
		return fmt.Errorf("event: weighing requires a positive weight value")
	}
	return nil
}

// PendingAnimal is a queued animal awaiting its first remote write.
type PendingAnimal struct {
	LocalID  int64
	QueuedAt time.Time
	Animal   Animal
}

// PendingEvent is a queued event awaiting a remote write.
type PendingEvent struct {
	LocalID  int64
	QueuedAt time.Time
	Event    Event
}

// CacheEntry is the device mirror of one synced animal. It is replaced
// wholesale on every cache refresh and never treated as a write source.
type CacheEntry struct {
	CanonicalID int64
	Animal      Animal
}
