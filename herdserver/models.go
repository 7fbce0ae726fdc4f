// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

// Package herdserver is the authoritative herd store service: an HTTP
// API over owner-scoped animal and event collections. It assigns
// canonical ids on creation and is the single source of truth once a
// record is synced; devices only mirror it.
package herdserver

import (
	"fmt"
	"time"
)

// Animal is one authoritative herd record. ID is the canonical id,
// assigned on creation and never reused.
type Animal struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	TagLabel        string    `json:"tag_label"`
	Breed           string    `json:"breed"`
	CurrentWeightKg float64   `json:"weight_kg"`
	Sex             string    `json:"sex"`
	Category        string    `json:"category"`
	Status          string    `json:"status"`
	Origin          string    `json:"origin"`
	EntryDate       string    `json:"entry_date"`
	AcquisitionCost float64   `json:"acquisition_cost"`
	SireTag         string    `json:"sire_tag"`
	DamTag          string    `json:"dam_tag"`
	Photo           string    `json:"photo,omitempty"`
	SalePrice       float64   `json:"sale_price"`
	CreatedAt       time.Time `json:"created_at"`
}

// Event is one authoritative time-stamped record against an animal.
type Event struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	AnimalID    int64     `json:"animal_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	Cost        float64   `json:"cost"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// AnimalPatch carries a partial update. Nil fields are left untouched.
type AnimalPatch struct {
	CurrentWeightKg *float64 `json:"weight_kg,omitempty"`
	Status          *string  `json:"status,omitempty"`
	SalePrice       *float64 `json:"sale_price,omitempty"`
	Photo           *string  `json:"photo,omitempty"`
}

func (a *Animal) validate() error {
	if a.TagLabel == "" {
		return fmt.Errorf("tag_label is required")
	}
	switch a.Sex {
	case "male", "female":
	default:
		return fmt.Errorf("invalid sex %q", a.Sex)
	}
	switch a.Status {
	case "active", "sold":
	default:
		return fmt.Errorf("invalid status %q", a.Status)
	}
	switch a.Origin {
	case "purchased", "born":
	default:
		return fmt.Errorf("invalid origin %q", a.Origin)
	}
	return nil
}

func (e *Event) validate() error {
	switch e.Kind {
	case "weighing", "vaccination", "medication", "note":
	default:
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if e.AnimalID <= 0 {
		return fmt.Errorf("animal_id is required")
	}
	return nil
}

func (p *AnimalPatch) validate() error {
	if p.CurrentWeightKg == nil && p.Status == nil && p.SalePrice == nil && p.Photo == nil {
		return fmt.Errorf("patch has no fields")
	}
	if p.Status != nil {
		switch *p.Status {
		case "active", "sold":
		default:
			return fmt.Errorf("invalid status %q", *p.Status)
		}
	}
	return nil
}
