// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage used by tests and the demo
// server. Canonical ids come from an in-process counter.
type MemoryStorage struct {
	mu       sync.RWMutex
	animals  map[int64]Animal
	events   map[int64]Event
	nextID   int64
	nextEvID int64
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		animals: make(map[int64]Animal),
		events:  make(map[int64]Event),
	}
}

func (m *MemoryStorage) CreateAnimal(_ context.Context, a Animal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.animals[a.ID] = a
	return a.ID, nil
}

func (m *MemoryStorage) UpdateAnimal(_ context.Context, ownerID string, id int64, patch AnimalPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.animals[id]
	if !ok || a.OwnerID != ownerID {
		return ErrNotFound
	}
	if patch.CurrentWeightKg != nil {
		a.CurrentWeightKg = *patch.CurrentWeightKg
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.SalePrice != nil {
		a.SalePrice = *patch.SalePrice
	}
	if patch.Photo != nil {
		a.Photo = *patch.Photo
	}
	m.animals[id] = a
	return nil
}

func (m *MemoryStorage) DeleteAnimal(_ context.Context, ownerID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.animals[id]
	if !ok || a.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.animals, id)
	for evID, ev := range m.events {
		if ev.AnimalID == id {
			delete(m.events, evID)
		}
	}
	return nil
}

func (m *MemoryStorage) ListAnimals(_ context.Context, ownerID, status string) ([]Animal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Animal
	for _, a := range m.animals {
		if a.OwnerID != ownerID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStorage) CreateEvent(_ context.Context, ev Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.animals[ev.AnimalID]
	if !ok || a.OwnerID != ev.OwnerID {
		return 0, ErrNotFound
	}
	m.nextEvID++
	ev.ID = m.nextEvID
	m.events[ev.ID] = ev
	return ev.ID, nil
}

func (m *MemoryStorage) ListEventsByAnimal(_ context.Context, ownerID string, animalID int64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.animals[animalID]
	if !ok || a.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	var out []Event
	for _, ev := range m.events {
		if ev.AnimalID == animalID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
