// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

// Package herdremote is the device-side HTTP client for the herd API.
// It implements herdsync.RemoteStore plus the online-path operations the
// UI uses directly (sale, photo update, deletion, event history).
package herdremote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elitonnmelo/faceboi-app/herdstore"
	"github.com/elitonnmelo/faceboi-app/herdsync"
)

// TokenFunc returns a bearer token for the current owner/device.
type TokenFunc func(ctx context.Context) (string, error)

// Client talks to the herd API.
type Client struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type animalWire struct {
	ID              int64     `json:"id,omitempty"`
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
	OwnerID         string    `json:"owner_id,omitempty"`
}

type eventWire struct {
	ID          int64     `json:"id,omitempty"`
	AnimalID    int64     `json:"animal_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	Cost        float64   `json:"cost"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type idWire struct {
	ID int64 `json:"id"`
}

type errorWire struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AnimalPatch is a partial animal update; nil fields are untouched.
type AnimalPatch struct {
	CurrentWeightKg *float64 `json:"weight_kg,omitempty"`
	Status          *string  `json:"status,omitempty"`
	SalePrice       *float64 `json:"sale_price,omitempty"`
	Photo           *string  `json:"photo,omitempty"`
}

// RemoteEvent is an event as the remote returns it.
type RemoteEvent struct {
	ID          int64
	AnimalID    int64
	Kind        herdstore.EventKind
	Description string
	Value       float64
	Cost        float64
	OccurredAt  time.Time
}

func animalToWire(a herdstore.Animal) animalWire {
	return animalWire{
		TagLabel:        a.TagLabel,
		Breed:           a.Breed,
		CurrentWeightKg: a.CurrentWeightKg,
		Sex:             string(a.Sex),
		Category:        a.Category,
		Status:          string(a.Status),
		Origin:          string(a.Origin),
		EntryDate:       a.EntryDate,
		AcquisitionCost: a.AcquisitionCost,
		SireTag:         a.SireTag,
		DamTag:          a.DamTag,
		Photo:           a.Photo,
		SalePrice:       a.SalePrice,
		CreatedAt:       a.CreatedAt,
	}
}

func wireToAnimal(w animalWire) herdstore.Animal {
	return herdstore.Animal{
		OwnerID:         w.OwnerID,
		TagLabel:        w.TagLabel,
		Breed:           w.Breed,
		CurrentWeightKg: w.CurrentWeightKg,
		Sex:             herdstore.Sex(w.Sex),
		Category:        w.Category,
		Status:          herdstore.Status(w.Status),
		Origin:          herdstore.Origin(w.Origin),
		EntryDate:       w.EntryDate,
		AcquisitionCost: w.AcquisitionCost,
		SireTag:         w.SireTag,
		DamTag:          w.DamTag,
		Photo:           w.Photo,
		SalePrice:       w.SalePrice,
		CreatedAt:       w.CreatedAt,
	}
}

// CreateAnimal submits a new animal and returns its canonical id.
func (c *Client) CreateAnimal(ctx context.Context, a herdstore.Animal) (int64, error) {
	var resp idWire
	if err := c.do(ctx, http.MethodPost, "/api/animals", animalToWire(a), &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// CreateEvent submits a new event. The AnimalRef must be canonical.
func (c *Client) CreateEvent(ctx context.Context, e herdstore.Event) (int64, error) {
	animalID, ok := e.AnimalRef.CanonicalID()
	if !ok {
		return 0, fmt.Errorf("event parent %s is not canonical", e.AnimalRef)
	}
	body := eventWire{
		AnimalID:    animalID,
		Kind:        string(e.Kind),
		Description: e.Description,
		Value:       e.Value,
		Cost:        e.Cost,
		OccurredAt:  e.OccurredAt,
	}
	var resp idWire
	if err := c.do(ctx, http.MethodPost, "/api/events", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// UpdateAnimalWeight sets the current-weight field of an animal.
func (c *Client) UpdateAnimalWeight(ctx context.Context, canonicalID int64, weightKg float64) error {
	return c.UpdateAnimal(ctx, canonicalID, AnimalPatch{CurrentWeightKg: &weightKg})
}

// UpdateAnimal applies a partial update to an animal.
func (c *Client) UpdateAnimal(ctx context.Context, canonicalID int64, patch AnimalPatch) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/animals/%d", canonicalID), patch, nil)
}

// DeleteAnimal removes an animal (and its events) from the remote.
func (c *Client) DeleteAnimal(ctx context.Context, canonicalID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/animals/%d", canonicalID), nil, nil)
}

// ListActiveAnimals fetches the owner's active herd for a cache refresh.
func (c *Client) ListActiveAnimals(ctx context.Context) ([]herdstore.CacheEntry, error) {
	var wires []animalWire
	if err := c.do(ctx, http.MethodGet, "/api/animals?status=active", nil, &wires); err != nil {
		return nil, err
	}
	entries := make([]herdstore.CacheEntry, 0, len(wires))
	for _, w := range wires {
		entries = append(entries, herdstore.CacheEntry{
			CanonicalID: w.ID,
			Animal:      wireToAnimal(w),
		})
	}
	return entries, nil
}

// ListEvents fetches an animal's event history.
func (c *Client) ListEvents(ctx context.Context, canonicalID int64) ([]RemoteEvent, error) {
	var wires []eventWire
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/animals/%d/events", canonicalID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]RemoteEvent, 0, len(wires))
	for _, w := range wires {
		out = append(out, RemoteEvent{
			ID:          w.ID,
			AnimalID:    w.AnimalID,
			Kind:        herdstore.EventKind(w.Kind),
			Description: w.Description,
			Value:       w.Value,
			Cost:        w.Cost,
			OccurredAt:  w.OccurredAt,
		})
	}
	return out, nil
}

// Probe reports whether the server's health endpoint answers. It feeds
// the connectivity monitor.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// do runs one authenticated request. Transport failures come back as
// plain errors (transient); 4xx/5xx answers become *herdsync.RemoteError
// (rejections). Both leave queued items in place, the split only feeds
// logging.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ew errorWire
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &ew); err != nil {
			ew = errorWire{Error: "unknown", Message: string(data)}
		}
		return &herdsync.RemoteError{
			StatusCode: resp.StatusCode,
			Code:       ew.Error,
			Message:    ew.Message,
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
