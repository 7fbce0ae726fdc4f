// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/elitonnmelo/faceboi-app/internal/auth"
)

// Handlers provides the HTTP handlers of the herd API. All handlers read
// the authenticated owner from the request context; the auth middleware
// in router.go is the only thing that puts it there.
type Handlers struct {
	storage Storage
	logger  *slog.Logger
	metrics *Metrics
}

// NewHandlers creates the handler set.
func NewHandlers(storage Storage, logger *slog.Logger, metrics *Metrics) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{storage: storage, logger: logger, metrics: metrics}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// HandleCreateAnimal handles POST /api/animals. The owner id in the body
// is ignored; the token decides ownership.
func (h *Handlers) HandleCreateAnimal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())

	var a Animal
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to parse animal")
		return
	}
	a.OwnerID = ownerID
	a.ID = 0
	if a.Status == "" {
		a.Status = "active"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := a.validate(); err != nil {
		h.writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	id, err := h.storage.CreateAnimal(r.Context(), a)
	if err != nil {
		h.logger.Error("failed to create animal", "owner_id", ownerID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to create animal")
		return
	}
	if h.metrics != nil {
		h.metrics.WritesTotal.WithLabelValues("animals", "create").Inc()
	}
	h.writeJSON(w, r, http.StatusCreated, idResponse{ID: id})
}

// HandleUpdateAnimal handles PATCH /api/animals/{id}.
func (h *Handlers) HandleUpdateAnimal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid animal id")
		return
	}

	var patch AnimalPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to parse patch")
		return
	}
	if err := patch.validate(); err != nil {
		h.writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	err = h.storage.UpdateAnimal(r.Context(), ownerID, id, patch)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "not_found", "animal not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update animal", "owner_id", ownerID, "id", id, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to update animal")
		return
	}
	if h.metrics != nil {
		h.metrics.WritesTotal.WithLabelValues("animals", "update").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
	h.observe(r, http.StatusNoContent)
}

// HandleDeleteAnimal handles DELETE /api/animals/{id}.
func (h *Handlers) HandleDeleteAnimal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid animal id")
		return
	}

	err = h.storage.DeleteAnimal(r.Context(), ownerID, id)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "not_found", "animal not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete animal", "owner_id", ownerID, "id", id, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to delete animal")
		return
	}
	if h.metrics != nil {
		h.metrics.WritesTotal.WithLabelValues("animals", "delete").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
	h.observe(r, http.StatusNoContent)
}

// HandleListAnimals handles GET /api/animals?status=active.
func (h *Handlers) HandleListAnimals(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())
	status := r.URL.Query().Get("status")
	if status != "" && status != "active" && status != "sold" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid status filter")
		return
	}

	animals, err := h.storage.ListAnimals(r.Context(), ownerID, status)
	if err != nil {
		h.logger.Error("failed to list animals", "owner_id", ownerID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to list animals")
		return
	}
	if animals == nil {
		animals = []Animal{}
	}
	h.writeJSON(w, r, http.StatusOK, animals)
}

// HandleCreateEvent handles POST /api/events.
func (h *Handlers) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())

	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to parse event")
		return
	}
	ev.OwnerID = ownerID
	ev.ID = 0
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := ev.validate(); err != nil {
		h.writeError(w, r, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}

	id, err := h.storage.CreateEvent(r.Context(), ev)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, r, http.StatusUnprocessableEntity, "unknown_animal", "animal not found for owner")
		return
	}
	if err != nil {
		h.logger.Error("failed to create event", "owner_id", ownerID, "animal_id", ev.AnimalID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to create event")
		return
	}
	if h.metrics != nil {
		h.metrics.WritesTotal.WithLabelValues("events", "create").Inc()
	}
	h.writeJSON(w, r, http.StatusCreated, idResponse{ID: id})
}

// HandleListEvents handles GET /api/animals/{id}/events.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.GetOwnerID(r.Context())
	animalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid animal id")
		return
	}

	events, err := h.storage.ListEventsByAnimal(r.Context(), ownerID, animalID)
	if errors.Is(err, ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, "not_found", "animal not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to list events", "owner_id", ownerID, "animal_id", animalID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "storage_error", "failed to list events")
		return
	}
	if events == nil {
		events = []Event{}
	}
	h.writeJSON(w, r, http.StatusOK, events)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
	h.observe(r, status)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: code, Message: message})
	h.observe(r, status)
}

func (h *Handlers) observe(r *http.Request, status int) {
	if h.metrics == nil {
		return
	}
	// The route pattern keeps ids out of the label set, so cardinality
	// stays bounded by the route table.
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	h.metrics.RequestsTotal.WithLabelValues(
		r.Method+" "+route, strconv.Itoa(status/100*100)).Inc()
}
