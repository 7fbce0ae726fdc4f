// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/elitonnmelo/faceboi-app/herdstore"
)

// Summary reports what one reconciliation pass did. Item-level remote
// failures are counted here, never returned as errors: a failed item
// simply stays queued for the next pass.
type Summary struct {
	AnimalsSynced  int
	EventsSynced   int
	EventsDeferred int // parent still local, skipped this pass
	Failures       int
	CacheRefreshed bool
	Coalesced      bool // another pass was in flight; this request folded into it
}

// Config holds engine tuning knobs.
type Config struct {
	// TickInterval is the period of the background status/drain ticker.
	TickInterval time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the engine defaults used by the app.
func DefaultConfig() *Config {
	return &Config{TickInterval: 5 * time.Second}
}

// Engine is the reconciliation engine. Construct one per store with
// NewEngine and share it between the UI trigger, the connectivity
// monitor, and the background ticker; overlapping triggers are coalesced
// into at most one trailing pass.
type Engine struct {
	store  *herdstore.Store
	remote RemoteStore
	logger *slog.Logger
	config *Config

	inFlight int32 // single-flight guard around reconcile passes
	rerun    int32 // a trigger arrived mid-pass; run once more after

	onStatus atomic.Value // func(Status)
	online   func() bool  // optional, from the connectivity monitor
}

// Status is what the status surface consumes: pending counts and the
// connectivity flag.
type Status struct {
	PendingAnimals int
	PendingEvents  int
	Online         bool
}

// NewEngine builds an engine around an opened store and a remote client.
func NewEngine(store *herdstore.Store, remote RemoteStore, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		remote: remote,
		logger: logger,
		config: config,
	}
}

// BindMonitor wires the connectivity monitor: the became-online edge
// triggers a pass with a forced cache refresh, and Status reports the
// monitor's flag.
func (e *Engine) BindMonitor(ctx context.Context, m *Monitor) {
	e.online = m.IsOnline
	m.OnBecameOnline(func() {
		if _, err := e.reconcile(ctx, true); err != nil {
			e.logger.Warn("reconcile after online edge failed", "error", err)
		}
	})
}

// OnStatus registers the listener the status surface uses. The ticker
// and every finished pass feed it.
func (e *Engine) OnStatus(fn func(Status)) {
	e.onStatus.Store(fn)
}

// Start runs the background ticker until ctx is cancelled. Each tick
// refreshes the pending counts for the status surface and, when online,
// requests a pass (a no-op when both queues are empty).
func (e *Engine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.config.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.publishStatus(ctx)
				if e.online == nil || e.online() {
					if _, err := e.reconcile(ctx, false); err != nil {
						e.logger.Warn("periodic reconcile failed", "error", err)
					}
				}
			}
		}
	}()
}

// Status returns the current pending counts and connectivity flag.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	animals, err := e.store.PendingAnimalCount(ctx)
	if err != nil {
		return Status{}, err
	}
	events, err := e.store.PendingEventCount(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{PendingAnimals: animals, PendingEvents: events}
	if e.online != nil {
		st.Online = e.online()
	}
	return st, nil
}

func (e *Engine) publishStatus(ctx context.Context) {
	fn, _ := e.onStatus.Load().(func(Status))
	if fn == nil {
		return
	}
	st, err := e.Status(ctx)
	if err != nil {
		e.logger.Warn("failed to read pending counts", "error", err)
		return
	}
	fn(st)
}

// Reconcile runs one reconciliation pass: animals first, then events,
// then a wholesale cache refresh if anything was written. Safe to call
// from any goroutine; a call that lands while a pass is in flight is
// coalesced into a single trailing pass instead of racing the store.
//
// The returned error covers local store faults only. Remote failures
// leave their items queued and are visible only in the Summary and the
// pending counts.
func (e *Engine) Reconcile(ctx context.Context) (Summary, error) {
	return e.reconcile(ctx, false)
}

func (e *Engine) reconcile(ctx context.Context, forceRefresh bool) (Summary, error) {
	if !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
		atomic.StoreInt32(&e.rerun, 1)
		return Summary{Coalesced: true}, nil
	}

	var total Summary
	for {
		for {
			summary, err := e.runPass(ctx, forceRefresh)
			total.AnimalsSynced += summary.AnimalsSynced
			total.EventsSynced += summary.EventsSynced
			total.EventsDeferred += summary.EventsDeferred
			total.Failures += summary.Failures
			total.CacheRefreshed = total.CacheRefreshed || summary.CacheRefreshed
			if err != nil {
				atomic.StoreInt32(&e.rerun, 0)
				atomic.StoreInt32(&e.inFlight, 0)
				return total, err
			}
			forceRefresh = false
			if !atomic.CompareAndSwapInt32(&e.rerun, 1, 0) {
				break
			}
		}
		atomic.StoreInt32(&e.inFlight, 0)
		// A trigger can land between the rerun check above and the guard
		// release. It already reported Coalesced, so its pass must run here.
		if atomic.LoadInt32(&e.rerun) == 0 || !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
			break
		}
		atomic.StoreInt32(&e.rerun, 0)
	}
	e.publishStatus(ctx)
	return total, nil
}

func (e *Engine) runPass(ctx context.Context, forceRefresh bool) (Summary, error) {
	var summary Summary

	pendingAnimals, err := e.store.ListPendingAnimals(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list pending animals: %w", err)
	}
	pendingEvents, err := e.store.ListPendingEvents(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list pending events: %w", err)
	}

	// Empty queues with no forced refresh: zero remote calls.
	if len(pendingAnimals) == 0 && len(pendingEvents) == 0 && !forceRefresh {
		return summary, nil
	}

	if err := e.animalPhase(ctx, pendingAnimals, &summary); err != nil {
		return summary, err
	}
	if err := e.eventPhase(ctx, &summary); err != nil {
		return summary, err
	}

	if summary.AnimalsSynced > 0 || summary.EventsSynced > 0 || forceRefresh {
		if err := e.refreshCache(ctx); err != nil {
			e.logger.Warn("cache refresh failed", "error", err)
			summary.Failures++
		} else {
			summary.CacheRefreshed = true
		}
	}
	return summary, nil
}

// animalPhase submits queued animals in FIFO order. Animals are
// independent of one another, so one failure never blocks the rest; a
// failed animal keeps its queued events local because their refs are
// only rewritten after the parent's create succeeds.
func (e *Engine) animalPhase(ctx context.Context, pending []herdstore.PendingAnimal, summary *Summary) error {
	for _, p := range pending {
		canonicalID, err := e.remote.CreateAnimal(ctx, p.Animal)
		if err != nil {
			summary.Failures++
			e.logger.Warn("animal create failed, will retry next pass",
				"local_id", p.LocalID, "tag", p.Animal.TagLabel,
				"rejection", IsRejection(err), "error", err)
			continue
		}

		reparented, err := e.store.ReparentPendingEvents(ctx, p.LocalID, canonicalID)
		if err != nil {
			return fmt.Errorf("failed to reparent events of animal %d: %w", p.LocalID, err)
		}
		if err := e.store.DeletePendingAnimal(ctx, p.LocalID); err != nil {
			return fmt.Errorf("failed to dequeue animal %d: %w", p.LocalID, err)
		}

		summary.AnimalsSynced++
		e.logger.Info("animal synced",
			"local_id", p.LocalID, "canonical_id", canonicalID,
			"tag", p.Animal.TagLabel, "events_reparented", reparented)
	}
	return nil
}

// eventPhase submits queued events in FIFO order. Events still holding a
// local parent ref are deferred, not failed: their parent either failed
// this pass or is newer than this pass's snapshot. The queue is re-read
// here so reparenting done in the animal phase is visible.
func (e *Engine) eventPhase(ctx context.Context, summary *Summary) error {
	pending, err := e.store.ListPendingEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending events: %w", err)
	}
	for _, p := range pending {
		canonicalID, ok := p.Event.AnimalRef.CanonicalID()
		if !ok {
			summary.EventsDeferred++
			continue
		}

		if _, err := e.remote.CreateEvent(ctx, p.Event); err != nil {
			summary.Failures++
			e.logger.Warn("event create failed, will retry next pass",
				"local_id", p.LocalID, "kind", p.Event.Kind,
				"rejection", IsRejection(err), "error", err)
			continue
		}

		// The remote's current-weight field is a materialized view of
		// the latest weighing, so a synced weighing pushes it too. The
		// event is dequeued even if this update fails: resubmitting the
		// event would duplicate it, and the next weighing or refresh
		// corrects the weight.
		if p.Event.Kind == herdstore.KindWeighing {
			if err := e.remote.UpdateAnimalWeight(ctx, canonicalID, p.Event.Value); err != nil {
				summary.Failures++
				e.logger.Warn("weight update after weighing failed",
					"animal_id", canonicalID, "weight_kg", p.Event.Value, "error", err)
			}
		}

		if err := e.store.DeletePendingEvent(ctx, p.LocalID); err != nil {
			return fmt.Errorf("failed to dequeue event %d: %w", p.LocalID, err)
		}
		summary.EventsSynced++
		e.logger.Info("event synced",
			"local_id", p.LocalID, "kind", p.Event.Kind, "animal_id", canonicalID)
	}
	return nil
}

func (e *Engine) refreshCache(ctx context.Context) error {
	entries, err := e.remote.ListActiveAnimals(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch active herd: %w", err)
	}
	if err := e.store.ReplaceCache(ctx, entries); err != nil {
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	e.logger.Debug("cache refreshed", "animals", len(entries))
	return nil
}
