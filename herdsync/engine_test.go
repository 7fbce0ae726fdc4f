// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elitonnmelo/faceboi-app/herdstore"
)

type remoteEventRecord struct {
	ID       int64
	AnimalID int64
	Event    herdstore.Event
}

// fakeRemote is a scripted in-memory remote store.
type fakeRemote struct {
	mu      sync.Mutex
	nextID  int64
	animals map[int64]herdstore.Animal
	events  []remoteEventRecord

	rejectCreates      bool // every create answers with a rejection
	failWeightUpdates  bool
	animalCreateCalls  int
	eventCreateCalls   int
	weightUpdateCalls  int
	listCalls          int
	localRefSubmission bool // an event arrived with a local parent ref
	blockAnimalCreate  chan struct{}
	animalCreateEntry  chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{animals: make(map[int64]herdstore.Animal)}
}

func (f *fakeRemote) CreateAnimal(_ context.Context, a herdstore.Animal) (int64, error) {
	if f.animalCreateEntry != nil {
		f.animalCreateEntry <- struct{}{}
	}
	if f.blockAnimalCreate != nil {
		<-f.blockAnimalCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.animalCreateCalls++
	if f.rejectCreates {
		return 0, &RemoteError{StatusCode: 422, Code: "validation_failed", Message: "rejected"}
	}
	f.nextID++
	f.animals[f.nextID] = a
	return f.nextID, nil
}

func (f *fakeRemote) CreateEvent(_ context.Context, e herdstore.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCreateCalls++
	animalID, ok := e.AnimalRef.CanonicalID()
	if !ok {
		f.localRefSubmission = true
		return 0, fmt.Errorf("local ref submitted to remote")
	}
	if f.rejectCreates {
		return 0, &RemoteError{StatusCode: 422, Code: "validation_failed", Message: "rejected"}
	}
	if _, exists := f.animals[animalID]; !exists {
		return 0, &RemoteError{StatusCode: 422, Code: "unknown_animal", Message: "no such animal"}
	}
	f.nextID++
	f.events = append(f.events, remoteEventRecord{ID: f.nextID, AnimalID: animalID, Event: e})
	return f.nextID, nil
}

func (f *fakeRemote) UpdateAnimalWeight(_ context.Context, canonicalID int64, weightKg float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weightUpdateCalls++
	if f.failWeightUpdates {
		return &RemoteError{StatusCode: 500, Code: "storage_error", Message: "boom"}
	}
	a, ok := f.animals[canonicalID]
	if !ok {
		return &RemoteError{StatusCode: 404, Code: "not_found", Message: "no such animal"}
	}
	a.CurrentWeightKg = weightKg
	f.animals[canonicalID] = a
	return nil
}

func (f *fakeRemote) ListActiveAnimals(_ context.Context) ([]herdstore.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []herdstore.CacheEntry
	for id, a := range f.animals {
		if a.Status == herdstore.StatusActive {
			out = append(out, herdstore.CacheEntry{CanonicalID: id, Animal: a})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalID < out[j].CanonicalID })
	return out, nil
}

func (f *fakeRemote) totalRemoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.animalCreateCalls + f.eventCreateCalls + f.weightUpdateCalls + f.listCalls
}

func newTestEngine(t *testing.T) (*Engine, *herdstore.Store, *fakeRemote) {
	t.Helper()
	store, err := herdstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	remote := newFakeRemote()
	return NewEngine(store, remote, nil), store, remote
}

func pendingAnimal(tag string) herdstore.Animal {
	return herdstore.Animal{
		OwnerID:         "owner-1",
		TagLabel:        tag,
		Breed:           "Nelore",
		CurrentWeightKg: 180,
		Sex:             herdstore.SexMale,
		Category:        "steer",
		Status:          herdstore.StatusActive,
		Origin:          herdstore.OriginPurchased,
	}
}

// Eventual delivery: animals queued offline each appear exactly once on
// the remote once reconcile drains the queue.
func TestReconcileDeliversQueuedAnimalsOnce(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	for _, tag := range []string{"101", "102", "103"} {
		_, err := store.AddPendingAnimal(ctx, pendingAnimal(tag))
		require.NoError(t, err)
	}

	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, summary.AnimalsSynced)

	// Draining until the pending count is zero adds nothing more.
	summary, err = engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, summary.AnimalsSynced)

	require.Len(t, remote.animals, 3)
	tags := map[string]int{}
	for _, a := range remote.animals {
		tags[a.TagLabel]++
	}
	require.Equal(t, map[string]int{"101": 1, "102": 1, "103": 1}, tags)

	count, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// Referential rewrite: a queued event's parent ref is rewritten to the
// canonical id in the local store before the event is ever submitted.
func TestReconcileRewritesEventParentBeforeSubmission(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindVaccination,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	_, err = engine.Reconcile(ctx)
	require.NoError(t, err)

	require.False(t, remote.localRefSubmission)
	require.Len(t, remote.events, 1)
	require.Equal(t, int64(1), remote.events[0].AnimalID)
}

// No premature event submission: while the parent cannot sync, its
// events never reach the remote at all.
func TestReconcileNeverSubmitsEventsWithLocalParent(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()
	remote.rejectCreates = true

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindNote,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		summary, err := engine.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, summary.Failures)
		require.Equal(t, 1, summary.EventsDeferred)
	}

	require.Equal(t, 0, remote.eventCreateCalls)
	require.False(t, remote.localRefSubmission)

	animals, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	events, err := store.PendingEventCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, animals)
	require.Equal(t, 1, events)
}

// Idempotent empty pass: nothing queued means zero remote calls and an
// untouched cache.
func TestReconcileEmptyQueuesIsNoOp(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	seed := pendingAnimal("old")
	require.NoError(t, store.ReplaceCache(ctx, []herdstore.CacheEntry{{CanonicalID: 9, Animal: seed}}))

	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)
	require.Equal(t, 0, remote.totalRemoteCalls())

	entries, err := store.ReadCache(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(9), entries[0].CanonicalID)
}

// Weighing side effect: a synced weighing pushes the parent's
// current-weight field on the remote.
func TestReconcileWeighingUpdatesRemoteWeight(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindWeighing,
		Value:     200,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	_, err = engine.Reconcile(ctx)
	require.NoError(t, err)

	require.Equal(t, 200.0, remote.animals[1].CurrentWeightKg)
}

// Scenario: animal with tag "105" at 180 kg and a 200 kg weighing are
// captured offline; two reconcile passes leave one remote animal at
// 200 kg, one event, and empty queues.
func TestReconcileOfflineCaptureScenario(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindWeighing,
		Value:     200,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := engine.Reconcile(ctx)
		require.NoError(t, err)
	}

	require.Len(t, remote.animals, 1)
	require.Equal(t, "105", remote.animals[1].TagLabel)
	require.Equal(t, 200.0, remote.animals[1].CurrentWeightKg)
	require.Len(t, remote.events, 1)
	require.Equal(t, int64(1), remote.events[0].AnimalID)

	animals, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	events, err := store.PendingEventCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, animals)
	require.Equal(t, 0, events)
}

// One animal failing must not block the others: they are independent.
func TestReconcileContinuesPastFailedAnimal(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	// Bypass enqueue validation to simulate a record the remote rejects.
	_, err := store.DB().Exec(`
		INSERT INTO pending_animals (owner_id, tag_label, sex, status, origin, created_at)
		VALUES ('owner-1', '', 'male', 'active', 'purchased', '2026-08-01T00:00:00.000Z')
	`)
	require.NoError(t, err)
	_, err = store.AddPendingAnimal(ctx, pendingAnimal("102"))
	require.NoError(t, err)

	// Rejects empty tags only.
	engine = NewEngine(store, &selectiveRemote{fakeRemote: remote}, nil)
	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AnimalsSynced)
	require.Equal(t, 1, summary.Failures)

	count, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type selectiveRemote struct {
	*fakeRemote
}

func (s *selectiveRemote) CreateAnimal(ctx context.Context, a herdstore.Animal) (int64, error) {
	if a.TagLabel == "" {
		return 0, &RemoteError{StatusCode: 422, Code: "validation_failed", Message: "tag required"}
	}
	return s.fakeRemote.CreateAnimal(ctx, a)
}

// Even when the event itself is rejected, the rewrite from the parent's
// sync must already be durable in the local store.
func TestRewriteIsDurableBeforeEventSubmission(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindNote,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	engine = NewEngine(store, &eventRejectingRemote{fakeRemote: remote}, nil)
	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AnimalsSynced)
	require.Equal(t, 0, summary.EventsSynced)

	pending, err := store.ListPendingEvents(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	canonical, ok := pending[0].Event.AnimalRef.CanonicalID()
	require.True(t, ok)
	require.Equal(t, int64(1), canonical)
}

type eventRejectingRemote struct {
	*fakeRemote
}

func (r *eventRejectingRemote) CreateEvent(_ context.Context, e herdstore.Event) (int64, error) {
	if !e.AnimalRef.IsLocal() {
		return 0, &RemoteError{StatusCode: 422, Code: "validation_failed", Message: "rejected"}
	}
	return 0, fmt.Errorf("local ref submitted to remote")
}

// Events enqueued directly against synced animals sync without any
// rewrite step.
func TestReconcileEventWithCanonicalParent(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	id, err := remote.CreateAnimal(ctx, pendingAnimal("99"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:        herdstore.KindMedication,
		Description: "ivermectin",
		Cost:        35,
		AnimalRef:   herdstore.CanonicalRef(id),
	})
	require.NoError(t, err)

	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EventsSynced)
	require.Len(t, remote.events, 1)
}

// A failed weight update must not resubmit the already-accepted event.
func TestReconcileWeightUpdateFailureStillDequeuesEvent(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()
	remote.failWeightUpdates = true

	localID, err := store.AddPendingAnimal(ctx, pendingAnimal("105"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindWeighing,
		Value:     210,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EventsSynced)
	require.Equal(t, 1, summary.Failures)

	events, err := store.PendingEventCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, events)
	require.Len(t, remote.events, 1)
}

// Cache refresh is wholesale: entries gone from the remote disappear
// locally after a pass that wrote anything.
func TestReconcileRefreshesCacheWholesale(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	stale := pendingAnimal("stale")
	require.NoError(t, store.ReplaceCache(ctx, []herdstore.CacheEntry{{CanonicalID: 77, Animal: stale}}))

	_, err := store.AddPendingAnimal(ctx, pendingAnimal("106"))
	require.NoError(t, err)

	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, summary.CacheRefreshed)

	entries, err := store.ReadCache(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "106", entries[0].Animal.TagLabel)
}

// Sold animals are not part of the active-herd refresh.
func TestReconcileCacheHoldsOnlyActiveAnimals(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	sold := pendingAnimal("90")
	sold.Status = herdstore.StatusSold
	_, err := remote.CreateAnimal(ctx, sold)
	require.NoError(t, err)

	_, err = store.AddPendingAnimal(ctx, pendingAnimal("91"))
	require.NoError(t, err)

	_, err = engine.Reconcile(ctx)
	require.NoError(t, err)

	entries, err := store.ReadCache(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "91", entries[0].Animal.TagLabel)
}

// A trigger landing while a pass is in flight coalesces into one
// trailing pass instead of racing the store.
func TestReconcileCoalescesConcurrentTriggers(t *testing.T) {
	engine, store, remote := newTestEngine(t)
	ctx := context.Background()

	remote.blockAnimalCreate = make(chan struct{})
	remote.animalCreateEntry = make(chan struct{}, 1)

	_, err := store.AddPendingAnimal(ctx, pendingAnimal("101"))
	require.NoError(t, err)

	done := make(chan Summary, 1)
	go func() {
		summary, err := engine.Reconcile(ctx)
		require.NoError(t, err)
		done <- summary
	}()

	// Wait until the first pass is inside the remote call, then trigger
	// again.
	<-remote.animalCreateEntry
	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.True(t, summary.Coalesced)

	close(remote.blockAnimalCreate)
	first := <-done
	require.Equal(t, 1, first.AnimalsSynced)

	count, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// Every trigger that answers Coalesced is followed by a pass, even when
// it races the in-flight pass releasing its guard. After all triggers
// return, nothing enqueued before them may still be pending.
func TestCoalescedTriggersAreNeverLost(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	const triggers = 24
	errs := make(chan error, triggers*2)
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.AddPendingAnimal(ctx, pendingAnimal(fmt.Sprintf("tag-%d", n))); err != nil {
				errs <- err
				return
			}
			if _, err := engine.Reconcile(ctx); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.PendingAnimalCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// A store fault must not leave a stale rerun flag behind, or the next
// trigger would run an extra pass nobody asked for.
func TestReconcileErrorClearsPendingRerun(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	atomic.StoreInt32(&engine.rerun, 1)
	require.NoError(t, store.Close())

	_, err := engine.Reconcile(ctx)
	require.Error(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&engine.rerun))
}

func TestEngineStatusCounts(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := store.AddPendingAnimal(ctx, pendingAnimal("101"))
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{Kind: herdstore.KindNote, AnimalRef: herdstore.LocalRef(1)})
	require.NoError(t, err)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, status.PendingAnimals)
	require.Equal(t, 1, status.PendingEvents)
}
