// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdremote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elitonnmelo/faceboi-app/herdserver"
	"github.com/elitonnmelo/faceboi-app/herdstore"
	"github.com/elitonnmelo/faceboi-app/herdsync"
)

func newTestClient(t *testing.T, ownerID string) *Client {
	t.Helper()
	jwtAuth := herdserver.NewJWTAuth("test-secret")
	srv := httptest.NewServer(herdserver.NewRouter(herdserver.Options{
		Storage: herdserver.NewMemoryStorage(),
		Auth:    jwtAuth,
	}))
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, func(ctx context.Context) (string, error) {
		return jwtAuth.GenerateToken(ownerID, "device-1", time.Hour)
	}, nil)
}

func sampleAnimal(tag string) herdstore.Animal {
	return herdstore.Animal{
		TagLabel:        tag,
		Breed:           "Nelore",
		CurrentWeightKg: 180,
		Sex:             herdstore.SexMale,
		Category:        "steer",
		Status:          herdstore.StatusActive,
		Origin:          herdstore.OriginPurchased,
	}
}

func TestClientCreateAndListAnimals(t *testing.T) {
	client := newTestClient(t, "owner-1")
	ctx := context.Background()

	id, err := client.CreateAnimal(ctx, sampleAnimal("105"))
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	entries, err := client.ListActiveAnimals(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].CanonicalID)
	require.Equal(t, "105", entries[0].Animal.TagLabel)
	require.Equal(t, "owner-1", entries[0].Animal.OwnerID)
}

func TestClientCreateEventRefusesLocalRef(t *testing.T) {
	client := newTestClient(t, "owner-1")

	_, err := client.CreateEvent(context.Background(), herdstore.Event{
		Kind:      herdstore.KindNote,
		AnimalRef: herdstore.LocalRef(1),
	})
	require.Error(t, err)
	require.False(t, herdsync.IsRejection(err))
}

func TestClientWeightUpdateFlow(t *testing.T) {
	client := newTestClient(t, "owner-1")
	ctx := context.Background()

	id, err := client.CreateAnimal(ctx, sampleAnimal("105"))
	require.NoError(t, err)

	_, err = client.CreateEvent(ctx, herdstore.Event{
		Kind:       herdstore.KindWeighing,
		Value:      200,
		OccurredAt: time.Now().UTC(),
		AnimalRef:  herdstore.CanonicalRef(id),
	})
	require.NoError(t, err)
	require.NoError(t, client.UpdateAnimalWeight(ctx, id, 200))

	entries, err := client.ListActiveAnimals(ctx)
	require.NoError(t, err)
	require.Equal(t, 200.0, entries[0].Animal.CurrentWeightKg)

	events, err := client.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, herdstore.KindWeighing, events[0].Kind)
}

func TestClientRejectionBecomesRemoteError(t *testing.T) {
	client := newTestClient(t, "owner-1")
	ctx := context.Background()

	bad := sampleAnimal("105")
	bad.Sex = "unknown"
	// Bypasses the local validation on purpose: the wire carries it.
	_, err := client.CreateAnimal(ctx, bad)
	require.Error(t, err)
	require.True(t, herdsync.IsRejection(err))

	var re *herdsync.RemoteError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusUnprocessableEntity, re.StatusCode)
	require.Equal(t, "validation_failed", re.Code)
}

func TestClientTransportFailureIsNotRejection(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", func(ctx context.Context) (string, error) {
		return "token", nil
	}, nil)
	client.HTTP = &http.Client{Timeout: 200 * time.Millisecond}

	_, err := client.CreateAnimal(context.Background(), sampleAnimal("105"))
	require.Error(t, err)
	require.False(t, herdsync.IsRejection(err))
}

func TestClientProbe(t *testing.T) {
	client := newTestClient(t, "owner-1")
	require.True(t, client.Probe(context.Background()))

	dead := NewClient("http://127.0.0.1:1", func(ctx context.Context) (string, error) {
		return "token", nil
	}, nil)
	require.False(t, dead.Probe(context.Background()))
}

func TestClientDeleteAnimal(t *testing.T) {
	client := newTestClient(t, "owner-1")
	ctx := context.Background()

	id, err := client.CreateAnimal(ctx, sampleAnimal("105"))
	require.NoError(t, err)
	require.NoError(t, client.DeleteAnimal(ctx, id))

	entries, err := client.ListActiveAnimals(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

// End to end: offline capture into SQLite, reconciliation over HTTP
// against the reference server, cache refresh back into SQLite.
func TestEndToEndReconciliation(t *testing.T) {
	client := newTestClient(t, "owner-1")
	ctx := context.Background()

	store, err := herdstore.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	animal := sampleAnimal("105")
	animal.OwnerID = "owner-1"
	localID, err := store.AddPendingAnimal(ctx, animal)
	require.NoError(t, err)
	_, err = store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindWeighing,
		Value:     200,
		AnimalRef: herdstore.LocalRef(localID),
	})
	require.NoError(t, err)

	engine := herdsync.NewEngine(store, client, nil)
	summary, err := engine.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.AnimalsSynced)
	require.Equal(t, 1, summary.EventsSynced)
	require.Equal(t, 0, summary.Failures)
	require.True(t, summary.CacheRefreshed)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, status.PendingAnimals)
	require.Equal(t, 0, status.PendingEvents)

	cached, err := store.ReadCache(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, "105", cached[0].Animal.TagLabel)
	require.Equal(t, 200.0, cached[0].Animal.CurrentWeightKg)

	events, err := client.ListEvents(ctx, cached[0].CanonicalID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, cached[0].CanonicalID, events[0].AnimalID)
}
