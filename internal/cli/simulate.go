// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/elitonnmelo/faceboi-app/herdremote"
	"github.com/elitonnmelo/faceboi-app/herdserver"
	"github.com/elitonnmelo/faceboi-app/herdstore"
	"github.com/elitonnmelo/faceboi-app/herdsync"
)

// NewSimulateCommand creates the simulate command: capture an animal and
// a weighing offline, then reconcile against a running server.
func NewSimulateCommand(_ *RootOptions) *cobra.Command {
	var (
		serverURL string
		dbPath    string
		ownerID   string
		jwtSecret string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Demonstrate offline capture and reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), serverURL, dbPath, ownerID, jwtSecret)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "herd server base URL")
	cmd.Flags().StringVar(&dbPath, "db", "herdsync-demo.db", "local SQLite path")
	cmd.Flags().StringVar(&ownerID, "owner", "demo-owner", "owner id for the demo token")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "dev-secret-change-me", "server JWT secret")

	return cmd
}

func runSimulation(ctx context.Context, serverURL, dbPath, ownerID, jwtSecret string) error {
	logger := slog.Default()

	store, err := herdstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	deviceID, err := store.EnsureDeviceID(ctx, ownerID, func() string { return uuid.New().String() })
	if err != nil {
		return err
	}

	jwtAuth := herdserver.NewJWTAuth(jwtSecret)
	remote := herdremote.NewClient(serverURL, func(ctx context.Context) (string, error) {
		return jwtAuth.GenerateToken(ownerID, deviceID, time.Hour)
	}, logger)

	// Capture while "offline": both writes go to the local queue only.
	localID, err := store.AddPendingAnimal(ctx, herdstore.Animal{
		OwnerID:         ownerID,
		TagLabel:        "105",
		Breed:           "Nelore",
		CurrentWeightKg: 180,
		Sex:             herdstore.SexMale,
		Category:        "steer",
		Status:          herdstore.StatusActive,
		Origin:          herdstore.OriginPurchased,
		EntryDate:       time.Now().UTC().Format("2006-01-02"),
		AcquisitionCost: 2500,
	})
	if err != nil {
		return err
	}
	if _, err := store.AddPendingEvent(ctx, herdstore.Event{
		Kind:      herdstore.KindWeighing,
		Value:     200,
		AnimalRef: herdstore.LocalRef(localID),
	}); err != nil {
		return err
	}

	engine := herdsync.NewEngine(store, remote, nil)
	monitor := herdsync.NewMonitor(remote.Probe, 2*time.Second, logger)
	engine.BindMonitor(ctx, monitor)
	monitor.Start(ctx)

	// Manual trigger, like tapping "sync now".
	summary, err := engine.Reconcile(ctx)
	if err != nil {
		return err
	}
	status, err := engine.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("animals synced: %d\nevents synced: %d\nfailures: %d\npending: %d animals, %d events\n",
		summary.AnimalsSynced, summary.EventsSynced, summary.Failures,
		status.PendingAnimals, status.PendingEvents)

	cached, err := store.ReadCache(ctx)
	if err != nil {
		return err
	}
	for _, entry := range cached {
		fmt.Printf("cached animal %d: tag %s, %.0f kg\n",
			entry.CanonicalID, entry.Animal.TagLabel, entry.Animal.CurrentWeightKg)
	}
	return nil
}
