// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Probe checks reachability of the remote store, e.g. by hitting its
// health endpoint. It must be cheap; the monitor calls it on a timer.
type Probe func(ctx context.Context) bool

// Monitor tracks online/offline transitions of the device. Callbacks are
// edge-triggered: they fire once per transition, not once per poll.
// State changes come from two sources, both funneled through SetOnline:
// host-level connectivity notifications pushed by the embedding app, and
// an optional polled Probe.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	onOnline  []func()
	onOffline []func()

	probe    Probe
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor that starts in the offline state. probe
// may be nil if the host pushes connectivity via SetOnline.
func NewMonitor(probe Probe, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{probe: probe, interval: interval, logger: logger}
}

// OnBecameOnline registers a callback for the offline→online edge.
func (m *Monitor) OnBecameOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnBecameOffline registers a callback for the online→offline edge.
func (m *Monitor) OnBecameOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity observation and fires the matching
// edge callbacks if the state changed. Callbacks run synchronously on
// the caller's goroutine, outside the monitor lock.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var callbacks []func()
	if online {
		callbacks = append(callbacks, m.onOnline...)
	} else {
		callbacks = append(callbacks, m.onOffline...)
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range callbacks {
		fn()
	}
}

// Start polls the probe until ctx is cancelled. A nil probe makes Start
// a no-op; the host then owns the state via SetOnline.
func (m *Monitor) Start(ctx context.Context) {
	if m.probe == nil {
		return
	}
	go func() {
		// Probe immediately so the app does not wait a full interval
		// for the first state.
		m.SetOnline(m.probe(ctx))
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SetOnline(m.probe(ctx))
			}
		}
	}()
}
