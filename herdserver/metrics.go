// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects request and write counters for the herd API.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
	WritesTotal   *prometheus.CounterVec
}

// NewMetrics builds and registers the server metrics on reg. Pass a
// fresh registry per server instance so tests do not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herdserver_requests_total",
			Help: "HTTP requests handled, by route and status class.",
		}, []string{"route", "status"}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "herdserver_writes_total",
			Help: "Accepted write operations, by collection and kind.",
		}, []string{"collection", "op"}),
	}
	reg.MustRegister(m.RequestsTotal, m.WritesTotal)
	return m
}
