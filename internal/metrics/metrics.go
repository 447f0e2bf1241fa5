/*
 *  Copyright (c) 2021 Neil Alexander
 *
 *  This Source Code Form is subject to the terms of the Mozilla Public
 *  License, v. 2.0. If a copy of the MPL was not distributed with this
 *  file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailforge_delivery_total",
			Help: "Delivery attempts by path and result.",
		},
		[]string{
			"path",   // "local" or "remote"
			"result", // "ok", "notfound", "dns", "error"
		},
	)
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailforge_delivery_duration_seconds",
			Help:    "Duration of a single delivery attempt.",
			Buckets: []float64{0.01, 0.05, 0.100, 0.5, 1, 5, 10, 20, 30, 60},
		},
		[]string{
			"path",
		},
	)
	ExchangeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailforge_exchange_cache_total",
			Help: "Exchange cache lookups.",
		},
		[]string{
			"result", // "hit", "miss", "expired"
		},
	)
	Connections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailforge_connection_total",
			Help: "Incoming connections by endpoint.",
		},
		[]string{
			"endpoint", // "submission", "interserver", "imap"
		},
	)
)

// NewServer returns an HTTP server exposing /metrics on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
