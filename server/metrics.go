/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softphone_auth_attempts_total",
		Help: "Login and registration attempts by operation and outcome.",
	}, []string{"operation", "outcome"})

	configSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softphone_config_saves_total",
		Help: "Signaling configuration save attempts by outcome.",
	}, []string{"outcome"})

	statsSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "softphone_callstats_submissions_total",
		Help: "Call statistics submissions by outcome.",
	}, []string{"outcome"})

	callDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "softphone_call_duration_seconds",
		Help:    "Reported durations of completed calls.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})
)
