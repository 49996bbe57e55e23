// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package metrics exposes Prometheus instrumentation for the coordinator:
// live session population, command fan-out volume, handshake outcomes and
// scheduler activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedDevices tracks the live session population.
	ConnectedDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kioskd_connected_devices",
			Help: "Number of devices with a live websocket session",
		},
	)

	// CommandsDispatched counts outbound commands by event name.
	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kioskd_commands_dispatched_total",
			Help: "Total commands dispatched to devices",
		},
		[]string{"event"},
	)

	// RegistrationFailures counts rejected handshakes by reason code.
	RegistrationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kioskd_registration_failures_total",
			Help: "Total rejected device registrations",
		},
		[]string{"reason"},
	)

	// SchedulesExecuted counts schedule firings by outcome.
	SchedulesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kioskd_schedules_executed_total",
			Help: "Total schedule executions",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	// SchedulesPlanned tracks the armed timer population.
	SchedulesPlanned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kioskd_schedules_planned",
			Help: "Number of schedules with an armed timer",
		},
	)

	// APIRequestsTotal counts HTTP API requests.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kioskd_api_requests_total",
			Help: "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)
)
