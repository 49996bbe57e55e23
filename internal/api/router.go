// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/directory"
	"github.com/kioskd/kioskd/internal/dispatch"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/scheduler"
)

// Handler bundles the coordinator components the HTTP layer fronts.
type Handler struct {
	cfg        *config.Config
	directory  *directory.Service
	scheduler  *scheduler.Scheduler
	dispatcher *dispatch.Dispatcher
	registrar  *presence.Registrar
	registry   *presence.Registry
	validate   *validator.Validate
	upgrader   websocket.Upgrader
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	cfg *config.Config,
	dir *directory.Service,
	sched *scheduler.Scheduler,
	disp *dispatch.Dispatcher,
	registrar *presence.Registrar,
	registry *presence.Registry,
) *Handler {
	return &Handler{
		cfg:        cfg,
		directory:  dir,
		scheduler:  sched,
		dispatcher: disp,
		registrar:  registrar,
		registry:   registry,
		validate:   validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Devices are headless kiosks, not browsers; origin checks
			// do not apply to this endpoint.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/ws", h.WebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))

		r.Get("/health", h.Health)

		r.Post("/actions", h.DispatchAction)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.ListDevices)
			r.Post("/", h.CreateDevice)
			r.Get("/{id}", h.GetDevice)
			r.Patch("/{id}", h.UpdateDevice)
			r.Delete("/{id}", h.DeleteDevice)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
		})

		r.Route("/contents", func(r chi.Router) {
			r.Post("/", h.CreateContent)
			r.Get("/{id}", h.GetContent)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Delete("/{id}", h.DeleteSchedule)
		})
	})

	return r
}
