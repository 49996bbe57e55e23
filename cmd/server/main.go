// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package main is the entry point for the kioskd server.
//
// Kioskd coordinates a fleet of signage devices. Each device holds a
// websocket session to the coordinator; the HTTP API mutates the device
// directory and dispatches playback commands, and a persistent scheduler
// swaps assigned content at planned times, surviving restarts.
//
// Startup order:
//
//  1. Configuration: koanf v2 layered load (defaults, config.yaml,
//     KIOSKD_* environment variables)
//  2. Logging: zerolog, JSON or console format
//  3. Store: SQLite device/group/content/schedule tables
//  4. Presence registry, dispatcher, directory, registrar
//  5. Scheduler: rearms pending schedules, fires overdue ones
//  6. HTTP server: REST API, /ws device endpoint, /metrics
//
// Shutdown on SIGINT/SIGTERM walks the reverse order: the supervisor
// tree stops the listener and the scheduler (canceling armed timers),
// then the live sessions are closed and the store follows.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/kioskd/kioskd/internal/api"
	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/directory"
	"github.com/kioskd/kioskd/internal/dispatch"
	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/scheduler"
	"github.com/kioskd/kioskd/internal/store"
	"github.com/kioskd/kioskd/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("min_client_version", cfg.Registration.MinClientVersion).
		Bool("registration_key", cfg.Registration.Secret != "").
		Msg("configuration loaded")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing store")
		}
	}()

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(registry, cfg.Defaults)
	dir := directory.New(st, dispatcher, registry)
	registrar := presence.NewRegistrar(registry, dir, cfg)
	sched := scheduler.New(st, dir)

	handler := api.NewHandler(cfg, dir, sched, dispatcher, registrar, registry)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tree := supervisor.NewTree(logging.Slog(), supervisor.DefaultTreeConfig())
	tree.AddCoordinationService(sched)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.Timeout))

	logging.Info().Str("addr", server.Addr).Msg("kioskd started")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor tree terminated")
	}

	// The listener and the scheduler are down; drop the device sessions
	// before the store closes underneath them.
	registry.CloseAll()

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}

	logging.Info().Msg("kioskd stopped")
}
