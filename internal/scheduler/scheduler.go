// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package scheduler plans, executes, cancels and recovers time-triggered
// content changes.
//
// The durable schedule row is the source of truth; the in-memory timer
// table keyed by schedule id holds nothing but wakeup handles. Execution
// always re-fetches the row from the store rather than trusting whatever
// was captured at planning time, so a schedule mutated or deleted
// between planning and firing is handled from current truth.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/store"
)

// Repository is the durable schedule store the scheduler consumes.
type Repository interface {
	ListSchedules(ctx context.Context, filter store.ScheduleFilter) ([]models.Schedule, error)
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	CreateSchedule(ctx context.Context, params store.ScheduleParams, origin models.ScheduleOrigin) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id int64) error
}

// ContentAssigner changes a device's assigned content. Satisfied by the
// directory service, whose update path fans the display command out to
// the screen as a side effect.
type ContentAssigner interface {
	SetContent(ctx context.Context, deviceID, contentID string) error
}

// Scheduler owns the id→timer table. Constructed once at startup and
// injected; tests build isolated instances.
type Scheduler struct {
	repo     Repository
	assigner ContentAssigner

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	execCtx context.Context

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler with an empty timer table.
func New(repo Repository, assigner ContentAssigner) *Scheduler {
	return &Scheduler{
		repo:     repo,
		assigner: assigner,
		timers:   make(map[int64]*time.Timer),
		execCtx:  context.Background(),
		now:      time.Now,
	}
}

// Load reconciles the timer table with the durable store. Called once at
// process start, after the broadcast plane is wired but before device
// connections are accepted. Rows are walked in fire-time order: anything
// already due runs immediately and synchronously, the rest is planned.
// Per-row failures are logged and absorbed so one bad row cannot abort
// the recovery batch.
func (s *Scheduler) Load(ctx context.Context) error {
	schedules, err := s.repo.ListSchedules(ctx, store.ScheduleFilter{})
	if err != nil {
		return err
	}

	overdue, planned := 0, 0
	for i := range schedules {
		sched := &schedules[i]
		if !sched.PlayAt.After(s.now()) {
			s.Execute(ctx, sched.ID)
			overdue++
		} else {
			s.Plan(sched)
			planned++
		}
	}

	logging.Info().Int("executed", overdue).Int("planned", planned).Msg("schedules loaded")
	return nil
}

// Plan arms a one-shot timer that executes the schedule at its fire
// time. The timer handle is keyed by schedule id so a later deletion can
// disarm it. Planning an id twice replaces the previous timer.
func (s *Scheduler) Plan(sched *models.Schedule) {
	delay := sched.PlayAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[sched.ID]; ok {
		old.Stop()
	}
	id := sched.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.Execute(s.executionContext(), id)
	})
	metrics.SchedulesPlanned.Set(float64(len(s.timers)))

	logging.Debug().Int64("schedule", id).Str("device", sched.DeviceID).
		Time("play_at", sched.PlayAt).Msg("schedule planned")
}

// Cancel disarms the timer for a schedule id. Safe no-op when no timer
// is armed.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
		metrics.SchedulesPlanned.Set(float64(len(s.timers)))
	}
}

// CancelAll disarms every live timer. Part of the shutdown sequence,
// before the store handle is closed, so no timer can fire into a closed
// database.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	metrics.SchedulesPlanned.Set(0)
}

// Execute consumes a schedule exactly once: it re-fetches the row,
// assigns the content through the directory (which casts the display
// command to the screen), then deletes the row. A row already gone is a
// no-op. On failure the error is logged and absorbed; the row is left
// in place for the next process start to retry, never re-planned within
// this run.
func (s *Scheduler) Execute(ctx context.Context, id int64) {
	s.Cancel(id)

	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		if !fault.Is(err, fault.CodeNotFound) {
			logging.Error().Err(err).Int64("schedule", id).Msg("failed to fetch schedule for execution")
			metrics.SchedulesExecuted.WithLabelValues("error").Inc()
		}
		return
	}

	if err := s.assigner.SetContent(ctx, sched.DeviceID, sched.ContentID); err != nil {
		logging.Error().Err(err).Int64("schedule", id).Str("device", sched.DeviceID).
			Str("content", sched.ContentID).Msg("schedule execution failed")
		metrics.SchedulesExecuted.WithLabelValues("error").Inc()
		return
	}

	if err := s.repo.DeleteSchedule(ctx, id); err != nil && !fault.Is(err, fault.CodeNotFound) {
		logging.Error().Err(err).Int64("schedule", id).Msg("failed to delete executed schedule")
	}

	metrics.SchedulesExecuted.WithLabelValues("ok").Inc()
	logging.Info().Int64("schedule", id).Str("device", sched.DeviceID).
		Str("content", sched.ContentID).Msg("schedule executed")
}

// AddOne persists a new schedule and arms its timer, keeping the timer
// table consistent with the durable store.
func (s *Scheduler) AddOne(ctx context.Context, params store.ScheduleParams, origin models.ScheduleOrigin) (*models.Schedule, error) {
	sched, err := s.repo.CreateSchedule(ctx, params, origin)
	if err != nil {
		return nil, err
	}
	s.Plan(sched)
	return sched, nil
}

// DeleteOne removes a schedule and disarms its timer. Rows the system
// generated (playlist origin) are protected from the public deletion
// path: they go away only when the caller marks the operation internal.
func (s *Scheduler) DeleteOne(ctx context.Context, id int64, internal bool) error {
	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if !internal && sched.Origin != models.OriginUser {
		return fault.Forbidden("deletion is not allowed for internal schedules")
	}
	if err := s.repo.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.Cancel(id)
	return nil
}

// List exposes the repository listing for the HTTP layer.
func (s *Scheduler) List(ctx context.Context, filter store.ScheduleFilter) ([]models.Schedule, error) {
	return s.repo.ListSchedules(ctx, filter)
}

// Serve implements suture.Service: load once, then hold until shutdown,
// disarming all timers on the way out.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.execCtx = ctx
	s.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.CancelAll()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *Scheduler) String() string { return "scheduler" }

func (s *Scheduler) executionContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execCtx
}
