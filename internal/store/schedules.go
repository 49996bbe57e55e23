// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
)

const scheduleColumns = `id, device_id, content_id, play_at, origin,
	recurrence_delay, recurrences, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(
		&s.ID, &s.DeviceID, &s.ContentID, &s.PlayAt, &s.Origin,
		&s.RecurrenceDelay, &s.Recurrences, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.PlayAt = s.PlayAt.UTC()
	return &s, nil
}

// ScheduleFilter narrows ListSchedules.
type ScheduleFilter struct {
	DeviceID  *string
	ContentID *string
	Origin    *models.ScheduleOrigin
}

// ListSchedules fetches schedules matching the filter, ordered by fire
// time ascending. Rows sharing a fire time keep insertion order.
func (s *Store) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var clauses []string
	var args []any
	if filter.DeviceID != nil {
		clauses = append(clauses, "device_id = ?")
		args = append(args, *filter.DeviceID)
	}
	if filter.ContentID != nil {
		clauses = append(clauses, "content_id = ?")
		args = append(args, *filter.ContentID)
	}
	if filter.Origin != nil {
		clauses = append(clauses, "origin = ?")
		args = append(args, string(*filter.Origin))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY play_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

// GetSchedule fetches one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("schedule '%d' doesn't exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	return sched, nil
}

// ScheduleParams are the settable fields of a new schedule.
type ScheduleParams struct {
	DeviceID        string    `json:"tv" validate:"required"`
	ContentID       string    `json:"content" validate:"required"`
	PlayAt          time.Time `json:"playAt" validate:"required"`
	RecurrenceDelay *int64    `json:"recurrenceDelay"`
	Recurrences     *int64    `json:"nbRecurrences"`
}

// CreateSchedule validates, normalizes and inserts a schedule row.
// A fire time at or before now is rejected before anything is persisted.
func (s *Store) CreateSchedule(ctx context.Context, params ScheduleParams, origin models.ScheduleOrigin) (*models.Schedule, error) {
	if !origin.Valid() {
		return nil, fault.Validation("unknown schedule origin '%s'", origin)
	}
	if !params.PlayAt.After(time.Now()) {
		return nil, fault.Validation("cannot schedule a content in the past")
	}
	if params.RecurrenceDelay != nil && *params.RecurrenceDelay < 1 {
		return nil, fault.Validation("recurrence delay must be at least 1 second")
	}
	if params.Recurrences != nil && *params.Recurrences < 1 {
		return nil, fault.Validation("number of recurrences must be at least 1")
	}

	sched := models.Schedule{
		DeviceID:        params.DeviceID,
		ContentID:       params.ContentID,
		PlayAt:          params.PlayAt.UTC(),
		Origin:          origin,
		RecurrenceDelay: params.RecurrenceDelay,
		Recurrences:     params.Recurrences,
	}
	sched.NormalizeRecurrence()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (device_id, content_id, play_at, origin, recurrence_delay, recurrences)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sched.DeviceID, sched.ContentID, sched.PlayAt, string(sched.Origin),
		sched.RecurrenceDelay, sched.Recurrences,
	)
	if err != nil {
		return nil, mapConstraintErr(err,
			"a content has already been scheduled for this device at this time",
			"content or device is not valid")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule id: %w", err)
	}
	return s.GetSchedule(ctx, id)
}

// DeleteSchedule removes a schedule row.
func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.NotFound("schedule '%d' doesn't exist", id)
	}
	return nil
}
