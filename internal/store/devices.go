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

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
)

const deviceColumns = `id, display_name, description, active, is_on,
	content_id, group_id, brightness, volume, muted, show_title,
	ip, machine, screen_size, version, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (*models.Device, error) {
	var d models.Device
	err := row.Scan(
		&d.ID, &d.DisplayName, &d.Description, &d.Active, &d.On,
		&d.ContentID, &d.GroupID, &d.Brightness, &d.Volume, &d.Muted, &d.ShowTitle,
		&d.IP, &d.Machine, &d.ScreenSize, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDevice fetches one device by id.
func (s *Store) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("device '%s' doesn't exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", id, err)
	}
	return d, nil
}

// GetDeviceView fetches a device with its group and content resolved.
func (s *Store) GetDeviceView(ctx context.Context, id string) (*models.DeviceView, error) {
	d, err := s.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &models.DeviceView{Device: *d}
	if d.GroupID != nil {
		if view.Group, err = s.GetGroup(ctx, *d.GroupID); err != nil {
			return nil, err
		}
	}
	if d.ContentID != nil {
		if view.Content, err = s.GetContent(ctx, *d.ContentID); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// DeviceFilter narrows ListDevices.
type DeviceFilter struct {
	GroupID   *string
	ContentID *string
	Active    *bool
}

// ListDevices fetches devices matching the filter, ordered by id.
func (s *Store) ListDevices(ctx context.Context, filter DeviceFilter) ([]models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	var clauses []string
	var args []any
	if filter.GroupID != nil {
		clauses = append(clauses, "group_id = ?")
		args = append(args, *filter.GroupID)
	}
	if filter.ContentID != nil {
		clauses = append(clauses, "content_id = ?")
		args = append(args, *filter.ContentID)
	}
	if filter.Active != nil {
		clauses = append(clauses, "active = ?")
		args = append(args, *filter.Active)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// CreateDevice inserts a new device row.
func (s *Store) CreateDevice(ctx context.Context, d *models.Device) (*models.Device, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, display_name, description, active, content_id, group_id,
			brightness, volume, muted, show_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DisplayName, d.Description, d.Active, d.ContentID, d.GroupID,
		d.Brightness, d.Volume, d.Muted, d.ShowTitle,
	)
	if err != nil {
		return nil, mapConstraintErr(err,
			fmt.Sprintf("device '%s' already exists", d.ID),
			"content or group is not valid")
	}
	return s.GetDevice(ctx, d.ID)
}

// Ref is an optional nullable reference in a patch: Set distinguishes
// "leave untouched" from "assign" and from "clear" (Set with nil Value).
type Ref struct {
	Set   bool
	Value *string
}

// SetRef builds an assigning Ref; pass nil to clear the reference.
func SetRef(value *string) Ref {
	return Ref{Set: true, Value: value}
}

// DevicePatch is a partial device update. Nil fields are left untouched.
// Callers enforce their own field allow-list by which fields they set.
type DevicePatch struct {
	DisplayName *string
	Description *string
	Active      *bool
	On          *bool
	ContentID   Ref
	GroupID     Ref
	Brightness  *float64
	Volume      *float64
	Muted       *bool
	ShowTitle   *bool
	IP          *string
	Machine     *string
	ScreenSize  *string
	Version     *string
}

// UpdateDevice applies a partial update and returns the updated row.
func (s *Store) UpdateDevice(ctx context.Context, id string, patch DevicePatch) (*models.Device, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.DisplayName != nil {
		set("display_name", *patch.DisplayName)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Active != nil {
		set("active", *patch.Active)
	}
	if patch.On != nil {
		set("is_on", *patch.On)
	}
	if patch.ContentID.Set {
		set("content_id", patch.ContentID.Value)
	}
	if patch.GroupID.Set {
		set("group_id", patch.GroupID.Value)
	}
	if patch.Brightness != nil {
		if *patch.Brightness < models.MinRatio || *patch.Brightness > models.MaxRatio {
			return nil, fault.Validation("brightness must be within [%v, %v]", models.MinRatio, models.MaxRatio)
		}
		set("brightness", *patch.Brightness)
	}
	if patch.Volume != nil {
		if *patch.Volume < models.MinRatio || *patch.Volume > models.MaxRatio {
			return nil, fault.Validation("volume must be within [%v, %v]", models.MinRatio, models.MaxRatio)
		}
		set("volume", *patch.Volume)
	}
	if patch.Muted != nil {
		set("muted", *patch.Muted)
	}
	if patch.ShowTitle != nil {
		set("show_title", *patch.ShowTitle)
	}
	if patch.IP != nil {
		set("ip", *patch.IP)
	}
	if patch.Machine != nil {
		set("machine", *patch.Machine)
	}
	if patch.ScreenSize != nil {
		set("screen_size", *patch.ScreenSize)
	}
	if patch.Version != nil {
		set("version", *patch.Version)
	}

	if len(sets) == 0 {
		return s.GetDevice(ctx, id)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	query := "UPDATE devices SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapConstraintErr(err, "device update conflicts", "content or group is not valid")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fault.NotFound("device '%s' doesn't exist", id)
	}
	return s.GetDevice(ctx, id)
}

// DeleteDevice removes a device row. Schedules cascade.
func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.NotFound("device '%s' doesn't exist", id)
	}
	return nil
}

// GetGroup fetches one group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, active, created_at, updated_at FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.DisplayName, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("group '%s' doesn't exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return &g, nil
}

// CreateGroup inserts a new group row.
func (s *Store) CreateGroup(ctx context.Context, g *models.Group) (*models.Group, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, display_name, active) VALUES (?, ?, ?)`,
		g.ID, g.DisplayName, g.Active,
	)
	if err != nil {
		return nil, mapConstraintErr(err,
			fmt.Sprintf("group '%s' already exists", g.ID), "group is not valid")
	}
	return s.GetGroup(ctx, g.ID)
}

// GetContent fetches one content by id.
func (s *Store) GetContent(ctx context.Context, id string) (*models.Content, error) {
	var c models.Content
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, description, type, uri, created_at, updated_at
		 FROM contents WHERE id = ?`, id,
	).Scan(&c.ID, &c.DisplayName, &c.Description, &c.Type, &c.URI, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.NotFound("content '%s' doesn't exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content %s: %w", id, err)
	}
	return &c, nil
}

// CreateContent inserts a new content row.
func (s *Store) CreateContent(ctx context.Context, c *models.Content) (*models.Content, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (id, display_name, description, type, uri) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.DisplayName, c.Description, c.Type, c.URI,
	)
	if err != nil {
		return nil, mapConstraintErr(err,
			fmt.Sprintf("content '%s' already exists", c.ID), "content is not valid")
	}
	return s.GetContent(ctx, c.ID)
}
