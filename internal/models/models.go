// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package models defines the durable entities of the fleet: devices,
// groups, contents and schedules.
package models

import "time"

// Brightness and volume ratios are bounded so a device can never be
// commanded fully dark or fully silent by a bad default.
const (
	MinRatio = 0.05
	MaxRatio = 1.0
)

// Device is a display endpoint identified by a stable string id.
type Device struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Description string  `json:"description,omitempty"`
	Active      bool    `json:"active"`
	On          bool    `json:"on"`
	ContentID   *string `json:"content"`
	GroupID     *string `json:"group"`

	Brightness float64 `json:"brightness"`
	Volume     float64 `json:"volume"`
	Muted      bool    `json:"muted"`
	ShowTitle  bool    `json:"showTitle"`

	// Live telemetry reported at registration.
	IP         string `json:"ip,omitempty"`
	Machine    string `json:"machine,omitempty"`
	ScreenSize string `json:"screenSize,omitempty"`
	Version    string `json:"version,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Group is a named set of devices used as a broadcast target.
// A device belongs to at most one group.
type Group struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Content is a displayable item.
type Content struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	URI         string    `json:"uri"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DeviceView is a device with its associations resolved. Group and
// Content are nil when the device has none assigned.
type DeviceView struct {
	Device
	Group   *Group   `json:"groupResolved,omitempty"`
	Content *Content `json:"contentResolved,omitempty"`
}

// ScheduleOrigin distinguishes user-created schedules from rows the
// system generates while unrolling playlists.
type ScheduleOrigin string

const (
	OriginUser     ScheduleOrigin = "user"
	OriginPlaylist ScheduleOrigin = "playlist"
)

// Valid reports whether the origin is a known tag.
func (o ScheduleOrigin) Valid() bool {
	return o == OriginUser || o == OriginPlaylist
}

// Schedule pairs a device and a content item with the instant the
// assignment should change. The durable row is the source of truth; any
// in-memory timer derived from it is only a wakeup mechanism.
//
// RecurrenceDelay (seconds) and Recurrences are either both nil or both
// set. Recurring execution is not implemented; the fields are stored and
// normalized only.
type Schedule struct {
	ID              int64          `json:"id"`
	DeviceID        string         `json:"tv"`
	ContentID       string         `json:"content"`
	PlayAt          time.Time      `json:"playAt"`
	Origin          ScheduleOrigin `json:"origin"`
	RecurrenceDelay *int64         `json:"recurrenceDelay"`
	Recurrences     *int64         `json:"nbRecurrences"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// NormalizeRecurrence enforces the pairing invariant on the recurrence
// fields: a delay without a count defaults the count to 1, a count
// without a delay is cleared.
func (s *Schedule) NormalizeRecurrence() {
	switch {
	case s.RecurrenceDelay == nil:
		s.Recurrences = nil
	case s.Recurrences == nil:
		one := int64(1)
		s.Recurrences = &one
	}
}
