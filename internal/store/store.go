// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package store is the durable repository for devices, groups, contents
// and schedules, backed by SQLite through database/sql. Constraint
// violations surface as coded faults: unique violations as CONFLICT,
// foreign-key violations as VALIDATION_FAILED.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kioskd/kioskd/internal/fault"
)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS contents (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL,
	uri          TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS devices (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	is_on        INTEGER NOT NULL DEFAULT 0,
	content_id   TEXT REFERENCES contents(id) ON DELETE SET NULL,
	group_id     TEXT REFERENCES groups(id) ON DELETE SET NULL,
	brightness   REAL NOT NULL DEFAULT 1.0,
	volume       REAL NOT NULL DEFAULT 0.5,
	muted        INTEGER NOT NULL DEFAULT 0,
	show_title   INTEGER NOT NULL DEFAULT 1,
	ip           TEXT NOT NULL DEFAULT '',
	machine      TEXT NOT NULL DEFAULT '',
	screen_size  TEXT NOT NULL DEFAULT '',
	version      TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schedules (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id        TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
	content_id       TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
	play_at          TIMESTAMP NOT NULL,
	origin           TEXT NOT NULL CHECK (origin IN ('user', 'playlist')),
	recurrence_delay INTEGER,
	recurrences      INTEGER,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (device_id, content_id, play_at)
);

CREATE INDEX IF NOT EXISTS idx_schedules_play_at ON schedules(play_at);
CREATE INDEX IF NOT EXISTS idx_devices_group ON devices(group_id);
`

// Store wraps the SQLite handle. One Store is opened at startup and
// closed last during shutdown, after all timers are disarmed.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and bootstraps
// the schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under the coordinator's low write volume.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the handle is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapConstraintErr translates SQLite constraint failures into coded
// faults. The driver does not expose typed errors, so this matches the
// stable SQLite error strings.
func mapConstraintErr(err error, conflictMsg, badRefMsg string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fault.Conflict("%s", conflictMsg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fault.Validation("%s", badRefMsg)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fault.Validation("constraint violation: %v", err)
	default:
		return err
	}
}
