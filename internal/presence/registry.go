// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package presence owns the live device population: the device→session
// map, the group membership index derived from it, and the registration
// handshake that admits or rejects connections.
package presence

import (
	"sort"
	"sync"

	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/metrics"
)

// Registry is the process-lifetime map from device id to its live
// session, plus an explicit groupID→deviceIDs index. It is constructed
// once at startup and injected wherever needed; there is no package
// global, so tests build isolated instances.
//
// A device holds at most one live session and belongs to at most one
// group at a time. All mutation is guarded by a single mutex; no
// operation blocks on another session's I/O while holding it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Conn
	groups   map[string]map[string]struct{}
	memberOf map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Conn),
		groups:   make(map[string]map[string]struct{}),
		memberOf: make(map[string]string),
	}
}

// Add records the session for the device id. It reports false without
// touching the existing entry when the id already has a live session;
// the check and the insert happen under one lock so concurrent
// handshakes for the same id cannot both be admitted.
func (r *Registry) Add(deviceID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[deviceID]; exists {
		return false
	}
	r.sessions[deviceID] = conn
	metrics.ConnectedDevices.Set(float64(len(r.sessions)))
	return true
}

// Remove drops the session and its group membership. Idempotent; it
// reports whether an entry was removed.
func (r *Registry) Remove(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[deviceID]; !exists {
		return false
	}
	delete(r.sessions, deviceID)
	r.leaveLocked(deviceID)
	metrics.ConnectedDevices.Set(float64(len(r.sessions)))
	return true
}

// Get looks up the live session for a device id.
func (r *Registry) Get(deviceID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[deviceID]
	return conn, ok
}

// Len reports the live session count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Join moves the device into the given group, leaving any group it was
// in first. An empty groupID only leaves. Unknown device ids are
// ignored; membership exists only while the session lives.
func (r *Registry) Join(deviceID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[deviceID]; !exists {
		return
	}
	r.leaveLocked(deviceID)
	if groupID == "" {
		return
	}
	members, ok := r.groups[groupID]
	if !ok {
		members = make(map[string]struct{})
		r.groups[groupID] = members
	}
	members[deviceID] = struct{}{}
	r.memberOf[deviceID] = groupID
}

func (r *Registry) leaveLocked(deviceID string) {
	groupID, ok := r.memberOf[deviceID]
	if !ok {
		return
	}
	delete(r.memberOf, deviceID)
	if members, ok := r.groups[groupID]; ok {
		delete(members, deviceID)
		if len(members) == 0 {
			delete(r.groups, groupID)
		}
	}
}

// All snapshots every live session, ordered by device id so broadcast
// delivery order is stable.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	conns := make([]Conn, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, r.sessions[id])
	}
	return conns
}

// Group snapshots the sessions currently joined to a group, ordered by
// device id.
func (r *Registry) Group(groupID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.groups[groupID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	conns := make([]Conn, 0, len(ids))
	for _, id := range ids {
		if conn, ok := r.sessions[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// CloseAll force-disconnects every session. Used during shutdown, after
// the listener stops accepting and before timers are disarmed.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.sessions))
	for _, conn := range r.sessions {
		conns = append(conns, conn)
	}
	r.sessions = make(map[string]Conn)
	r.groups = make(map[string]map[string]struct{})
	r.memberOf = make(map[string]string)
	metrics.ConnectedDevices.Set(0)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	logging.Info().Int("sessions_closed", len(conns)).Msg("closed all device sessions")
}
