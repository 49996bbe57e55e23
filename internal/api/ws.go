// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package api

import (
	"net"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/protocol"
)

// WebSocket upgrades a device connection and runs its read loop until
// the peer goes away. The handshake itself happens in-band: the device
// sends a register event as its first message, and the registrar decides
// whether a session is admitted. A connection that never registers can
// still be dispatched nothing, so it is harmless until the idle deadline
// reaps it.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if secret := h.cfg.Registration.Secret; secret != "" {
		if r.URL.Query().Get("key") != secret {
			logging.Warn().Str("ip", r.RemoteAddr).Msg("websocket rejected: bad registration key")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Debug().Err(err).Str("ip", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	session := presence.NewSession(conn, remoteIP(r))
	if err := session.Start(); err != nil {
		logging.Error().Err(err).Msg("failed to start session")
		session.Close()
		return
	}

	// The id of the admitted device, empty until a register succeeds.
	var deviceID string

	for {
		msg, err := session.Read()
		if err != nil {
			break
		}

		switch msg.Event {
		case protocol.EventRegister:
			var payload protocol.RegisterPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.ID == "" {
				logging.Warn().Str("ip", session.RemoteIP()).Msg("malformed register payload")
				continue
			}
			if deviceID != "" {
				// Re-registering on the same connection is a no-op.
				continue
			}
			if h.registrar.Register(r.Context(), session, payload) {
				deviceID = payload.ID
			}
		default:
			logging.Debug().Str("event", msg.Event).Str("ip", session.RemoteIP()).
				Msg("ignoring unexpected inbound event")
		}
	}

	h.registrar.Unregister(r.Context(), deviceID)
	session.Close()
}

// remoteIP strips the port off the request's peer address. RealIP
// middleware has already substituted forwarded headers when present.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
