// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package presence

import (
	"context"
	"time"

	"golang.org/x/mod/semver"

	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/protocol"
)

// LiveFields is the telemetry a device reports at registration. It maps
// onto the fixed allow-list of directory fields the coordinator may
// touch (ip, machine, on, screenSize, version).
type LiveFields struct {
	IP         string
	Machine    string
	ScreenSize string
	Version    string
}

// Directory is the durable device repository the registrar consults.
// Implemented by the directory service; faked in tests.
type Directory interface {
	FindDevice(ctx context.Context, id string) (*models.DeviceView, error)
	MarkOnline(ctx context.Context, id string, fields LiveFields) error
	MarkOffline(ctx context.Context, id string) error
}

// Registrar runs the registration handshake and the disconnect path.
type Registrar struct {
	registry   *Registry
	directory  Directory
	minVersion string // canonical "vX.Y.Z"
	identify   time.Duration
}

// NewRegistrar wires the handshake against a registry and directory.
func NewRegistrar(registry *Registry, directory Directory, cfg *config.Config) *Registrar {
	return &Registrar{
		registry:   registry,
		directory:  directory,
		minVersion: config.CanonicalVersion(cfg.Registration.MinClientVersion),
		identify:   cfg.Defaults.IdentifyDuration,
	}
}

// Register admits or rejects a connection for the device named in the
// handshake payload. Rejections are sent to the offending connection as
// a typed exception and never propagate as errors: the connection stays
// open so the client can retry with corrected parameters.
//
// On success the session is recorded, the initial state (or an
// Inactive/NullContent exception) is pushed, the group index is joined,
// the directory's live fields are updated and an identify is sent.
// It reports whether a session was admitted.
func (r *Registrar) Register(ctx context.Context, conn Conn, payload protocol.RegisterPayload) bool {
	id := payload.ID
	ip := conn.RemoteIP()

	if semver.Compare(config.CanonicalVersion(payload.Version), r.minVersion) < 0 {
		logging.Warn().Str("device", id).Str("ip", ip).
			Str("version", payload.Version).Str("minimum", r.minVersion).
			Msg("device rejected: unsupported client version")
		metrics.RegistrationFailures.WithLabelValues("unsupported_client").Inc()
		conn.Send(protocol.Exception(fault.UnsupportedClient(payload.Version, r.minVersion)))
		return false
	}

	// The insert is the uniqueness check: done atomically so two
	// concurrent handshakes for one id cannot interleave between a
	// lookup and an insert. The existing session is left untouched.
	if !r.registry.Add(id, conn) {
		logging.Warn().Str("device", id).Str("ip", ip).Msg("device rejected: already connected")
		metrics.RegistrationFailures.WithLabelValues("already_in_use").Inc()
		conn.Send(protocol.Exception(fault.AlreadyInUse(id)))
		return false
	}

	view, err := r.directory.FindDevice(ctx, id)
	if err != nil {
		r.registry.Remove(id)
		if fault.Is(err, fault.CodeNotFound) {
			logging.Warn().Str("device", id).Str("ip", ip).Msg("unreferenced device tried to join")
			metrics.RegistrationFailures.WithLabelValues("unknown_device").Inc()
			conn.Send(protocol.Exception(fault.NotFound("device '%s' is not referenced", id)))
		} else {
			logging.Error().Err(err).Str("device", id).Msg("directory lookup failed during registration")
			conn.Send(protocol.Exception(fault.Internal(err)))
		}
		return false
	}

	logging.Info().Str("device", id).Str("ip", ip).Str("version", payload.Version).Msg("device joined")

	r.pushInitialState(conn, view)

	if view.GroupID != nil {
		r.registry.Join(id, *view.GroupID)
	}

	if err := r.directory.MarkOnline(ctx, id, LiveFields{
		IP:         ip,
		Machine:    payload.Machine,
		ScreenSize: payload.ScreenSize,
		Version:    payload.Version,
	}); err != nil {
		logging.Error().Err(err).Str("device", id).Msg("failed to update device live fields")
	}

	conn.Send(protocol.NewMessage(protocol.EventIdentify, protocol.IdentifyPayload{
		Duration: r.identify.Milliseconds(),
	}))
	return true
}

// pushInitialState chooses what a freshly admitted device sees: its
// assigned content with its playback state, or a typed exception when
// it is disabled or has nothing to show.
func (r *Registrar) pushInitialState(conn Conn, view *models.DeviceView) {
	switch {
	case !view.Active || (view.Group != nil && !view.Group.Active):
		conn.Send(protocol.Exception(fault.Inactive()))
	case view.Content == nil:
		conn.Send(protocol.Exception(fault.NullContent()))
	default:
		conn.Send(protocol.NewMessage(protocol.EventInit, protocol.InitPayload{
			Content: protocol.ContentInfoOf(view.Content),
			Device: protocol.DeviceState{
				ID:          view.ID,
				DisplayName: view.DisplayName,
				Brightness:  view.Brightness,
				Volume:      view.Volume,
				Muted:       view.Muted,
				ShowTitle:   view.ShowTitle,
			},
		}))
	}
}

// Unregister removes the session, if any, and flags the device offline.
// Idempotent. The device may legitimately have been deleted while
// connected, so a NotFound from the directory is logged and absorbed.
func (r *Registrar) Unregister(ctx context.Context, deviceID string) {
	if deviceID == "" || !r.registry.Remove(deviceID) {
		return
	}
	if err := r.directory.MarkOffline(ctx, deviceID); err != nil {
		if fault.Is(err, fault.CodeNotFound) {
			logging.Warn().Str("device", deviceID).Msg("unreferenced device left")
		} else {
			logging.Error().Err(err).Str("device", deviceID).Msg("failed to flag device offline")
		}
		return
	}
	logging.Info().Str("device", deviceID).Msg("device left")
}
