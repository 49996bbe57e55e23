// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package dispatch fans imperative commands out to live device sessions.
//
// Delivery is fire-and-forget: no acknowledgment, no retry, no
// confirmation. A command addressed to an offline device is silently
// dropped; that is the accepted failure mode of the broadcast plane.
package dispatch

import (
	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/metrics"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/protocol"
)

// Dispatcher resolves a (target kind, id) pair to live sessions and
// sends one wire message per command. Parameter defaults come from the
// configuration, resolved once at startup; ratios are already clamped
// by the config loader.
type Dispatcher struct {
	registry *presence.Registry
	defaults config.Defaults
}

// New creates a dispatcher over the given registry.
func New(registry *presence.Registry, defaults config.Defaults) *Dispatcher {
	return &Dispatcher{registry: registry, defaults: defaults}
}

// emit resolves the target and delivers the message. An empty id forces
// the effective target to ALL, whatever kind was requested, so callers
// never special-case "broadcast to everyone".
func (d *Dispatcher) emit(target protocol.Target, id string, msg protocol.Message) {
	if id == "" {
		target = protocol.TargetAll
	}

	metrics.CommandsDispatched.WithLabelValues(msg.Event).Inc()

	switch target {
	case protocol.TargetOne:
		if conn, ok := d.registry.Get(id); ok {
			conn.Send(msg)
		}
		// Offline target: expected, silent, best-effort.
	case protocol.TargetGroup:
		for _, conn := range d.registry.Group(id) {
			conn.Send(msg)
		}
	case protocol.TargetAll:
		for _, conn := range d.registry.All() {
			conn.Send(msg)
		}
	default:
		logging.Warn().Str("target", string(target)).Str("event", msg.Event).Msg("unknown dispatch target")
	}
}

// Display commands the target to render a content item. A nil content
// models "nothing assigned" and dispatches a NullContent exception
// instead of a display command.
func (d *Dispatcher) Display(target protocol.Target, id string, content *models.Content) {
	if content == nil {
		d.emit(target, id, protocol.Exception(fault.NullContent()))
		return
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventDisplay, protocol.DisplayPayload{
		Content: protocol.ContentInfoOf(content),
	}))
}

// Identify commands the target to show its id on screen for durationMs
// milliseconds; zero or negative falls back to the configured default.
func (d *Dispatcher) Identify(target protocol.Target, id string, durationMs int64) {
	if durationMs <= 0 {
		durationMs = d.defaults.IdentifyDuration.Milliseconds()
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventIdentify, protocol.IdentifyPayload{Duration: durationMs}))
}

// Reload commands the target to reload its rendering surface.
func (d *Dispatcher) Reload(target protocol.Target, id string) {
	d.emit(target, id, protocol.NewMessage(protocol.EventReload, nil))
}

// Play toggles playback on the target.
func (d *Dispatcher) Play(target protocol.Target, id string, playing bool) {
	d.emit(target, id, protocol.NewMessage(protocol.EventPlay, protocol.PlayPayload{Play: playing}))
}

// Forward commands a forward jump; zero or negative durationMs falls
// back to the configured default.
func (d *Dispatcher) Forward(target protocol.Target, id string, durationMs int64) {
	if durationMs <= 0 {
		durationMs = d.defaults.ForwardDuration.Milliseconds()
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventForward, protocol.SeekPayload{Duration: durationMs}))
}

// Rewind commands a backward jump; zero or negative durationMs falls
// back to the configured default.
func (d *Dispatcher) Rewind(target protocol.Target, id string, durationMs int64) {
	if durationMs <= 0 {
		durationMs = d.defaults.RewindDuration.Milliseconds()
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventRewind, protocol.SeekPayload{Duration: durationMs}))
}

// Brightness sets the display brightness ratio; a zero value falls back
// to the configured default.
func (d *Dispatcher) Brightness(target protocol.Target, id string, ratio float64) {
	if ratio == 0 {
		ratio = d.defaults.Brightness
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventBrightness, protocol.BrightnessPayload{Brightness: ratio}))
}

// Volume sets the audio volume ratio; a zero value falls back to the
// configured default.
func (d *Dispatcher) Volume(target protocol.Target, id string, ratio float64) {
	if ratio == 0 {
		ratio = d.defaults.Volume
	}
	d.emit(target, id, protocol.NewMessage(protocol.EventVolume, protocol.VolumePayload{Volume: ratio}))
}

// Mute toggles audio mute on the target.
func (d *Dispatcher) Mute(target protocol.Target, id string, muted bool) {
	d.emit(target, id, protocol.NewMessage(protocol.EventMute, protocol.MutePayload{Muted: muted}))
}

// ShowTitle toggles the on-screen content title on the target.
func (d *Dispatcher) ShowTitle(target protocol.Target, id string, show bool) {
	d.emit(target, id, protocol.NewMessage(protocol.EventShowTitle, protocol.ShowTitlePayload{Show: show}))
}

// Throw delivers a typed error to one device, unconditionally. Used for
// out-of-band conditions (device deleted, device deactivated) that are
// not part of the command set.
func (d *Dispatcher) Throw(deviceID string, err *fault.Error) {
	if conn, ok := d.registry.Get(deviceID); ok {
		metrics.CommandsDispatched.WithLabelValues(protocol.EventException).Inc()
		conn.Send(protocol.Exception(err))
	}
}
