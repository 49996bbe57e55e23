// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package protocol defines the closed set of events exchanged with
// devices over the websocket transport, and the command actions the HTTP
// layer may dispatch. The set is closed on purpose: an unrecognized
// action name is a decode-time error, never a runtime default case.
package protocol

import (
	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
)

// Target selects which live sessions receive a dispatched command.
type Target string

const (
	TargetOne   Target = "one"
	TargetGroup Target = "group"
	TargetAll   Target = "all"
)

// Event names on the device websocket.
const (
	// Inbound from devices.
	EventRegister = "register"

	// Outbound to devices.
	EventInit       = "init"
	EventException  = "exception"
	EventDisplay    = "display"
	EventIdentify   = "identify"
	EventReload     = "reload"
	EventPlay       = "play"
	EventForward    = "forward"
	EventRewind     = "rewind"
	EventBrightness = "brightness"
	EventVolume     = "volume"
	EventMute       = "mute"
	EventShowTitle  = "show_title"
)

// Message is the wire envelope for both directions. Data is left raw on
// read so each handler decodes its own payload shape.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an outbound envelope, encoding the payload.
// Encoding failures cannot happen for the closed payload set, so the
// payload is dropped rather than propagated.
func NewMessage(event string, payload any) Message {
	if payload == nil {
		return Message{Event: event}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{Event: event}
	}
	return Message{Event: event, Data: data}
}

// RegisterPayload is the handshake a device sends after connecting.
type RegisterPayload struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Machine    string `json:"machine"`
	ScreenSize string `json:"screenSize"`
}

// ContentInfo is the subset of a content row pushed to devices.
type ContentInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	URI         string `json:"uri"`
}

// ContentInfoOf projects a content row onto its wire shape.
func ContentInfoOf(c *models.Content) ContentInfo {
	return ContentInfo{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Description: c.Description,
		Type:        c.Type,
		URI:         c.URI,
	}
}

// DeviceState is the playback state pushed in the init payload.
type DeviceState struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	Brightness  float64 `json:"brightness"`
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
	ShowTitle   bool    `json:"showTitle"`
}

// InitPayload is the initial state pushed to a freshly registered device.
type InitPayload struct {
	Content ContentInfo `json:"content"`
	Device  DeviceState `json:"tv"`
}

// ExceptionPayload carries a typed error notification to a device.
type ExceptionPayload struct {
	Code    fault.Code `json:"code"`
	Message string     `json:"message"`
}

// Exception wraps a coded error as an outbound message.
func Exception(err *fault.Error) Message {
	return NewMessage(EventException, ExceptionPayload{Code: err.Code, Message: err.Message})
}

// DisplayPayload commands a device to render a content item.
type DisplayPayload struct {
	Content ContentInfo `json:"content"`
}

// IdentifyPayload commands a device to show its id on screen.
type IdentifyPayload struct {
	Duration int64 `json:"duration"` // milliseconds
}

// PlayPayload toggles playback.
type PlayPayload struct {
	Play bool `json:"play"`
}

// SeekPayload commands a forward or rewind jump.
type SeekPayload struct {
	Duration int64 `json:"duration"` // milliseconds
}

// BrightnessPayload sets the display brightness ratio.
type BrightnessPayload struct {
	Brightness float64 `json:"brightness"`
}

// VolumePayload sets the audio volume ratio.
type VolumePayload struct {
	Volume float64 `json:"volume"`
}

// MutePayload toggles audio mute.
type MutePayload struct {
	Muted bool `json:"muted"`
}

// ShowTitlePayload toggles the on-screen content title.
type ShowTitlePayload struct {
	Show bool `json:"show"`
}

// Action is a command name accepted by the HTTP dispatch endpoint.
type Action string

const (
	ActionIdentify   Action = "identify"
	ActionReload     Action = "reload"
	ActionPlay       Action = "play"
	ActionPause      Action = "pause"
	ActionForward    Action = "forward"
	ActionRewind     Action = "rewind"
	ActionBrightness Action = "brightness"
	ActionVolume     Action = "volume"
	ActionMute       Action = "mute"
	ActionUnmute     Action = "unmute"
	ActionShowTitle  Action = "show_title"
	ActionHideTitle  Action = "hide_title"
)

// ParseAction validates a command name. Unknown names fail with
// UNSUPPORTED_ACTION.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionIdentify, ActionReload, ActionPlay, ActionPause,
		ActionForward, ActionRewind, ActionBrightness, ActionVolume,
		ActionMute, ActionUnmute, ActionShowTitle, ActionHideTitle:
		return a, nil
	default:
		return "", fault.UnsupportedAction(name)
	}
}

// ParseTarget validates a target kind. Unknown kinds fail with
// VALIDATION_FAILED.
func ParseTarget(name string) (Target, error) {
	switch t := Target(name); t {
	case TargetOne, TargetGroup, TargetAll:
		return t, nil
	default:
		return "", fault.Validation("unknown target kind '%s'", name)
	}
}
