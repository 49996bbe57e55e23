// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/protocol"
	"github.com/kioskd/kioskd/internal/store"
)

// Health reports liveness and the live session count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": h.registry.Len(),
	})
}

// actionParams is the free-form parameter bag of a dispatched action.
// Each action reads only the parameters it understands.
type actionParams struct {
	Duration   int64   `json:"duration"`
	Brightness float64 `json:"brightness"`
	Volume     float64 `json:"volume"`
}

type actionRequest struct {
	Target string       `json:"target"`
	ID     string       `json:"id"`
	Action string       `json:"action"`
	Params actionParams `json:"params"`
}

// DispatchAction translates an HTTP command invocation into a broadcast.
// Unknown action names fail with UNSUPPORTED_ACTION before anything is
// dispatched. Broadcast itself is asynchronous and best-effort, so the
// response is always 202 once the action decodes.
func (h *Handler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Target == "" {
		req.Target = string(protocol.TargetOne)
	}
	target, err := protocol.ParseTarget(req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := protocol.ParseAction(req.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	switch action {
	case protocol.ActionIdentify:
		h.dispatcher.Identify(target, req.ID, req.Params.Duration)
	case protocol.ActionReload:
		h.dispatcher.Reload(target, req.ID)
	case protocol.ActionPlay:
		h.dispatcher.Play(target, req.ID, true)
	case protocol.ActionPause:
		h.dispatcher.Play(target, req.ID, false)
	case protocol.ActionForward:
		h.dispatcher.Forward(target, req.ID, req.Params.Duration)
	case protocol.ActionRewind:
		h.dispatcher.Rewind(target, req.ID, req.Params.Duration)
	case protocol.ActionBrightness:
		h.dispatcher.Brightness(target, req.ID, req.Params.Brightness)
	case protocol.ActionVolume:
		h.dispatcher.Volume(target, req.ID, req.Params.Volume)
	case protocol.ActionMute:
		h.dispatcher.Mute(target, req.ID, true)
	case protocol.ActionUnmute:
		h.dispatcher.Mute(target, req.ID, false)
	case protocol.ActionShowTitle:
		h.dispatcher.ShowTitle(target, req.ID, true)
	case protocol.ActionHideTitle:
		h.dispatcher.ShowTitle(target, req.ID, false)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

// optionalString distinguishes an absent JSON field from an explicit
// null, so a PATCH can clear a nullable reference.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

type devicePayload struct {
	ID          string  `json:"id" validate:"required,max=32"`
	DisplayName string  `json:"displayName" validate:"required"`
	Description string  `json:"description"`
	Active      *bool   `json:"active"`
	ContentID   *string `json:"content"`
	GroupID     *string `json:"group"`
}

// CreateDevice registers a new device in the directory.
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, fault.Validation("%v", err))
		return
	}

	device := &models.Device{
		ID:          payload.ID,
		DisplayName: payload.DisplayName,
		Description: payload.Description,
		Active:      true,
		ContentID:   payload.ContentID,
		GroupID:     payload.GroupID,
		Brightness:  h.cfg.Defaults.Brightness,
		Volume:      h.cfg.Defaults.Volume,
		ShowTitle:   true,
	}
	if payload.Active != nil {
		device.Active = *payload.Active
	}

	created, err := h.directory.CreateDevice(r.Context(), device)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListDevices fetches devices, optionally filtered by group, content or
// active flag.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	var filter store.DeviceFilter
	if v := r.URL.Query().Get("group"); v != "" {
		filter.GroupID = &v
	}
	if v := r.URL.Query().Get("content"); v != "" {
		filter.ContentID = &v
	}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, fault.Validation("invalid active filter %q", v))
			return
		}
		filter.Active = &active
	}

	devices, err := h.directory.ListDevices(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if devices == nil {
		devices = []models.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

// GetDevice fetches one device; ?resolve=true includes its group and
// content rows.
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if resolve, _ := strconv.ParseBool(r.URL.Query().Get("resolve")); resolve {
		view, err := h.directory.FindDevice(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	device, err := h.directory.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

type devicePatchPayload struct {
	DisplayName *string        `json:"displayName"`
	Description *string        `json:"description"`
	Active      *bool          `json:"active"`
	ContentID   optionalString `json:"content"`
	GroupID     optionalString `json:"group"`
	Brightness  *float64       `json:"brightness"`
	Volume      *float64       `json:"volume"`
	Muted       *bool          `json:"muted"`
	ShowTitle   *bool          `json:"showTitle"`
}

// UpdateDevice applies an administrative partial update. Live telemetry
// fields (ip, machine, on, screenSize, version) are not settable here;
// only the registration path touches them.
func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePatchPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	patch := store.DevicePatch{
		DisplayName: payload.DisplayName,
		Description: payload.Description,
		Active:      payload.Active,
		Brightness:  payload.Brightness,
		Volume:      payload.Volume,
		Muted:       payload.Muted,
		ShowTitle:   payload.ShowTitle,
	}
	if payload.ContentID.Set {
		patch.ContentID = store.SetRef(payload.ContentID.Value)
	}
	if payload.GroupID.Set {
		patch.GroupID = store.SetRef(payload.GroupID.Value)
	}

	device, err := h.directory.UpdateDevice(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// DeleteDevice removes a device and notifies its screen.
func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type groupPayload struct {
	ID          string `json:"id" validate:"required,max=32"`
	DisplayName string `json:"displayName" validate:"required"`
	Active      *bool  `json:"active"`
}

// CreateGroup registers a new group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var payload groupPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, fault.Validation("%v", err))
		return
	}

	group := &models.Group{ID: payload.ID, DisplayName: payload.DisplayName, Active: true}
	if payload.Active != nil {
		group.Active = *payload.Active
	}
	created, err := h.directory.CreateGroup(r.Context(), group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetGroup fetches one group.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.directory.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

type contentPayload struct {
	ID          string `json:"id" validate:"max=32"`
	DisplayName string `json:"displayName" validate:"required"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"required"`
	URI         string `json:"uri" validate:"required"`
}

// CreateContent registers a new content item. A missing id gets a
// generated one.
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var payload contentPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, fault.Validation("%v", err))
		return
	}

	created, err := h.directory.CreateContent(r.Context(), &models.Content{
		ID:          payload.ID,
		DisplayName: payload.DisplayName,
		Description: payload.Description,
		Type:        payload.Type,
		URI:         payload.URI,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetContent fetches one content item.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	content, err := h.directory.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// ListSchedules fetches schedules ordered by fire time, optionally
// filtered by device, content or origin.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var filter store.ScheduleFilter
	if v := r.URL.Query().Get("tv"); v != "" {
		filter.DeviceID = &v
	}
	if v := r.URL.Query().Get("content"); v != "" {
		filter.ContentID = &v
	}
	if v := r.URL.Query().Get("origin"); v != "" {
		origin := models.ScheduleOrigin(v)
		if !origin.Valid() {
			writeError(w, fault.Validation("unknown schedule origin '%s'", v))
			return
		}
		filter.Origin = &origin
	}

	schedules, err := h.scheduler.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

// CreateSchedule persists a user schedule and arms its timer.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var params store.ScheduleParams
	if err := decodeBody(r, &params); err != nil {
		writeError(w, err)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, fault.Validation("%v", err))
		return
	}

	sched, err := h.scheduler.AddOne(r.Context(), params, models.OriginUser)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// DeleteSchedule removes a user schedule. Playlist-generated rows are
// rejected with FORBIDDEN on this public path.
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, fault.Validation("invalid schedule id"))
		return
	}
	if err := h.scheduler.DeleteOne(r.Context(), id, false); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
