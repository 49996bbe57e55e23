// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package api provides the HTTP surface of the coordinator: resource
// endpoints, the action dispatch endpoint and the device websocket.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/logging"
)

type errorBody struct {
	Code    fault.Code `json:"code"`
	Message string     `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a coded fault onto its HTTP status and JSON body.
// Uncoded errors become an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		logging.Error().Err(err).Msg("unhandled error in HTTP handler")
		fe = fault.Internal(err)
	}
	writeJSON(w, fe.Status(), errorBody{Code: fe.Code, Message: fe.Error()})
}

// decodeBody decodes a JSON request body, mapping failures to a
// validation fault.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.Validation("invalid request body: %v", err)
	}
	return nil
}
