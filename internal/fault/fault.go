// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package fault defines the coded error taxonomy shared by the websocket
// protocol and the HTTP API. Every error a client can observe carries a
// stable machine-readable code; the code is what travels in the websocket
// "exception" payload and in HTTP error bodies.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeAlreadyInUse      Code = "ALREADY_IN_USE"
	CodeUnsupportedClient Code = "UNSUPPORTED_CLIENT"
	CodeInactive          Code = "INACTIVE"
	CodeNullContent       Code = "NULL_CONTENT"
	CodeDeleted           Code = "DELETED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeValidation        Code = "VALIDATION_FAILED"
	CodeUnsupportedAction Code = "UNSUPPORTED_ACTION"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeInternal          Code = "INTERNAL"
)

// Error is a coded error. The zero Message falls back to a per-code default.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.wrapped }

// Status maps the code to an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodeNotFound, CodeDeleted:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyInUse:
		return http.StatusConflict
	case CodeForbidden, CodeInactive:
		return http.StatusForbidden
	case CodeValidation, CodeUnsupportedAction, CodeNullContent:
		return http.StatusBadRequest
	case CodeUnsupportedClient:
		return http.StatusUpgradeRequired
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// AlreadyInUse reports a duplicate registration for a device id.
func AlreadyInUse(deviceID string) *Error {
	return New(CodeAlreadyInUse, "device '%s' is already connected", deviceID)
}

// UnsupportedClient reports a client version below the supported minimum.
func UnsupportedClient(version, minimum string) *Error {
	return New(CodeUnsupportedClient, "client version is %s, please upgrade to %s or later", version, minimum)
}

// Inactive reports an administratively disabled device or group.
func Inactive() *Error {
	return New(CodeInactive, "device or its group is inactive")
}

// NullContent reports a device with nothing assigned to display.
func NullContent() *Error {
	return New(CodeNullContent, "no content assigned")
}

// Deleted reports a device removed while connected.
func Deleted(deviceID string) *Error {
	return New(CodeDeleted, "device '%s' has been deleted", deviceID)
}

// Forbidden reports a disallowed operation.
func Forbidden(format string, args ...any) *Error {
	return New(CodeForbidden, format, args...)
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Conflict reports a uniqueness violation.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// UnsupportedAction reports an unrecognized command name.
func UnsupportedAction(action string) *Error {
	return New(CodeUnsupportedAction, "unsupported action '%s'", action)
}

// Unauthorized reports a failed shared-secret check.
func Unauthorized() *Error {
	return New(CodeUnauthorized, "authentication failed")
}

// Internal wraps an unexpected error without leaking its detail to clients.
func Internal(err error) *Error {
	return Wrap(CodeInternal, err, "internal error")
}

// CodeOf extracts the code from an error chain.
// Unrecognized errors report CodeInternal.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

// StatusOf maps an error chain to an HTTP status.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status()
	}
	return http.StatusInternalServerError
}
