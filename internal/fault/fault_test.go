// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantCode   Code
		wantStatus int
	}{
		{"already in use", AlreadyInUse("lobby"), CodeAlreadyInUse, http.StatusConflict},
		{"unsupported client", UnsupportedClient("2.0.0", "v3.0.0"), CodeUnsupportedClient, http.StatusUpgradeRequired},
		{"inactive", Inactive(), CodeInactive, http.StatusForbidden},
		{"null content", NullContent(), CodeNullContent, http.StatusBadRequest},
		{"deleted", Deleted("lobby"), CodeDeleted, http.StatusNotFound},
		{"forbidden", Forbidden("nope"), CodeForbidden, http.StatusForbidden},
		{"not found", NotFound("missing"), CodeNotFound, http.StatusNotFound},
		{"conflict", Conflict("dup"), CodeConflict, http.StatusConflict},
		{"validation", Validation("bad"), CodeValidation, http.StatusBadRequest},
		{"unsupported action", UnsupportedAction("dance"), CodeUnsupportedAction, http.StatusBadRequest},
		{"unauthorized", Unauthorized(), CodeUnauthorized, http.StatusUnauthorized},
		{"internal", Internal(errors.New("boom")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if got := tt.err.Status(); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
			if tt.err.Error() == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("loading device: %w", NotFound("device 'x' doesn't exist"))

	if !Is(err, CodeNotFound) {
		t.Error("Is should find the code through fmt.Errorf wrapping")
	}
	if Is(err, CodeConflict) {
		t.Error("Is matched the wrong code")
	}
	if got := CodeOf(err); got != CodeNotFound {
		t.Errorf("CodeOf = %s, want %s", got, CodeNotFound)
	}
	if got := StatusOf(err); got != http.StatusNotFound {
		t.Errorf("StatusOf = %d, want %d", got, http.StatusNotFound)
	}
}

func TestUncodedErrors(t *testing.T) {
	err := errors.New("plain")

	if Is(err, CodeInternal) {
		t.Error("Is should not match plain errors")
	}
	if got := CodeOf(err); got != CodeInternal {
		t.Errorf("CodeOf = %s, want %s", got, CodeInternal)
	}
	if got := StatusOf(err); got != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)

	if err.Error() == cause.Error() {
		t.Error("internal error should not leak its cause in the message")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should still be reachable via errors.Is")
	}
}

func TestEmptyMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeConflict}
	if err.Error() != string(CodeConflict) {
		t.Errorf("Error() = %q, want %q", err.Error(), CodeConflict)
	}
}
