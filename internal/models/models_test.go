// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package models

import "testing"

func int64p(v int64) *int64 { return &v }

func TestNormalizeRecurrence(t *testing.T) {
	tests := []struct {
		name      string
		delay     *int64
		count     *int64
		wantDelay *int64
		wantCount *int64
	}{
		{"both nil", nil, nil, nil, nil},
		{"count without delay is cleared", nil, int64p(5), nil, nil},
		{"delay without count defaults count to one", int64p(60), nil, int64p(60), int64p(1)},
		{"both set are kept", int64p(60), int64p(3), int64p(60), int64p(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Schedule{RecurrenceDelay: tt.delay, Recurrences: tt.count}
			s.NormalizeRecurrence()

			if !equalInt64p(s.RecurrenceDelay, tt.wantDelay) {
				t.Errorf("delay = %v, want %v", s.RecurrenceDelay, tt.wantDelay)
			}
			if !equalInt64p(s.Recurrences, tt.wantCount) {
				t.Errorf("count = %v, want %v", s.Recurrences, tt.wantCount)
			}
		})
	}
}

func equalInt64p(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestScheduleOriginValid(t *testing.T) {
	if !OriginUser.Valid() || !OriginPlaylist.Valid() {
		t.Error("known origins should be valid")
	}
	if ScheduleOrigin("cron").Valid() {
		t.Error("unknown origin should be invalid")
	}
	if ScheduleOrigin("").Valid() {
		t.Error("empty origin should be invalid")
	}
}
