// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package directory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/dispatch"
	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/protocol"
	"github.com/kioskd/kioskd/internal/store"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (c *fakeConn) Send(msg protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return true
}

func (c *fakeConn) Close()           {}
func (c *fakeConn) RemoteIP() string { return "10.0.0.1" }

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, m := range c.sent {
		out[i] = m.Event
	}
	return out
}

func (c *fakeConn) last() protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

func strp(s string) *string       { return &s }
func boolp(b bool) *bool          { return &b }
func float64p(v float64) *float64 { return &v }

// newService builds a directory over a fresh store with one group, two
// contents and one connected device.
func newService(t *testing.T) (*Service, *presence.Registry, *fakeConn) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()

	if _, err := st.CreateGroup(ctx, &models.Group{ID: "floor1", DisplayName: "First Floor", Active: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreateGroup(ctx, &models.Group{ID: "floor2", DisplayName: "Second Floor", Active: true}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"menu", "promo"} {
		if _, err := st.CreateContent(ctx, &models.Content{
			ID: id, DisplayName: id, Type: "image", URI: "https://cdn/" + id + ".png",
		}); err != nil {
			t.Fatal(err)
		}
	}

	registry := presence.NewRegistry()
	dispatcher := dispatch.New(registry, config.Defaults{
		IdentifyDuration: 3 * time.Second,
		ForwardDuration:  15 * time.Second,
		RewindDuration:   15 * time.Second,
		Brightness:       1.0,
		Volume:           0.5,
	})
	svc := New(st, dispatcher, registry)

	if _, err := svc.CreateDevice(ctx, &models.Device{
		ID: "lobby", DisplayName: "Lobby Screen", Active: true,
		ContentID: strp("menu"), GroupID: strp("floor1"),
		Brightness: 1.0, Volume: 0.5, ShowTitle: true,
	}); err != nil {
		t.Fatal(err)
	}

	conn := &fakeConn{}
	registry.Add("lobby", conn)
	registry.Join("lobby", "floor1")
	return svc, registry, conn
}

func TestUpdateDeviceContentChangeCastsDisplay(t *testing.T) {
	svc, _, conn := newService(t)

	_, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		ContentID: store.SetRef(strp("promo")),
	})
	if err != nil {
		t.Fatal(err)
	}

	events := conn.events()
	if len(events) != 1 || events[0] != protocol.EventDisplay {
		t.Fatalf("events = %v, want [display]", events)
	}
	var payload protocol.DisplayPayload
	if err := json.Unmarshal(conn.last().Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Content.ID != "promo" {
		t.Errorf("displayed content = %s, want promo", payload.Content.ID)
	}
}

func TestUpdateDeviceClearingContentCastsNullContent(t *testing.T) {
	svc, _, conn := newService(t)

	if _, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		ContentID: store.SetRef(nil),
	}); err != nil {
		t.Fatal(err)
	}

	events := conn.events()
	if len(events) != 1 || events[0] != protocol.EventException {
		t.Fatalf("events = %v, want [exception]", events)
	}
}

func TestUpdateDeviceAttributeFanOut(t *testing.T) {
	svc, _, conn := newService(t)

	_, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		Brightness: float64p(0.4),
		Muted:      boolp(true),
		ShowTitle:  boolp(false),
	})
	if err != nil {
		t.Fatal(err)
	}

	events := conn.events()
	want := []string{protocol.EventBrightness, protocol.EventMute, protocol.EventShowTitle}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestUpdateDeviceUnchangedFieldsSilent(t *testing.T) {
	svc, _, conn := newService(t)

	// Same values as seeded: nothing should be pushed.
	_, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		Brightness: float64p(1.0),
		Muted:      boolp(false),
	})
	if err != nil {
		t.Fatal(err)
	}
	if events := conn.events(); len(events) != 0 {
		t.Errorf("events = %v, want none", events)
	}
}

func TestUpdateDeviceDeactivationThrowsInactive(t *testing.T) {
	svc, _, conn := newService(t)

	if _, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		Active: boolp(false),
	}); err != nil {
		t.Fatal(err)
	}

	events := conn.events()
	if len(events) != 1 || events[0] != protocol.EventException {
		t.Fatalf("events = %v, want [exception]", events)
	}
	var payload protocol.ExceptionPayload
	if err := json.Unmarshal(conn.last().Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != fault.CodeInactive {
		t.Errorf("code = %s, want INACTIVE", payload.Code)
	}
}

func TestUpdateDeviceReactivationReplaysState(t *testing.T) {
	svc, _, conn := newService(t)
	ctx := context.Background()

	if _, err := svc.UpdateDevice(ctx, "lobby", store.DevicePatch{Active: boolp(false)}); err != nil {
		t.Fatal(err)
	}
	conn.reset()

	if _, err := svc.UpdateDevice(ctx, "lobby", store.DevicePatch{Active: boolp(true)}); err != nil {
		t.Fatal(err)
	}

	// Reactivation replays content and every playback attribute.
	events := conn.events()
	want := []string{
		protocol.EventDisplay, protocol.EventBrightness, protocol.EventMute,
		protocol.EventVolume, protocol.EventShowTitle,
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestUpdateDeviceGroupChangeMovesMembership(t *testing.T) {
	svc, registry, _ := newService(t)

	if _, err := svc.UpdateDevice(context.Background(), "lobby", store.DevicePatch{
		GroupID: store.SetRef(strp("floor2")),
	}); err != nil {
		t.Fatal(err)
	}

	if got := len(registry.Group("floor1")); got != 0 {
		t.Errorf("floor1 members = %d, want 0", got)
	}
	if got := len(registry.Group("floor2")); got != 1 {
		t.Errorf("floor2 members = %d, want 1", got)
	}
}

func TestSetContent(t *testing.T) {
	svc, _, conn := newService(t)

	if err := svc.SetContent(context.Background(), "lobby", "promo"); err != nil {
		t.Fatal(err)
	}

	events := conn.events()
	if len(events) != 1 || events[0] != protocol.EventDisplay {
		t.Fatalf("events = %v, want [display]", events)
	}

	device, err := svc.GetDevice(context.Background(), "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if device.ContentID == nil || *device.ContentID != "promo" {
		t.Errorf("content = %v, want promo", device.ContentID)
	}
}

func TestDeleteDeviceThrowsDeleted(t *testing.T) {
	svc, _, conn := newService(t)

	if err := svc.DeleteDevice(context.Background(), "lobby"); err != nil {
		t.Fatal(err)
	}

	var payload protocol.ExceptionPayload
	if err := json.Unmarshal(conn.last().Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != fault.CodeDeleted {
		t.Errorf("code = %s, want DELETED", payload.Code)
	}

	if _, err := svc.GetDevice(context.Background(), "lobby"); !fault.Is(err, fault.CodeNotFound) {
		t.Error("device row should be gone")
	}
}

func TestMarkOnlineOffline(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if err := svc.MarkOnline(ctx, "lobby", presence.LiveFields{
		IP: "10.0.0.1", Machine: "rpi4", ScreenSize: "1920x1080", Version: "3.2.0",
	}); err != nil {
		t.Fatal(err)
	}

	device, err := svc.GetDevice(ctx, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if !device.On || device.Version != "3.2.0" || device.IP != "10.0.0.1" {
		t.Errorf("live fields not applied: %+v", device)
	}

	if err := svc.MarkOffline(ctx, "lobby"); err != nil {
		t.Fatal(err)
	}
	device, _ = svc.GetDevice(ctx, "lobby")
	if device.On {
		t.Error("device should be flagged off")
	}
}

func TestCreateContentGeneratesID(t *testing.T) {
	svc, _, _ := newService(t)

	content, err := svc.CreateContent(context.Background(), &models.Content{
		DisplayName: "Ad", Type: "video", URI: "https://cdn/ad.mp4",
	})
	if err != nil {
		t.Fatal(err)
	}
	if content.ID == "" {
		t.Error("a missing id should be generated")
	}
}
