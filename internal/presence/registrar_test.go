// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kioskd/kioskd/internal/config"
	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/protocol"
)

// fakeDirectory is an in-memory presence.Directory.
type fakeDirectory struct {
	mu      sync.Mutex
	views   map[string]*models.DeviceView
	online  map[string]LiveFields
	offline []string
	findErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		views:  make(map[string]*models.DeviceView),
		online: make(map[string]LiveFields),
	}
}

func (d *fakeDirectory) FindDevice(_ context.Context, id string) (*models.DeviceView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.findErr != nil {
		return nil, d.findErr
	}
	view, ok := d.views[id]
	if !ok {
		return nil, fault.NotFound("device '%s' doesn't exist", id)
	}
	return view, nil
}

func (d *fakeDirectory) MarkOnline(_ context.Context, id string, fields LiveFields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online[id] = fields
	return nil
}

func (d *fakeDirectory) MarkOffline(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.views[id]; !ok {
		return fault.NotFound("device '%s' doesn't exist", id)
	}
	d.offline = append(d.offline, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Registration: config.RegistrationConfig{MinClientVersion: "3.0.0"},
		Defaults:     config.Defaults{IdentifyDuration: 3 * time.Second},
	}
}

func activeView(id string) *models.DeviceView {
	return &models.DeviceView{
		Device: models.Device{
			ID: id, DisplayName: "Screen " + id, Active: true,
			ContentID: ref("menu"), Brightness: 1.0, Volume: 0.5, ShowTitle: true,
		},
		Content: &models.Content{ID: "menu", DisplayName: "Menu", Type: "image", URI: "https://cdn/menu.png"},
	}
}

func ref(s string) *string { return &s }

func register(t *testing.T, r *Registrar, conn Conn, id, version string) bool {
	t.Helper()
	return r.Register(context.Background(), conn, protocol.RegisterPayload{
		ID: id, Version: version, Machine: "rpi4", ScreenSize: "1920x1080",
	})
}

func exceptionCode(t *testing.T, msg protocol.Message) fault.Code {
	t.Helper()
	if msg.Event != protocol.EventException {
		t.Fatalf("event = %q, want exception", msg.Event)
	}
	var payload protocol.ExceptionPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("failed to decode exception: %v", err)
	}
	return payload.Code
}

func TestRegisterHappyPath(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	dir.views["lobby"] = activeView("lobby")
	dir.views["lobby"].GroupID = ref("floor1")
	r := NewRegistrar(registry, dir, testConfig())

	conn := newFakeConn()
	if !register(t, r, conn, "lobby", "3.2.0") {
		t.Fatal("registration should be admitted")
	}

	if _, ok := registry.Get("lobby"); !ok {
		t.Error("session should be recorded")
	}
	if got := len(registry.Group("floor1")); got != 1 {
		t.Errorf("group members = %d, want 1", got)
	}

	events := conn.events()
	if len(events) != 2 || events[0] != protocol.EventInit || events[1] != protocol.EventIdentify {
		t.Fatalf("events = %v, want [init identify]", events)
	}

	var init protocol.InitPayload
	if err := json.Unmarshal(conn.messages()[0].Data, &init); err != nil {
		t.Fatalf("failed to decode init: %v", err)
	}
	if init.Content.ID != "menu" || init.Device.ID != "lobby" {
		t.Errorf("init payload = %+v", init)
	}

	fields, ok := dir.online["lobby"]
	if !ok {
		t.Fatal("device should be flagged online")
	}
	if fields.Version != "3.2.0" || fields.Machine != "rpi4" || fields.IP != "10.0.0.1" {
		t.Errorf("live fields = %+v", fields)
	}
}

func TestRegisterRejectsOldClient(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	dir.views["lobby"] = activeView("lobby")
	r := NewRegistrar(registry, dir, testConfig())

	conn := newFakeConn()
	if register(t, r, conn, "lobby", "2.9.9") {
		t.Fatal("old client should be rejected")
	}

	if _, ok := registry.Get("lobby"); ok {
		t.Error("no session should be recorded")
	}
	msgs := conn.messages()
	if len(msgs) != 1 || exceptionCode(t, msgs[0]) != fault.CodeUnsupportedClient {
		t.Errorf("messages = %v", conn.events())
	}
}

func TestRegisterRejectsDuplicateKeepsFirst(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	dir.views["lobby"] = activeView("lobby")
	r := NewRegistrar(registry, dir, testConfig())

	first, second := newFakeConn(), newFakeConn()
	if !register(t, r, first, "lobby", "3.0.0") {
		t.Fatal("first registration should succeed")
	}
	if register(t, r, second, "lobby", "3.0.0") {
		t.Fatal("second registration for the same id should be rejected")
	}

	conn, _ := registry.Get("lobby")
	if conn != Conn(first) {
		t.Error("the first session must stay in place")
	}
	msgs := second.messages()
	if len(msgs) != 1 || exceptionCode(t, msgs[0]) != fault.CodeAlreadyInUse {
		t.Errorf("second connection events = %v", second.events())
	}
}

func TestRegisterUnknownDeviceLeavesNoSession(t *testing.T) {
	registry := NewRegistry()
	r := NewRegistrar(registry, newFakeDirectory(), testConfig())

	conn := newFakeConn()
	if register(t, r, conn, "ghost", "3.0.0") {
		t.Fatal("unknown device should be rejected")
	}
	if _, ok := registry.Get("ghost"); ok {
		t.Error("rejected registration must not leave a session behind")
	}
	msgs := conn.messages()
	if len(msgs) != 1 || exceptionCode(t, msgs[0]) != fault.CodeNotFound {
		t.Errorf("events = %v", conn.events())
	}
}

func TestRegisterInactiveDevice(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	view := activeView("lobby")
	view.Active = false
	dir.views["lobby"] = view
	r := NewRegistrar(registry, dir, testConfig())

	conn := newFakeConn()
	if !register(t, r, conn, "lobby", "3.0.0") {
		t.Fatal("inactive device is still admitted")
	}

	msgs := conn.messages()
	if len(msgs) != 2 {
		t.Fatalf("events = %v", conn.events())
	}
	if exceptionCode(t, msgs[0]) != fault.CodeInactive {
		t.Errorf("first message code = %s, want INACTIVE", exceptionCode(t, msgs[0]))
	}
}

func TestRegisterInactiveGroup(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	view := activeView("lobby")
	view.GroupID = ref("floor1")
	view.Group = &models.Group{ID: "floor1", DisplayName: "First Floor", Active: false}
	dir.views["lobby"] = view
	r := NewRegistrar(registry, dir, testConfig())

	conn := newFakeConn()
	register(t, r, conn, "lobby", "3.0.0")

	msgs := conn.messages()
	if len(msgs) == 0 || exceptionCode(t, msgs[0]) != fault.CodeInactive {
		t.Errorf("events = %v, want inactive exception first", conn.events())
	}
}

func TestRegisterNullContent(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	view := activeView("lobby")
	view.ContentID = nil
	view.Content = nil
	dir.views["lobby"] = view
	r := NewRegistrar(registry, dir, testConfig())

	conn := newFakeConn()
	register(t, r, conn, "lobby", "3.0.0")

	msgs := conn.messages()
	if len(msgs) == 0 || exceptionCode(t, msgs[0]) != fault.CodeNullContent {
		t.Errorf("events = %v, want null content exception first", conn.events())
	}
}

func TestUnregister(t *testing.T) {
	registry := NewRegistry()
	dir := newFakeDirectory()
	dir.views["lobby"] = activeView("lobby")
	r := NewRegistrar(registry, dir, testConfig())

	register(t, r, newFakeConn(), "lobby", "3.0.0")
	r.Unregister(context.Background(), "lobby")

	if _, ok := registry.Get("lobby"); ok {
		t.Error("session should be removed")
	}
	if len(dir.offline) != 1 || dir.offline[0] != "lobby" {
		t.Errorf("offline = %v, want [lobby]", dir.offline)
	}

	// Idempotent, and a blank id is a no-op.
	r.Unregister(context.Background(), "lobby")
	r.Unregister(context.Background(), "")
	if len(dir.offline) != 1 {
		t.Errorf("offline = %v after repeat, want single entry", dir.offline)
	}
}
