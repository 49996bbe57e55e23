// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

// Package directory is the device/group/content service sitting between
// the durable store and the broadcast plane. Every device mutation that
// changes something a connected screen should see fans out to the
// dispatcher as a side effect of the update.
package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/kioskd/kioskd/internal/dispatch"
	"github.com/kioskd/kioskd/internal/fault"
	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/models"
	"github.com/kioskd/kioskd/internal/presence"
	"github.com/kioskd/kioskd/internal/protocol"
	"github.com/kioskd/kioskd/internal/store"
)

// Service implements the device directory.
type Service struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	registry   *presence.Registry
}

// New wires the directory against its store and the broadcast plane.
func New(st *store.Store, dispatcher *dispatch.Dispatcher, registry *presence.Registry) *Service {
	return &Service{store: st, dispatcher: dispatcher, registry: registry}
}

// FindDevice implements presence.Directory.
func (s *Service) FindDevice(ctx context.Context, id string) (*models.DeviceView, error) {
	return s.store.GetDeviceView(ctx, id)
}

// MarkOnline implements presence.Directory: the registration-time patch
// restricted to the live-field allow-list.
func (s *Service) MarkOnline(ctx context.Context, id string, fields presence.LiveFields) error {
	on := true
	_, err := s.store.UpdateDevice(ctx, id, store.DevicePatch{
		On:         &on,
		IP:         &fields.IP,
		Machine:    &fields.Machine,
		ScreenSize: &fields.ScreenSize,
		Version:    &fields.Version,
	})
	return err
}

// MarkOffline implements presence.Directory.
func (s *Service) MarkOffline(ctx context.Context, id string) error {
	off := false
	_, err := s.store.UpdateDevice(ctx, id, store.DevicePatch{On: &off})
	return err
}

// GetDevice fetches one device.
func (s *Service) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	return s.store.GetDevice(ctx, id)
}

// ListDevices fetches devices matching the filter.
func (s *Service) ListDevices(ctx context.Context, filter store.DeviceFilter) ([]models.Device, error) {
	return s.store.ListDevices(ctx, filter)
}

// GetGroup fetches one group.
func (s *Service) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	return s.store.GetGroup(ctx, id)
}

// GetContent fetches one content.
func (s *Service) GetContent(ctx context.Context, id string) (*models.Content, error) {
	return s.store.GetContent(ctx, id)
}

// CreateGroup inserts a new group.
func (s *Service) CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	return s.store.CreateGroup(ctx, group)
}

// CreateContent inserts a new content item, generating an id when the
// caller provided none.
func (s *Service) CreateContent(ctx context.Context, content *models.Content) (*models.Content, error) {
	if content.ID == "" {
		content.ID = uuid.NewString()
	}
	return s.store.CreateContent(ctx, content)
}

// CreateDevice inserts a new device and casts its state to the screen
// in case the device connected before being referenced: its content if
// it is active, an Inactive exception otherwise.
func (s *Service) CreateDevice(ctx context.Context, device *models.Device) (*models.Device, error) {
	created, err := s.store.CreateDevice(ctx, device)
	if err != nil {
		return nil, err
	}

	if created.Active {
		s.castContent(ctx, created)
	} else {
		s.dispatcher.Throw(created.ID, fault.Inactive())
	}
	if created.GroupID != nil {
		s.registry.Join(created.ID, *created.GroupID)
	}
	return created, nil
}

// UpdateDevice applies a partial update, then pushes whatever changed
// to the live screen: content and playback attributes individually, an
// Inactive exception on deactivation, and a group index re-join on
// group change (leave all, then join the new one).
func (s *Service) UpdateDevice(ctx context.Context, id string, patch store.DevicePatch) (*models.Device, error) {
	previous, err := s.store.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}

	device, err := s.store.UpdateDevice(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	reactivated := previous.Active != device.Active

	if device.Active {
		if !refEqual(previous.ContentID, device.ContentID) || reactivated {
			s.castContent(ctx, device)
		}
		if previous.Brightness != device.Brightness || reactivated {
			s.dispatcher.Brightness(protocol.TargetOne, id, device.Brightness)
		}
		if previous.Muted != device.Muted || reactivated {
			s.dispatcher.Mute(protocol.TargetOne, id, device.Muted)
		}
		if previous.Volume != device.Volume || reactivated {
			s.dispatcher.Volume(protocol.TargetOne, id, device.Volume)
		}
		if previous.ShowTitle != device.ShowTitle || reactivated {
			s.dispatcher.ShowTitle(protocol.TargetOne, id, device.ShowTitle)
		}
	} else if reactivated {
		s.dispatcher.Throw(id, fault.Inactive())
	}

	if !refEqual(previous.GroupID, device.GroupID) {
		groupID := ""
		if device.GroupID != nil {
			groupID = *device.GroupID
		}
		s.registry.Join(id, groupID)
	}

	return device, nil
}

// SetContent assigns a content to a device. This is the scheduler's
// execution path; the display command reaching the screen is a side
// effect of the update fan-out above.
func (s *Service) SetContent(ctx context.Context, deviceID, contentID string) error {
	_, err := s.UpdateDevice(ctx, deviceID, store.DevicePatch{
		ContentID: store.SetRef(&contentID),
	})
	return err
}

// DeleteDevice removes the device and tells its screen it is gone. The
// session stays open; the screen decides what to do with the exception.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	if err := s.store.DeleteDevice(ctx, id); err != nil {
		return err
	}
	s.dispatcher.Throw(id, fault.Deleted(id))
	return nil
}

// castContent resolves the device's assigned content and displays it;
// nil assignment dispatches the NullContent exception instead.
func (s *Service) castContent(ctx context.Context, device *models.Device) {
	if device.ContentID == nil {
		s.dispatcher.Display(protocol.TargetOne, device.ID, nil)
		return
	}
	content, err := s.store.GetContent(ctx, *device.ContentID)
	if err != nil {
		logging.Error().Err(err).Str("device", device.ID).Str("content", *device.ContentID).
			Msg("failed to resolve content for display")
		return
	}
	s.dispatcher.Display(protocol.TargetOne, device.ID, content)
}

func refEqual(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
