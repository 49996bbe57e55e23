// Kioskd - Signage Fleet Coordination Server
// Copyright 2026 Kioskd Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kioskd/kioskd

package presence

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/kioskd/kioskd/internal/logging"
	"github.com/kioskd/kioskd/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Conn is a live connection to one device. The registry and dispatcher
// only ever see this interface; tests substitute an in-memory fake.
type Conn interface {
	// Send enqueues an outbound message without blocking. It reports
	// false when the session is closed or its queue is full; dispatch is
	// fire-and-forget, so callers ignore the result beyond logging.
	Send(msg protocol.Message) bool

	// Close tears the connection down. Idempotent.
	Close()

	// RemoteIP is the peer address without the port.
	RemoteIP() string
}

// Session wraps a device websocket. Messages enqueued via Send are
// written by a single pump goroutine, which preserves per-device
// ordering of dispatched commands.
type Session struct {
	conn   *websocket.Conn
	send   chan protocol.Message
	done   chan struct{}
	closed chan struct{}
	ip     string
}

// NewSession wraps an upgraded websocket connection.
func NewSession(conn *websocket.Conn, remoteIP string) *Session {
	return &Session{
		conn:   conn,
		send:   make(chan protocol.Message, sendBuffer),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		ip:     remoteIP,
	}
}

// Send implements Conn.
func (s *Session) Send(msg protocol.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		logging.Warn().Str("event", msg.Event).Str("ip", s.ip).Msg("session send queue full, dropping message")
		return false
	}
}

// Close implements Conn.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()
}

// RemoteIP implements Conn.
func (s *Session) RemoteIP() string {
	return s.ip
}

// Start installs the read limits and pong-based liveness deadline, then
// launches the write pump. Call exactly once per session, before the
// first Read.
func (s *Session) Start() error {
	if err := s.prepareRead(); err != nil {
		return err
	}
	go s.writePump()
	return nil
}

// Read blocks until the next inbound message. Returns an error when the
// peer goes away; the caller treats any error as a disconnect.
func (s *Session) Read() (protocol.Message, error) {
	var msg protocol.Message
	err := s.conn.ReadJSON(&msg)
	return msg, err
}

// prepareRead installs the read limits and the pong-based liveness
// deadline before the first Read.
func (s *Session) prepareRead() error {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return nil
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.closed)
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				logging.Debug().Err(err).Str("ip", s.ip).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
