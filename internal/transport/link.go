package transport

import (
	"fmt"

	"firestige.xyz/wisniff/internal/core"
)

// EventType distinguishes link events.
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a peer connect or disconnect reported by a Link. MTU is the
// usable payload per write negotiated with the peer, 0 if unknown.
type Event struct {
	Type EventType
	Peer core.PeerHandle
	MTU  uint16
}

// EventFunc receives link events. It may be called from any goroutine.
type EventFunc func(Event)

// Link is the wireless stack as seen by a Transport: one service with one
// writable, notifiable characteristic, or an equivalent stream.
//
// Links must not deliver events synchronously from inside StartAdvertising,
// StopAdvertising or Close.
type Link interface {
	// Init brings the stack up and registers the event handler.
	Init(fn EventFunc) error
	// StartAdvertising makes the device discoverable.
	StartAdvertising() error
	// StopAdvertising makes the device non-discoverable.
	StopAdvertising() error
	// Write sends one unit of at most the negotiated MTU to peer.
	Write(peer core.PeerHandle, b []byte) error
	// Close tears the stack down and drops any peer.
	Close() error
}
