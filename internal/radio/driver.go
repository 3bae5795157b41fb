// Package radio implements the promiscuous frame source on top of a radio
// driver.
package radio

import "firestige.xyz/wisniff/internal/core"

// RxPacket is what a driver hands to the receive callback. Payload is
// driver-owned and reclaimed as soon as the callback returns.
type RxPacket struct {
	Kind    core.FrameKind
	Channel uint8 // 0 if the driver did not report it
	RSSI    int8
	Length  uint16 // on-air length
	Payload []byte // 802.11 frame bytes, possibly truncated
}

// RxFunc is the receive callback. token is the opaque value passed to
// EnablePromiscuous and identifies the receiving instance. The callback runs
// on the driver's receive path: it is never re-entered concurrently, must not
// block and must not retain pkt.
type RxFunc func(token any, pkt *RxPacket)

// Driver is the radio driver as seen by a FrameSource.
type Driver interface {
	// SetChannel tunes the radio.
	SetChannel(channel uint8) error
	// EnablePromiscuous starts delivering every received frame to fn. It
	// returns once reception is active.
	EnablePromiscuous(token any, fn RxFunc) error
	// DisablePromiscuous stops delivery. When it returns, fn is not running
	// and will not be called again.
	DisablePromiscuous() error
	// Close releases the driver.
	Close() error
}

// FaultFunc reports that reception ended without DisablePromiscuous, for
// example because the device went away. It is called at most once per
// EnablePromiscuous, after the last RxFunc call, and must not block.
type FaultFunc func(token any, err error)

// FaultNotifier is implemented by drivers whose reception can end on its own.
type FaultNotifier interface {
	OnFault(fn FaultFunc)
}
