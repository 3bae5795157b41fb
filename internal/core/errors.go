// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Call sites wrap them with fmt.Errorf("...: %w", err) and
// callers branch with errors.Is.
var (
	// Radio errors
	ErrDriver         = errors.New("wisniff: radio driver error")
	ErrInvalidChannel = errors.New("wisniff: invalid channel")

	// Transport errors
	ErrTransportInit = errors.New("wisniff: transport init failed")
	ErrNotConnected  = errors.New("wisniff: no peer connected")
	ErrChunkWrite    = errors.New("wisniff: chunk write failed")

	// Lifecycle errors
	ErrInvalidState = errors.New("wisniff: invalid state")
	ErrHopFailed    = errors.New("wisniff: channel hop failed")

	// Configuration errors
	ErrConfigInvalid = errors.New("wisniff: invalid configuration")
)
