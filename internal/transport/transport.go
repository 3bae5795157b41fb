// Package transport maintains the single peer connection and delivers
// messages to it in MTU-sized chunks.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/metrics"
)

// Framing selects how logical message boundaries are marked on the wire.
type Framing int

const (
	// FramingNone sends message bytes as-is; the peer reassembles out of band.
	FramingNone Framing = iota
	// FramingLengthPrefix prepends the total message length as a
	// little-endian u16.
	FramingLengthPrefix
)

// ParseFraming maps a config value to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "none":
		return FramingNone, nil
	case "length-prefix":
		return FramingLengthPrefix, nil
	default:
		return FramingNone, fmt.Errorf("unknown framing %q", s)
	}
}

// Options tunes chunking and pacing.
type Options struct {
	MTU     int           // chunk size when the peer negotiated none
	MaxMTU  int           // upper bound for a negotiated MTU
	Pacing  time.Duration // minimum gap between chunk writes
	Framing Framing
}

// DefaultOptions is a conservative setting every peer can handle.
func DefaultOptions() Options {
	return Options{MTU: 20, MaxMTU: 512, Pacing: 10 * time.Millisecond}
}

// OptionsFromConfig converts the transport section of the configuration.
func OptionsFromConfig(cfg config.TransportConfig) (Options, error) {
	framing, err := ParseFraming(cfg.Framing)
	if err != nil {
		return Options{}, err
	}
	return Options{
		MTU:     cfg.MTU,
		MaxMTU:  cfg.MaxMTU,
		Pacing:  cfg.Pacing,
		Framing: framing,
	}, nil
}

// Counters is a snapshot of transport activity.
type Counters struct {
	Messages      uint64 // logical messages fully written
	Chunks        uint64
	Bytes         uint64
	NotConnected  uint64 // sends dropped without a peer
	ChunkFailures uint64 // messages aborted by a failed chunk
}

// StateFunc observes connection state transitions.
type StateFunc func(prev, next core.ConnectionState)

// Transport owns the connection state machine
// Idle -> Advertising -> Connected -> Advertising.
type Transport struct {
	link Link
	opts Options
	log  log.Logger

	state atomic.Pointer[core.ConnectionState]

	// ctl serializes state transitions and advertising calls.
	ctl         sync.Mutex
	initialized bool
	observers   []StateFunc

	// sendMu keeps chunks of different messages from interleaving.
	sendMu  sync.Mutex
	limiter *rate.Limiter

	messages      atomic.Uint64
	chunks        atomic.Uint64
	bytes         atomic.Uint64
	notConnected  atomic.Uint64
	chunkFailures atomic.Uint64
}

// New creates an idle transport over link.
func New(link Link, opts Options) *Transport {
	def := DefaultOptions()
	if opts.MTU <= 0 {
		opts.MTU = def.MTU
	}
	if opts.MaxMTU < opts.MTU {
		opts.MaxMTU = opts.MTU
	}
	limit := rate.Inf
	if opts.Pacing > 0 {
		limit = rate.Every(opts.Pacing)
	}

	t := &Transport{
		link:    link,
		opts:    opts,
		log:     log.Named("transport"),
		limiter: rate.NewLimiter(limit, 1),
	}
	t.state.Store(&core.ConnectionState{Phase: core.PhaseIdle})
	return t
}

// OnStateChange registers fn for every transition. It must be called before
// Initialize; fn runs on the link's event path and must not block.
func (t *Transport) OnStateChange(fn StateFunc) {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.observers = append(t.observers, fn)
}

// Initialize brings up the link. Failures wrap core.ErrTransportInit and are
// fatal to the caller.
func (t *Transport) Initialize() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if t.initialized {
		return fmt.Errorf("initialize: %w", core.ErrInvalidState)
	}
	if err := t.link.Init(t.handleEvent); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransportInit, err)
	}
	t.initialized = true
	t.log.Info("link initialized")
	return nil
}

// StartAdvertising makes the device discoverable. It is a no-op while
// advertising or connected.
func (t *Transport) StartAdvertising() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if !t.initialized {
		return fmt.Errorf("start advertising: not initialized: %w", core.ErrInvalidState)
	}
	if t.State().Phase != core.PhaseIdle {
		return nil
	}
	if err := t.link.StartAdvertising(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	t.publish(core.ConnectionState{Phase: core.PhaseAdvertising})
	t.log.Info("advertising")
	return nil
}

// StopAdvertising makes the device non-discoverable. It is a no-op unless
// advertising.
func (t *Transport) StopAdvertising() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if t.State().Phase != core.PhaseAdvertising {
		return nil
	}
	if err := t.link.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	t.publish(core.ConnectionState{Phase: core.PhaseIdle})
	t.log.Info("advertising stopped")
	return nil
}

// State returns the current connection snapshot.
func (t *Transport) State() core.ConnectionState {
	return *t.state.Load()
}

// IsConnected reports whether a peer is connected.
func (t *Transport) IsConnected() bool {
	return t.state.Load().Connected()
}

// MTU returns the chunk size used for the current peer.
func (t *Transport) MTU() int {
	if mtu := t.state.Load().MTU; mtu > 0 {
		return int(mtu)
	}
	return t.opts.MTU
}

func (t *Transport) effectiveMTU(negotiated uint16) uint16 {
	if negotiated == 0 {
		return uint16(t.opts.MTU)
	}
	if int(negotiated) > t.opts.MaxMTU {
		return uint16(t.opts.MaxMTU)
	}
	return negotiated
}

func (t *Transport) handleEvent(ev Event) {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	cur := t.State()
	switch ev.Type {
	case EventConnected:
		if cur.Connected() {
			t.log.WithField("peer", ev.Peer).WithField("current", cur.Peer).
				Warn("second peer ignored")
			return
		}
		next := core.ConnectionState{
			Phase:   core.PhaseConnected,
			Peer:    ev.Peer,
			MTU:     t.effectiveMTU(ev.MTU),
			Session: uuid.NewString(),
		}
		t.publish(next)
		metrics.PeerConnected.Set(1)
		t.log.WithFields(map[string]interface{}{
			"peer":    next.Peer,
			"mtu":     next.MTU,
			"session": next.Session,
		}).Info("peer connected")

	case EventDisconnected:
		if !cur.Connected() || (ev.Peer != "" && ev.Peer != cur.Peer) {
			t.log.WithField("peer", ev.Peer).Debug("disconnect for unknown peer ignored")
			return
		}
		t.publish(core.ConnectionState{Phase: core.PhaseAdvertising})
		metrics.PeerConnected.Set(0)
		t.log.WithField("peer", cur.Peer).WithField("session", cur.Session).Info("peer disconnected")

		if err := t.link.StartAdvertising(); err != nil {
			t.publish(core.ConnectionState{Phase: core.PhaseIdle})
			t.log.WithError(err).Error("restart advertising failed")
		}
	}
}

// publish stores next and notifies observers. Callers hold ctl.
func (t *Transport) publish(next core.ConnectionState) {
	prev := *t.state.Swap(&next)
	for _, fn := range t.observers {
		fn(prev, next)
	}
}

// Send writes b to the peer in chunks of at most MTU bytes, pacing between
// writes. It fails with core.ErrNotConnected without writing when no peer is
// connected, and with core.ErrChunkWrite on the first failed chunk, in which
// case the remaining chunks are not sent.
func (t *Transport) Send(ctx context.Context, b []byte) error {
	st := t.State()
	if !st.Connected() {
		t.dropNotConnected()
		return fmt.Errorf("send %d bytes: %w", len(b), core.ErrNotConnected)
	}

	if t.opts.Framing == FramingLengthPrefix {
		if len(b) > 0xffff {
			return fmt.Errorf("send %d bytes: message too long for length prefix", len(b))
		}
		framed := make([]byte, 2, 2+len(b))
		binary.LittleEndian.PutUint16(framed, uint16(len(b)))
		b = append(framed, b...)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	mtu := int(st.MTU)
	if mtu <= 0 {
		mtu = t.opts.MTU
	}
	for off := 0; off < len(b); off += mtu {
		end := min(off+mtu, len(b))

		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send paced: %w", err)
		}
		// the peer may have gone away while pacing
		cur := t.State()
		if !cur.Connected() || cur.Session != st.Session {
			t.dropNotConnected()
			return fmt.Errorf("send aborted at byte %d: %w", off, core.ErrNotConnected)
		}

		if err := t.link.Write(st.Peer, b[off:end]); err != nil {
			t.chunkFailures.Add(1)
			metrics.TransportErrorsTotal.WithLabelValues(metrics.ErrTypeChunkWrite).Inc()
			return fmt.Errorf("%w: chunk at byte %d of %d: %w", core.ErrChunkWrite, off, len(b), err)
		}
		t.chunks.Add(1)
		t.bytes.Add(uint64(end - off))
		metrics.TransportChunksTotal.Inc()
		metrics.TransportBytesTotal.Add(float64(end - off))
	}
	t.messages.Add(1)
	return nil
}

func (t *Transport) dropNotConnected() {
	t.notConnected.Add(1)
	metrics.TransportErrorsTotal.WithLabelValues(metrics.ErrTypeNotConnected).Inc()
}

// SendMetadata sends the 9-byte encoding of rec as one message.
func (t *Transport) SendMetadata(ctx context.Context, rec core.MetadataRecord) error {
	var buf [core.MetadataSize]byte
	return t.Send(ctx, rec.AppendBinary(buf[:0]))
}

// Counters returns a snapshot of the transport counters.
func (t *Transport) Counters() Counters {
	return Counters{
		Messages:      t.messages.Load(),
		Chunks:        t.chunks.Load(),
		Bytes:         t.bytes.Load(),
		NotConnected:  t.notConnected.Load(),
		ChunkFailures: t.chunkFailures.Load(),
	}
}

// Close shuts the link down and returns to Idle.
func (t *Transport) Close() error {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	if !t.initialized {
		return nil
	}
	t.initialized = false
	err := t.link.Close()
	if t.State().Phase != core.PhaseIdle {
		t.publish(core.ConnectionState{Phase: core.PhaseIdle})
	}
	metrics.PeerConnected.Set(0)
	return err
}
