// Package capture coordinates the frame source with the transport: it owns
// the capture channel, turns frames into relay records and hops channels.
package capture

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/metrics"
)

// Source is the frame source driven by the controller.
type Source interface {
	Start(channel uint8) error
	Stop() error
}

// Sender is the transport as seen by the controller.
type Sender interface {
	State() core.ConnectionState
	Send(ctx context.Context, b []byte) error
	SendMetadata(ctx context.Context, rec core.MetadataRecord) error
}

// Recorder accumulates per-frame statistics.
type Recorder interface {
	Record(kind core.FrameKind, length uint16)
}

// Options tunes the controller.
type Options struct {
	QueueSize   int
	DropPolicy  DropPolicy
	PrefixLen   int // payload bytes relayed after the metadata record
	HopAttempts int // Start attempts per hop before giving up
	HexDump     bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{QueueSize: 64, DropPolicy: DropTail, PrefixLen: core.PrefixLen, HopAttempts: 3}
}

// OptionsFromConfig converts the capture section of the configuration.
func OptionsFromConfig(cfg config.CaptureConfig) (Options, error) {
	policy, err := ParseDropPolicy(cfg.DropPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		QueueSize:   cfg.QueueSize,
		DropPolicy:  policy,
		PrefixLen:   cfg.PrefixLen,
		HopAttempts: cfg.HopAttempts,
		HexDump:     cfg.HexDump,
	}, nil
}

var overflowDrops = metrics.QueueDropsTotal.WithLabelValues(metrics.DropOverflow)

// hopBackoff is the pause before retry n of a failed hop, scaled by n.
var hopBackoff = 20 * time.Millisecond

// Counters is a snapshot of relay activity.
type Counters struct {
	Offered       uint64 // records handed to the queue
	Forwarded     uint64 // records fully sent
	DroppedFull   uint64
	DroppedStale  uint64 // discarded because the peer went away
	SendFailures  uint64
	QueueLength   int
	QueueCapacity int
}

// Controller implements begin/end/hop over a Source and relays captured
// frames to a Sender through a bounded queue.
type Controller struct {
	source Source
	sender Sender // nil when running without a peer link
	stats  Recorder
	clock  core.Clock
	opts   Options
	queue  *Queue
	log    log.Logger

	// mu serializes Begin/End/HopTo.
	mu    sync.Mutex
	state atomic.Pointer[core.CaptureState]
	// run is bumped before every source start; a fault report is only
	// applied to the run it was raised in.
	run atomic.Uint64

	offered      atomic.Uint64
	forwarded    atomic.Uint64
	droppedFull  atomic.Uint64
	droppedStale atomic.Uint64
	sendFailures atomic.Uint64
}

// NewController creates a stopped controller. sender may be nil.
func NewController(source Source, sender Sender, stats Recorder, clock core.Clock, opts Options) *Controller {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.HopAttempts <= 0 {
		opts.HopAttempts = def.HopAttempts
	}
	opts.PrefixLen = min(max(opts.PrefixLen, 0), core.InspectLen)
	if clock == nil {
		clock = core.NewMonotonicClock()
	}

	c := &Controller{
		source: source,
		sender: sender,
		stats:  stats,
		clock:  clock,
		opts:   opts,
		queue:  NewQueue(opts.QueueSize, opts.DropPolicy),
		log:    log.Named("capture"),
	}
	c.state.Store(&core.CaptureState{})
	return c
}

// State returns the current capture snapshot.
func (c *Controller) State() core.CaptureState {
	return *c.state.Load()
}

// Channel returns the active channel.
func (c *Controller) Channel() uint8 {
	return c.state.Load().ActiveChannel
}

func (c *Controller) setState(s core.CaptureState) {
	c.state.Store(&s)
	if s.Capturing {
		metrics.CaptureChannel.Set(float64(s.ActiveChannel))
	} else {
		metrics.CaptureChannel.Set(0)
	}
}

// Begin starts capturing on channel.
func (c *Controller) Begin(channel uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.run.Add(1)
	if err := c.source.Start(channel); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	st := c.State()
	c.setState(core.CaptureState{ActiveChannel: channel, Capturing: true, LastHop: st.LastHop})
	return nil
}

// End stops capturing. No frame is delivered after it returns successfully.
func (c *Controller) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.end()
}

func (c *Controller) end() error {
	if err := c.source.Stop(); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	st := c.State()
	st.Capturing = false
	c.setState(st)
	return nil
}

// HopTo moves capture to channel. If restarting on the new channel keeps
// failing, capture stays stopped, the fault is recorded in the state and the
// error wraps core.ErrHopFailed.
func (c *Controller) HopTo(channel uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.State()
	if !st.Capturing {
		return fmt.Errorf("hop to %d: not capturing: %w", channel, core.ErrInvalidState)
	}
	if !core.ValidChannel(channel) {
		return fmt.Errorf("hop to %d: %w", channel, core.ErrInvalidChannel)
	}
	if err := c.end(); err != nil {
		return fmt.Errorf("hop to %d: %w", channel, err)
	}

	var err error
	for attempt := 1; attempt <= c.opts.HopAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * hopBackoff)
		}
		c.run.Add(1)
		if err = c.source.Start(channel); err == nil {
			c.setState(core.CaptureState{ActiveChannel: channel, Capturing: true, LastHop: time.Now()})
			metrics.HopsTotal.WithLabelValues(metrics.HopOK).Inc()
			c.log.WithField("from", st.ActiveChannel).WithField("to", channel).Debug("hopped")
			return nil
		}
		c.log.WithError(err).WithField("channel", channel).WithField("attempt", attempt).Warn("hop attempt failed")
	}

	fault := fmt.Errorf("%w: channel %d after %d attempts: %w", core.ErrHopFailed, channel, c.opts.HopAttempts, err)
	c.setState(core.CaptureState{ActiveChannel: st.ActiveChannel, LastHop: st.LastHop, Fault: fault})
	metrics.HopsTotal.WithLabelValues(metrics.HopFailed).Inc()
	c.log.WithError(fault).Error("capture stopped")
	return fault
}

// SourceFailed records that the source stopped on its own. It may be called
// from the receive path, so the state change is applied asynchronously.
func (c *Controller) SourceFailed(err error) {
	go c.recordFault(c.run.Load(), err)
}

func (c *Controller) recordFault(run uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.State()
	if run != c.run.Load() || !st.Capturing {
		return
	}
	c.setState(core.CaptureState{ActiveChannel: st.ActiveChannel, LastHop: st.LastHop, Fault: err})
	c.log.WithError(err).WithField("channel", st.ActiveChannel).Error("capture lost")
}

// Deliver is the frame source consumer. It runs on the receive path: it
// counts the frame and, while a peer is connected, enqueues its relay record
// without blocking.
func (c *Controller) Deliver(f *core.CapturedFrame) {
	if c.stats != nil {
		c.stats.Record(f.Kind, f.Length)
	}
	if c.opts.HexDump && c.log.IsDebugEnabled() {
		c.log.WithField("kind", f.Kind).WithField("len", f.Length).
			Debugf("payload\n%s", hex.Dump(f.Payload))
	}
	if c.sender == nil {
		return
	}
	conn := c.sender.State()
	if !conn.Connected() {
		return
	}

	it := relayItem{
		session: conn.Session,
		meta:    core.NewMetadataRecord(f, c.clock.Millis()),
	}
	it.n = uint8(copy(it.prefix[:c.opts.PrefixLen], f.Payload))

	if dropped := c.queue.Offer(it); dropped > 0 {
		c.droppedFull.Add(uint64(dropped))
		overflowDrops.Add(float64(dropped))
	}
	c.offered.Add(1)
}

// OnConnectionChange discards queued records when the peer disconnects so
// nothing captured for one connection is sent on a later one. Register it
// with the transport's state observer.
func (c *Controller) OnConnectionChange(prev, next core.ConnectionState) {
	if !prev.Connected() || next.Connected() {
		return
	}
	if n := c.queue.Drain(); n > 0 {
		c.droppedStale.Add(uint64(n))
		metrics.QueueDropsTotal.WithLabelValues(metrics.DropDisconnected).Add(float64(n))
		c.log.WithField("records", n).Debug("queue drained on disconnect")
	}
}

// Run dispatches queued records to the sender until ctx is done. Send
// failures are counted and logged, never returned.
func (c *Controller) Run(ctx context.Context) error {
	if c.sender == nil {
		<-ctx.Done()
		return nil
	}
	for {
		it, ok := c.queue.Pop(ctx)
		if !ok {
			return nil
		}
		c.dispatch(ctx, &it)
	}
}

func (c *Controller) dispatch(ctx context.Context, it *relayItem) {
	if conn := c.sender.State(); !conn.Connected() || conn.Session != it.session {
		c.droppedStale.Add(1)
		metrics.QueueDropsTotal.WithLabelValues(metrics.DropDisconnected).Inc()
		return
	}

	err := c.sender.SendMetadata(ctx, it.meta)
	if err == nil && it.n > 0 {
		err = c.sender.Send(ctx, it.payload())
	}
	switch {
	case err == nil:
		c.forwarded.Add(1)
	case errors.Is(err, core.ErrNotConnected), errors.Is(err, context.Canceled):
		c.droppedStale.Add(1)
	default:
		c.sendFailures.Add(1)
		c.log.WithError(err).Warn("relay send failed")
	}
}

// Counters returns a snapshot of the relay counters.
func (c *Controller) Counters() Counters {
	return Counters{
		Offered:       c.offered.Load(),
		Forwarded:     c.forwarded.Load(),
		DroppedFull:   c.droppedFull.Load(),
		DroppedStale:  c.droppedStale.Load(),
		SendFailures:  c.sendFailures.Load(),
		QueueLength:   c.queue.Len(),
		QueueCapacity: c.queue.Cap(),
	}
}
