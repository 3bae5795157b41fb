package radio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/metrics"
)

// Consumer receives every frame that passes the kind filter. It runs on the
// driver's receive path under the same restrictions as RxFunc; f.Payload must
// be copied if kept.
type Consumer func(f core.CapturedFrame)

// FrameSource puts a radio into promiscuous reception on one channel and
// forwards management and data frames to a consumer.
type FrameSource struct {
	driver   Driver
	consumer Consumer

	// mu serializes Start/Stop; the receive path only touches atomics.
	mu       sync.Mutex
	active   atomic.Bool
	channel  atomic.Uint32
	filtered atomic.Uint64
	onFault  func(err error)

	log log.Logger
}

// NewFrameSource creates a stopped source.
func NewFrameSource(d Driver, consumer Consumer) *FrameSource {
	s := &FrameSource{
		driver:   d,
		consumer: consumer,
		log:      log.Named("radio"),
	}
	if n, ok := d.(FaultNotifier); ok {
		n.OnFault(fault)
	}
	return s
}

// OnFault registers fn to be told when reception ends on its own. The source
// is already inactive when fn runs; fn runs on the driver's receive path and
// must not block. Register before the first Start.
func (s *FrameSource) OnFault(fn func(err error)) {
	s.onFault = fn
}

// Start tunes the radio to channel and enables promiscuous reception. The
// source must be stopped first.
func (s *FrameSource) Start(channel uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.Load() {
		return fmt.Errorf("start on channel %d: already sniffing on %d: %w",
			channel, s.channel.Load(), core.ErrInvalidState)
	}
	if !core.ValidChannel(channel) {
		return fmt.Errorf("start on channel %d: %w", channel, core.ErrInvalidChannel)
	}

	prev := uint8(s.channel.Load())
	if err := s.driver.SetChannel(channel); err != nil {
		return fmt.Errorf("set channel %d: %w: %w", channel, core.ErrDriver, err)
	}
	s.channel.Store(uint32(channel))

	if err := s.driver.EnablePromiscuous(s, deliver); err != nil {
		s.rollback(prev)
		return fmt.Errorf("enable promiscuous on channel %d: %w: %w", channel, core.ErrDriver, err)
	}
	s.active.Store(true)

	s.log.WithField("channel", channel).Info("sniffing started")
	return nil
}

// rollback restores the channel in effect before a failed Start.
func (s *FrameSource) rollback(prev uint8) {
	s.channel.Store(uint32(prev))
	if prev == 0 {
		return
	}
	if err := s.driver.SetChannel(prev); err != nil {
		s.log.WithError(err).WithField("channel", prev).Warn("failed to restore channel")
	}
}

// Stop disables promiscuous reception. Once it returns successfully the
// consumer is not invoked again until the next Start.
func (s *FrameSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Load() {
		return fmt.Errorf("stop: not sniffing: %w", core.ErrInvalidState)
	}
	if err := s.driver.DisablePromiscuous(); err != nil {
		return fmt.Errorf("disable promiscuous: %w: %w", core.ErrDriver, err)
	}
	s.active.Store(false)

	s.log.WithField("channel", s.channel.Load()).Info("sniffing stopped")
	return nil
}

// Channel returns the channel of the current or last successful Start.
func (s *FrameSource) Channel() uint8 {
	return uint8(s.channel.Load())
}

// Active reports whether promiscuous reception is enabled.
func (s *FrameSource) Active() bool {
	return s.active.Load()
}

// Filtered returns the number of frames rejected by the kind filter.
func (s *FrameSource) Filtered() uint64 {
	return s.filtered.Load()
}

// fault is the FaultFunc registered with drivers that support it.
func fault(token any, err error) {
	s, ok := token.(*FrameSource)
	if !ok || s == nil {
		return
	}
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	err = fmt.Errorf("reception lost on channel %d: %w: %w", s.channel.Load(), core.ErrDriver, err)
	s.log.WithError(err).Error("sniffing stopped by driver")
	if s.onFault != nil {
		s.onFault(err)
	}
}

// deliver is the RxFunc registered with the driver; token is the owning
// FrameSource.
func deliver(token any, pkt *RxPacket) {
	s, ok := token.(*FrameSource)
	if !ok || s == nil {
		return
	}
	if !pkt.Kind.Forwarded() {
		s.filtered.Add(1)
		metrics.FramesFilteredTotal.Inc()
		return
	}

	payload := pkt.Payload
	if len(payload) > core.InspectLen {
		payload = payload[:core.InspectLen]
	}
	ch := pkt.Channel
	if ch == 0 {
		ch = uint8(s.channel.Load())
	}
	s.consumer(core.CapturedFrame{
		Channel: ch,
		RSSI:    pkt.RSSI,
		Length:  pkt.Length,
		Kind:    pkt.Kind,
		Payload: payload,
	})
}
