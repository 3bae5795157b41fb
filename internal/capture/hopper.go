package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
)

// Hopper periodically advances the controller over a channel list,
// wrapping at the end.
type Hopper struct {
	ctrl     *Controller
	channels []uint8
	interval atomic.Int64
	reset    chan struct{}
	log      log.Logger
}

// DefaultHopChannels is the legal 2.4 GHz set outside Japan.
func DefaultHopChannels() []uint8 {
	return []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
}

// NewHopper creates a hopper. An empty channel list uses DefaultHopChannels.
func NewHopper(ctrl *Controller, channels []uint8, interval time.Duration) *Hopper {
	if len(channels) == 0 {
		channels = DefaultHopChannels()
	}
	h := &Hopper{
		ctrl:     ctrl,
		channels: append([]uint8(nil), channels...),
		reset:    make(chan struct{}, 1),
		log:      log.Named("hopper"),
	}
	h.interval.Store(int64(interval))
	return h
}

// SetInterval changes the hop interval; the running timer restarts with it.
func (h *Hopper) SetInterval(d time.Duration) {
	if d <= 0 || time.Duration(h.interval.Swap(int64(d))) == d {
		return
	}
	select {
	case h.reset <- struct{}{}:
	default:
	}
}

// Interval returns the current hop interval.
func (h *Hopper) Interval() time.Duration {
	return time.Duration(h.interval.Load())
}

// Next returns the channel following current in the hop list. A channel not
// in the list restarts at the first entry.
func (h *Hopper) Next(current uint8) uint8 {
	for i, ch := range h.channels {
		if ch == current {
			return h.channels[(i+1)%len(h.channels)]
		}
	}
	return h.channels[0]
}

// Run hops until ctx is done. It returns the hop error if capture could not
// be restarted; the controller is then stopped with the fault recorded.
func (h *Hopper) Run(ctx context.Context) error {
	timer := time.NewTimer(h.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.reset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(h.Interval())
			h.log.WithField("interval", h.Interval()).Info("hop interval changed")
			continue
		case <-timer.C:
		}

		st := h.ctrl.State()
		if st.Capturing {
			err := h.ctrl.HopTo(h.Next(st.ActiveChannel))
			if errors.Is(err, core.ErrHopFailed) {
				return err
			}
			if err != nil {
				h.log.WithError(err).Warn("hop skipped")
			}
		}
		timer.Reset(h.Interval())
	}
}
