package stats

import (
	"context"
	"time"

	"firestige.xyz/wisniff/internal/log"
)

// Sender is the transport as seen by the reporter.
type Sender interface {
	IsConnected() bool
	Send(ctx context.Context, b []byte) error
}

// Reporter periodically sends the status line to the connected peer.
type Reporter struct {
	collector *Collector
	sender    Sender
	interval  time.Duration
	log       log.Logger
}

// NewReporter creates a reporter sending every interval.
func NewReporter(c *Collector, sender Sender, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reporter{
		collector: c,
		sender:    sender,
		interval:  interval,
		log:       log.Named("stats"),
	}
}

// Run reports until ctx is done. Send errors are logged and dropped.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	if !r.sender.IsConnected() {
		return
	}
	line := r.collector.FormatForTransport()
	if err := r.sender.Send(ctx, line); err != nil {
		r.log.WithError(err).Debug("status send failed")
		return
	}
	r.log.Debug(string(line))
}
