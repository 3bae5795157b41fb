package daemon

import (
	"context"
	"time"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
)

// statusPrinter periodically logs channel, connection and counter state.
type statusPrinter struct {
	d        *Daemon
	interval time.Duration
	log      log.Logger
}

func newStatusPrinter(d *Daemon, interval time.Duration) *statusPrinter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &statusPrinter{d: d, interval: interval, log: log.Named("status")}
}

func (p *statusPrinter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.log.WithFields(p.fields()).Info("status")
		}
	}
}

func (p *statusPrinter) fields() map[string]interface{} {
	st := p.d.ctrl.State()
	s := p.d.collector.Snapshot()
	relay := p.d.ctrl.Counters()

	phase := "none"
	if p.d.transport != nil {
		phase = p.d.transport.State().Phase.String()
	}
	f := map[string]interface{}{
		"channel":   st.ActiveChannel,
		"capturing": st.Capturing,
		"peer":      phase,
		"total":     s.Total,
		"mgmt":      s.Mgmt(),
		"data":      s.Data(),
		"bytes":     s.Bytes,
		"filtered":  p.d.source.Filtered(),
		"forwarded": relay.Forwarded,
		"dropped":   relay.DroppedFull + relay.DroppedStale,
		"queue":     relay.QueueLength,
	}
	if p.d.transport != nil {
		tc := p.d.transport.Counters()
		f["mtu"] = p.d.transport.MTU()
		f["chunks"] = tc.Chunks
		f["not_connected"] = tc.NotConnected
		f["chunk_failures"] = tc.ChunkFailures
	}
	if st.Fault != nil {
		f["fault"] = st.Fault.Error()
	}
	return f
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Capture core.CaptureState
	Peer    core.ConnectionState
	Stats   core.Stats
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	s := Status{
		Capture: d.ctrl.State(),
		Stats:   d.collector.Snapshot(),
	}
	if d.transport != nil {
		s.Peer = d.transport.State()
	}
	return s
}
