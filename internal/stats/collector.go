// Package stats aggregates capture counters and reports them to the peer.
package stats

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/metrics"
)

// MaxLineLen bounds the status line so it fits one transport message.
const MaxLineLen = 128

// Collector holds monotonically increasing capture counters. Record is safe
// to call from the receive path.
type Collector struct {
	total  atomic.Uint64
	bytes  atomic.Uint64
	byKind [core.NumKinds]atomic.Uint64

	kindCounters [core.NumKinds]prometheus.Counter
}

// NewCollector creates a zeroed collector.
func NewCollector() *Collector {
	c := &Collector{}
	for k := range c.kindCounters {
		c.kindCounters[k] = metrics.FramesTotal.WithLabelValues(core.FrameKind(k).String())
	}
	return c
}

// Record counts one frame of the given kind and on-air length.
func (c *Collector) Record(kind core.FrameKind, length uint16) {
	if int(kind) >= core.NumKinds {
		kind = core.KindOther
	}
	c.total.Add(1)
	c.byKind[kind].Add(1)
	c.bytes.Add(uint64(length))

	c.kindCounters[kind].Inc()
	metrics.CaptureBytesTotal.Add(float64(length))
}

// Snapshot returns a copy of the counters. Fields are read individually, so
// Total may run ahead of the per-kind sum under concurrent Record calls.
func (c *Collector) Snapshot() core.Stats {
	s := core.Stats{
		Total: c.total.Load(),
		Bytes: c.bytes.Load(),
	}
	for k := range s.ByKind {
		s.ByKind[k] = c.byKind[k].Load()
	}
	return s
}

// FormatForTransport renders the status line
// "STATS: Total=<n>, Mgmt=<n>, Data=<n>, Bytes=<n>".
func (c *Collector) FormatForTransport() []byte {
	return AppendLine(make([]byte, 0, MaxLineLen), c.Snapshot())
}

// AppendLine appends the status line for s to b.
func AppendLine(b []byte, s core.Stats) []byte {
	b = append(b, "STATS: Total="...)
	b = strconv.AppendUint(b, s.Total, 10)
	b = append(b, ", Mgmt="...)
	b = strconv.AppendUint(b, s.Mgmt(), 10)
	b = append(b, ", Data="...)
	b = strconv.AppendUint(b, s.Data(), 10)
	b = append(b, ", Bytes="...)
	b = strconv.AppendUint(b, s.Bytes, 10)
	return b
}
