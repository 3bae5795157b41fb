package radio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wisniff/internal/core"
)

func TestSimDriverGeneratesTraffic(t *testing.T) {
	d := NewSimDriver(SimOptions{Rate: 500, Seed: 1})
	var got atomic.Int64
	src := NewFrameSource(d, func(f core.CapturedFrame) {
		if f.Kind.Forwarded() && len(f.Payload) > 0 {
			got.Add(1)
		}
	})

	require.NoError(t, src.Start(3))
	assert.Eventually(t, func() bool { return got.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, src.Stop())

	after := got.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, got.Load(), "no deliveries once stopped")
}

func TestSimDriverRejectsDoubleEnable(t *testing.T) {
	d := NewSimDriver(SimOptions{})
	require.NoError(t, d.EnablePromiscuous(nil, func(any, *RxPacket) {}))
	assert.Error(t, d.EnablePromiscuous(nil, func(any, *RxPacket) {}))
	require.NoError(t, d.Close())
	assert.Error(t, d.DisablePromiscuous())
}
