package radio

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wisniff/internal/core"
)

type frameSink struct {
	mu     sync.Mutex
	frames []core.CapturedFrame
}

func (s *frameSink) consume(f core.CapturedFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f.Clone())
}

func (s *frameSink) all() []core.CapturedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CapturedFrame(nil), s.frames...)
}

func newTestSource(t *testing.T) (*FrameSource, *SimDriver, *frameSink) {
	t.Helper()
	d := NewSimDriver(SimOptions{})
	sink := &frameSink{}
	return NewFrameSource(d, sink.consume), d, sink
}

func TestFrameSourceStartStop(t *testing.T) {
	src, d, _ := newTestSource(t)

	require.NoError(t, src.Start(6))
	assert.True(t, src.Active())
	assert.Equal(t, uint8(6), src.Channel())
	assert.Equal(t, 1, d.Tunes(6))

	err := src.Start(7)
	assert.ErrorIs(t, err, core.ErrInvalidState, "must stop before reconfiguring")
	assert.Equal(t, uint8(6), src.Channel())

	require.NoError(t, src.Stop())
	assert.False(t, src.Active())
}

func TestFrameSourceStopWhenIdle(t *testing.T) {
	src, _, _ := newTestSource(t)
	assert.ErrorIs(t, src.Stop(), core.ErrInvalidState)
}

func TestFrameSourceInvalidChannel(t *testing.T) {
	src, _, _ := newTestSource(t)
	assert.ErrorIs(t, src.Start(0), core.ErrInvalidChannel)
	assert.ErrorIs(t, src.Start(15), core.ErrInvalidChannel)
	assert.False(t, src.Active())
}

func TestFrameSourceDriverFailures(t *testing.T) {
	src, d, _ := newTestSource(t)
	hw := errors.New("phy timeout")

	d.FailChannel(7, hw)
	err := src.Start(7)
	assert.ErrorIs(t, err, core.ErrDriver)
	assert.ErrorIs(t, err, hw)
	assert.False(t, src.Active())

	d.FailChannel(7, nil)
	d.FailEnable(hw)
	err = src.Start(7)
	assert.ErrorIs(t, err, core.ErrDriver)
	assert.False(t, src.Active())

	d.FailEnable(nil)
	require.NoError(t, src.Start(7))
}

func TestFrameSourceFiltersKinds(t *testing.T) {
	src, d, sink := newTestSource(t)
	require.NoError(t, src.Start(6))

	for _, k := range []core.FrameKind{core.KindManagement, core.KindControl, core.KindData, core.KindOther} {
		require.True(t, d.Inject(RxPacket{Kind: k, RSSI: -50, Length: 10, Payload: []byte{1}}))
	}

	frames := sink.all()
	require.Len(t, frames, 2)
	assert.Equal(t, core.KindManagement, frames[0].Kind)
	assert.Equal(t, core.KindData, frames[1].Kind)
	assert.Equal(t, uint64(2), src.Filtered())
}

func TestFrameSourceTruncatesPayload(t *testing.T) {
	src, d, sink := newTestSource(t)
	require.NoError(t, src.Start(11))

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	d.Inject(RxPacket{Kind: core.KindData, RSSI: -61, Length: 1500, Payload: payload})

	frames := sink.all()
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Len(t, f.Payload, core.InspectLen)
	assert.Equal(t, payload[:core.InspectLen], f.Payload)
	assert.Equal(t, uint16(1500), f.Length)
	assert.Equal(t, int8(-61), f.RSSI)
	assert.Equal(t, uint8(11), f.Channel, "channel falls back to the tuned channel")
}

func TestFrameSourceNoDeliveryAfterStop(t *testing.T) {
	src, d, sink := newTestSource(t)
	require.NoError(t, src.Start(1))
	d.Inject(RxPacket{Kind: core.KindManagement})
	require.NoError(t, src.Stop())

	assert.False(t, d.Inject(RxPacket{Kind: core.KindManagement}))
	assert.Len(t, sink.all(), 1)
}

func TestIndependentSourcesShareNoState(t *testing.T) {
	a, da, sinkA := newTestSource(t)
	b, db, sinkB := newTestSource(t)
	require.NoError(t, a.Start(1))
	require.NoError(t, b.Start(11))

	da.Inject(RxPacket{Kind: core.KindData})
	db.Inject(RxPacket{Kind: core.KindManagement})
	db.Inject(RxPacket{Kind: core.KindManagement})

	assert.Len(t, sinkA.all(), 1)
	assert.Len(t, sinkB.all(), 2)
	assert.Equal(t, uint8(1), sinkA.all()[0].Channel)
	assert.Equal(t, uint8(11), sinkB.all()[0].Channel)
}

func TestDeliverIgnoresForeignToken(t *testing.T) {
	assert.NotPanics(t, func() {
		deliver("not a source", &RxPacket{Kind: core.KindData})
		deliver((*FrameSource)(nil), &RxPacket{Kind: core.KindData})
	})
}

func TestFrameSourceEnableFailureRestoresChannel(t *testing.T) {
	src, d, _ := newTestSource(t)
	require.NoError(t, src.Start(6))
	require.NoError(t, src.Stop())

	d.FailEnable(errors.New("rfmon refused"))
	assert.ErrorIs(t, src.Start(11), core.ErrDriver)
	assert.Equal(t, uint8(6), src.Channel())
	assert.Equal(t, 2, d.Tunes(6), "radio retuned to the previous channel")

	d.FailEnable(nil)
	require.NoError(t, src.Start(11))
	assert.Equal(t, uint8(11), src.Channel())
}

func TestFrameSourceEnableFailureFromFresh(t *testing.T) {
	src, d, _ := newTestSource(t)
	d.FailEnable(errors.New("rfmon refused"))
	assert.ErrorIs(t, src.Start(3), core.ErrDriver)
	assert.Equal(t, uint8(0), src.Channel())
	assert.Equal(t, 1, d.Tunes(3))
}

func TestFrameSourceDriverFault(t *testing.T) {
	src, d, sink := newTestSource(t)
	var faults []error
	src.OnFault(func(err error) { faults = append(faults, err) })
	require.NoError(t, src.Start(6))

	gone := errors.New("device removed")
	assert.True(t, d.Fail(gone))
	assert.False(t, src.Active())
	require.Len(t, faults, 1)
	assert.ErrorIs(t, faults[0], core.ErrDriver)
	assert.ErrorIs(t, faults[0], gone)

	assert.False(t, d.Inject(RxPacket{Kind: core.KindData}))
	assert.Empty(t, sink.all())
	assert.ErrorIs(t, src.Stop(), core.ErrInvalidState)

	require.NoError(t, src.Start(6), "source restarts after a fault")
	assert.True(t, src.Active())
}
