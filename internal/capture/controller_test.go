package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/stats"
)

func init() {
	hopBackoff = 0
}

type sourceMock struct {
	mock.Mock
}

func (m *sourceMock) Start(ch uint8) error { return m.Called(ch).Error(0) }
func (m *sourceMock) Stop() error          { return m.Called().Error(0) }

type fixedClock uint32

func (c fixedClock) Millis() uint32 { return uint32(c) }

type sentMsg struct {
	meta    *core.MetadataRecord
	payload []byte
}

type fakeSender struct {
	mu    sync.Mutex
	state core.ConnectionState
	err   error
	out   []sentMsg
}

func (f *fakeSender) State() core.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSender) setState(s core.ConnectionState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeSender) Send(_ context.Context, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, sentMsg{payload: append([]byte(nil), b...)})
	return nil
}

func (f *fakeSender) SendMetadata(_ context.Context, rec core.MetadataRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, sentMsg{meta: &rec})
	return nil
}

func (f *fakeSender) sent() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.out...)
}

var connectedState = core.ConnectionState{Phase: core.PhaseConnected, Peer: "p", MTU: 20, Session: "s1"}

func newController(src Source, sender Sender) (*Controller, *stats.Collector) {
	col := stats.NewCollector()
	return NewController(src, sender, col, fixedClock(1000), DefaultOptions()), col
}

func TestBeginEnd(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(6)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	c, _ := newController(src, nil)

	require.NoError(t, c.Begin(6))
	st := c.State()
	assert.True(t, st.Capturing)
	assert.Equal(t, uint8(6), st.ActiveChannel)

	require.NoError(t, c.End())
	assert.False(t, c.State().Capturing)
	src.AssertExpectations(t)
}

func TestBeginFailureLeavesStopped(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(3)).Return(core.ErrDriver)
	c, _ := newController(src, nil)

	assert.ErrorIs(t, c.Begin(3), core.ErrDriver)
	assert.False(t, c.State().Capturing)
}

func TestEndWhenStopped(t *testing.T) {
	src := &sourceMock{}
	src.On("Stop").Return(core.ErrInvalidState)
	c, _ := newController(src, nil)
	assert.ErrorIs(t, c.End(), core.ErrInvalidState)
}

func TestHopTo(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(1)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	src.On("Start", uint8(7)).Return(nil).Once()
	c, _ := newController(src, nil)

	require.NoError(t, c.Begin(1))
	require.NoError(t, c.HopTo(7))

	st := c.State()
	assert.Equal(t, uint8(7), st.ActiveChannel)
	assert.True(t, st.Capturing)
	assert.False(t, st.LastHop.IsZero())
	assert.NoError(t, st.Fault)
	src.AssertNumberOfCalls(t, "Start", 2)
	src.AssertExpectations(t)
}

func TestHopToNotCapturing(t *testing.T) {
	src := &sourceMock{}
	c, _ := newController(src, nil)
	assert.ErrorIs(t, c.HopTo(7), core.ErrInvalidState)
	src.AssertNotCalled(t, "Stop")
}

func TestHopToInvalidChannelKeepsCapturing(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(1)).Return(nil)
	c, _ := newController(src, nil)
	require.NoError(t, c.Begin(1))

	assert.ErrorIs(t, c.HopTo(0), core.ErrInvalidChannel)
	assert.True(t, c.State().Capturing)
	src.AssertNotCalled(t, "Stop")
}

func TestHopToFailureStopsAndReports(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(1)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	src.On("Start", uint8(7)).Return(errors.Join(core.ErrDriver, errors.New("phy busy")))
	c, _ := newController(src, nil)
	require.NoError(t, c.Begin(1))

	err := c.HopTo(7)
	assert.ErrorIs(t, err, core.ErrHopFailed)
	assert.ErrorIs(t, err, core.ErrDriver)

	st := c.State()
	assert.False(t, st.Capturing)
	assert.ErrorIs(t, st.Fault, core.ErrHopFailed)
	src.AssertNumberOfCalls(t, "Start", 1+DefaultOptions().HopAttempts)

	// no further hops from a stopped controller
	assert.ErrorIs(t, c.HopTo(8), core.ErrInvalidState)
}

func TestHopRecoversOnRetry(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(1)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	src.On("Start", uint8(11)).Return(core.ErrDriver).Once()
	src.On("Start", uint8(11)).Return(nil).Once()
	c, _ := newController(src, nil)
	require.NoError(t, c.Begin(1))

	require.NoError(t, c.HopTo(11))
	assert.Equal(t, uint8(11), c.Channel())
	assert.True(t, c.State().Capturing)
}

func TestDeliverWhileDisconnected(t *testing.T) {
	s := &fakeSender{state: core.ConnectionState{Phase: core.PhaseAdvertising}}
	c, col := newController(&sourceMock{}, s)

	c.Deliver(&core.CapturedFrame{Channel: 6, RSSI: -40, Length: 58, Kind: core.KindManagement, Payload: []byte{1, 2}})

	assert.Equal(t, uint64(1), col.Snapshot().Total)
	assert.Zero(t, c.queue.Len())
}

func TestDeliverAndDispatch(t *testing.T) {
	s := &fakeSender{state: connectedState}
	c, _ := newController(&sourceMock{}, s)

	payload := make([]byte, core.InspectLen)
	for i := range payload {
		payload[i] = byte(i)
	}
	f := &core.CapturedFrame{Channel: 6, RSSI: -55, Length: 120, Kind: core.KindData, Payload: payload}
	c.Deliver(f)
	payload[0] = 0xff // driver reuses the buffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, func() bool { return len(s.sent()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	out := s.sent()
	require.NotNil(t, out[0].meta)
	assert.Equal(t, core.MetadataRecord{Channel: 6, RSSI: -55, Length: 120, Kind: core.KindData, TimestampMs: 1000}, *out[0].meta)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, out[1].payload)
	assert.Equal(t, uint64(1), c.Counters().Forwarded)
}

func TestDispatchAbsorbsSendFailures(t *testing.T) {
	s := &fakeSender{state: connectedState, err: core.ErrChunkWrite}
	c, _ := newController(&sourceMock{}, s)
	c.Deliver(&core.CapturedFrame{Kind: core.KindManagement, Payload: []byte{1}})

	it, ok := c.queue.Pop(context.Background())
	require.True(t, ok)
	c.dispatch(context.Background(), &it)
	assert.Equal(t, uint64(1), c.Counters().SendFailures)
}

func TestDisconnectDrainsQueue(t *testing.T) {
	s := &fakeSender{state: connectedState}
	c, _ := newController(&sourceMock{}, s)
	for i := 0; i < 5; i++ {
		c.Deliver(&core.CapturedFrame{Kind: core.KindData, Payload: []byte{byte(i)}})
	}
	require.Equal(t, 5, c.queue.Len())

	next := core.ConnectionState{Phase: core.PhaseAdvertising}
	s.setState(next)
	c.OnConnectionChange(connectedState, next)
	assert.Zero(t, c.queue.Len())
	assert.Equal(t, uint64(5), c.Counters().DroppedStale)

	// reconnect with a new session: nothing from before is sent
	s.setState(core.ConnectionState{Phase: core.PhaseConnected, Peer: "p", Session: "s2"})
	assert.Empty(t, s.sent())
}

func TestDispatchDropsOtherSession(t *testing.T) {
	s := &fakeSender{state: connectedState}
	c, _ := newController(&sourceMock{}, s)
	c.Deliver(&core.CapturedFrame{Kind: core.KindData})

	s.setState(core.ConnectionState{Phase: core.PhaseConnected, Peer: "p", Session: "s2"})
	it, _ := c.queue.Pop(context.Background())
	c.dispatch(context.Background(), &it)
	assert.Empty(t, s.sent())
	assert.Equal(t, uint64(1), c.Counters().DroppedStale)
}

func TestQueueOverflowCounted(t *testing.T) {
	s := &fakeSender{state: connectedState}
	opts := DefaultOptions()
	opts.QueueSize = 2
	c := NewController(&sourceMock{}, s, nil, fixedClock(0), opts)
	for i := 0; i < 5; i++ {
		c.Deliver(&core.CapturedFrame{Kind: core.KindData})
	}
	cnt := c.Counters()
	assert.Equal(t, uint64(3), cnt.DroppedFull)
	assert.Equal(t, uint64(5), cnt.Offered)
	assert.Equal(t, 2, cnt.QueueLength)
}

func TestRunWithoutSender(t *testing.T) {
	c, _ := newController(&sourceMock{}, nil)
	c.Deliver(&core.CapturedFrame{Kind: core.KindData})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Run(ctx))
}

func TestBeginRestartsAfterHopFault(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(1)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	src.On("Start", uint8(7)).Return(core.ErrDriver).Times(3)
	src.On("Start", uint8(8)).Return(nil).Once()
	c, _ := newController(src, nil)

	require.NoError(t, c.Begin(1))
	require.ErrorIs(t, c.HopTo(7), core.ErrHopFailed)
	assert.ErrorIs(t, c.HopTo(8), core.ErrInvalidState, "hop needs a running capture")

	require.NoError(t, c.Begin(8))
	st := c.State()
	assert.True(t, st.Capturing)
	assert.Equal(t, uint8(8), st.ActiveChannel)
	assert.NoError(t, st.Fault)
	src.AssertExpectations(t)
}

func TestSourceFailedRecordsFault(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(6)).Return(nil).Once()
	c, _ := newController(src, nil)
	require.NoError(t, c.Begin(6))

	gone := errors.Join(core.ErrDriver, errors.New("device removed"))
	c.SourceFailed(gone)
	require.Eventually(t, func() bool { return !c.State().Capturing }, time.Second, time.Millisecond)
	st := c.State()
	assert.ErrorIs(t, st.Fault, gone)
	assert.Equal(t, uint8(6), st.ActiveChannel)
}

func TestStaleSourceFaultIgnored(t *testing.T) {
	src := &sourceMock{}
	src.On("Start", uint8(6)).Return(nil).Once()
	src.On("Stop").Return(nil).Once()
	src.On("Start", uint8(9)).Return(nil).Once()
	c, _ := newController(src, nil)

	require.NoError(t, c.Begin(6))
	run := c.run.Load()
	require.NoError(t, c.HopTo(9))

	c.recordFault(run, core.ErrDriver)
	st := c.State()
	assert.True(t, st.Capturing, "fault from before the hop")
	assert.NoError(t, st.Fault)

	require.NoError(t, c.End())
	c.recordFault(c.run.Load(), core.ErrDriver)
	assert.NoError(t, c.State().Fault, "capture already ended")
}
