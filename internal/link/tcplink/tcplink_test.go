package tcplink

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/transport"
)

func startLink(t *testing.T) (*Link, chan transport.Event) {
	t.Helper()
	l, err := New(map[string]any{"listen": "127.0.0.1:0", "mtu": 64})
	require.NoError(t, err)
	events := make(chan transport.Event, 8)
	require.NoError(t, l.Init(func(ev transport.Event) { events <- ev }))
	t.Cleanup(func() { _ = l.Close() })
	return l, events
}

func nextEvent(t *testing.T, events chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no link event")
		return transport.Event{}
	}
}

func expectClosed(t *testing.T, c net.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestConnectWriteDisconnect(t *testing.T) {
	l, events := startLink(t)
	require.NoError(t, l.StartAdvertising())

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, transport.EventConnected, ev.Type)
	assert.Equal(t, uint16(64), ev.MTU)
	assert.Equal(t, core.PeerHandle(client.LocalAddr().String()), ev.Peer)

	require.NoError(t, l.Write(ev.Peer, []byte("chunk")))
	buf := make([]byte, 5)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(buf))

	require.NoError(t, client.Close())
	ev = nextEvent(t, events)
	assert.Equal(t, transport.EventDisconnected, ev.Type)

	assert.ErrorIs(t, l.Write(ev.Peer, []byte("x")), core.ErrNotConnected)
}

func TestRejectsWhenNotAdvertising(t *testing.T) {
	l, events := startLink(t)

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	expectClosed(t, client)
	assert.Empty(t, events)
}

func TestRejectsSecondPeer(t *testing.T) {
	l, events := startLink(t)
	require.NoError(t, l.StartAdvertising())

	first, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	assert.Equal(t, transport.EventConnected, nextEvent(t, events).Type)

	// advertising again must still not admit a second peer
	require.NoError(t, l.StartAdvertising())
	second, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	expectClosed(t, second)
}

func TestWithTransport(t *testing.T) {
	l, err := New(map[string]any{"listen": "127.0.0.1:0"})
	require.NoError(t, err)
	tr := transport.New(l, transport.Options{MTU: 4, MaxMTU: 4})
	require.NoError(t, tr.Initialize())
	defer tr.Close()
	require.NoError(t, tr.StartAdvertising())

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, tr.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, tr.Send(t.Context(), []byte("0123456789")))

	buf := make([]byte, 10)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(client, buf)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(buf))

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return tr.State().Phase == core.PhaseAdvertising
	}, 2*time.Second, 5*time.Millisecond)
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7878", opts.Listen)
	assert.Equal(t, 2*time.Second, opts.WriteTimeout)

	_, err = ParseOptions(map[string]any{"listen": ""})
	assert.Error(t, err)
}
