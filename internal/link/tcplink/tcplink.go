// Package tcplink is a single-peer TCP stand-in for the radio link. A peer
// connects to the listener; advertising means accepting connections.
package tcplink

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/transport"
)

const Name = "tcp"

// Options are read from link.options.
type Options struct {
	Listen       string        `mapstructure:"listen"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MTU          uint16        `mapstructure:"mtu"` // reported to the transport, 0 = its default
}

// ParseOptions decodes raw option values over the defaults.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := Options{
		Listen:       "127.0.0.1:7878",
		WriteTimeout: 2 * time.Second,
	}
	if err := config.DecodeOptions(raw, &opts); err != nil {
		return opts, err
	}
	if opts.Listen == "" {
		return opts, errors.New("tcplink: listen address is required")
	}
	return opts, nil
}

// Link implements transport.Link over TCP.
type Link struct {
	opts Options
	log  log.Logger

	ln        net.Listener
	fn        transport.EventFunc
	accepting atomic.Bool
	closed    atomic.Bool

	mu   sync.Mutex
	conn net.Conn
	peer core.PeerHandle
}

// New creates a link from link.options.
func New(raw map[string]any) (*Link, error) {
	opts, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	return &Link{opts: opts, log: log.Named("tcplink")}, nil
}

func (l *Link) Init(fn transport.EventFunc) error {
	ln, err := net.Listen("tcp", l.opts.Listen)
	if err != nil {
		return err
	}
	l.ln, l.fn = ln, fn
	go l.acceptLoop()
	l.log.WithField("addr", ln.Addr().String()).Info("listening for peer")
	return nil
}

// Addr returns the bound listener address.
func (l *Link) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Link) StartAdvertising() error {
	l.accepting.Store(true)
	return nil
}

func (l *Link) StopAdvertising() error {
	l.accepting.Store(false)
	return nil
}

func (l *Link) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.closed.Load() {
				l.log.WithError(err).Error("accept failed")
			}
			return
		}

		l.mu.Lock()
		busy := l.conn != nil
		if busy || !l.accepting.Load() {
			l.mu.Unlock()
			l.log.WithField("remote", conn.RemoteAddr().String()).WithField("busy", busy).
				Debug("connection rejected")
			_ = conn.Close()
			continue
		}
		peer := core.PeerHandle(conn.RemoteAddr().String())
		l.conn, l.peer = conn, peer
		l.accepting.Store(false)
		l.mu.Unlock()

		l.emit(transport.Event{Type: transport.EventConnected, Peer: peer, MTU: l.opts.MTU})
		go l.readLoop(conn, peer)
	}
}

// readLoop discards peer input and reports the disconnect when the stream
// ends.
func (l *Link) readLoop(conn net.Conn, peer core.PeerHandle) {
	_, _ = io.Copy(io.Discard, conn)
	_ = conn.Close()

	l.mu.Lock()
	if l.conn == conn {
		l.conn, l.peer = nil, ""
	}
	l.mu.Unlock()

	l.emit(transport.Event{Type: transport.EventDisconnected, Peer: peer})
}

func (l *Link) emit(ev transport.Event) {
	if l.closed.Load() || l.fn == nil {
		return
	}
	l.fn(ev)
}

func (l *Link) Write(peer core.PeerHandle, b []byte) error {
	l.mu.Lock()
	conn := l.conn
	current := l.peer
	l.mu.Unlock()

	if conn == nil || current != peer {
		return fmt.Errorf("tcplink: peer %s: %w", peer, core.ErrNotConnected)
	}
	if l.opts.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(l.opts.WriteTimeout))
	}
	_, err := conn.Write(b)
	return err
}

func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	l.mu.Lock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn, l.peer = nil, ""
	}
	l.mu.Unlock()
	return err
}
