// Package ble is the Bluetooth Low Energy peripheral link: one primary
// service with one read/write/notify characteristic. Chunks are delivered to
// the central as notifications.
package ble

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/transport"
)

const Name = "ble"

// Options are read from link.options.
type Options struct {
	ServiceUUID        string `mapstructure:"service_uuid"`
	CharacteristicUUID string `mapstructure:"characteristic_uuid"`
	MTU                uint16 `mapstructure:"mtu"` // usable notify payload, 0 = transport default
}

// ParseOptions decodes raw option values over the defaults.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := Options{
		ServiceUUID:        "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		CharacteristicUUID: "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
	}
	if err := config.DecodeOptions(raw, &opts); err != nil {
		return opts, err
	}
	if _, err := ParseUUID(opts.ServiceUUID); err != nil {
		return opts, fmt.Errorf("service_uuid: %w", err)
	}
	if _, err := ParseUUID(opts.CharacteristicUUID); err != nil {
		return opts, fmt.Errorf("characteristic_uuid: %w", err)
	}
	return opts, nil
}

// ParseUUID accepts a 16-bit assigned number ("180d") or a full 128-bit UUID.
func ParseUUID(s string) (bluetooth.UUID, error) {
	if len(s) == 4 {
		n, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return bluetooth.UUID{}, err
		}
		return bluetooth.New16BitUUID(uint16(n)), nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return bluetooth.UUID{}, err
	}
	return bluetooth.NewUUID(u), nil
}

// Link implements transport.Link on the default Bluetooth adapter.
type Link struct {
	name    string
	opts    Options
	adapter *bluetooth.Adapter
	log     log.Logger

	ch  bluetooth.Characteristic
	adv *bluetooth.Advertisement
	fn  transport.EventFunc

	mu   sync.Mutex
	peer core.PeerHandle
}

// New creates a link advertising as deviceName.
func New(deviceName string, raw map[string]any) (*Link, error) {
	opts, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	if deviceName == "" {
		return nil, errors.New("ble: device name is required")
	}
	return &Link{
		name:    deviceName,
		opts:    opts,
		adapter: bluetooth.DefaultAdapter,
		log:     log.Named("ble").WithField("name", deviceName),
	}, nil
}

func (l *Link) Init(fn transport.EventFunc) error {
	serviceUUID, _ := ParseUUID(l.opts.ServiceUUID)
	charUUID, _ := ParseUUID(l.opts.CharacteristicUUID)

	l.fn = fn
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	l.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		l.onConnect(core.PeerHandle(device.Address.String()), connected)
	})

	err := l.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &l.ch,
			UUID:   charUUID,
			Value:  []byte(l.name),
			Flags: bluetooth.CharacteristicReadPermission |
				bluetooth.CharacteristicWritePermission |
				bluetooth.CharacteristicNotifyPermission,
		}},
	})
	if err != nil {
		return fmt.Errorf("add service %s: %w", serviceUUID, err)
	}

	l.adv = l.adapter.DefaultAdvertisement()
	err = l.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    l.name,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	l.log.WithField("service", serviceUUID.String()).Info("gatt service registered")
	return nil
}

// onConnect maps adapter callbacks to transport events. Only one central is
// tracked; others are reported but never become the peer.
func (l *Link) onConnect(peer core.PeerHandle, connected bool) {
	l.mu.Lock()
	switch {
	case connected && l.peer == "":
		l.peer = peer
	case !connected && l.peer == peer:
		l.peer = ""
	default:
		l.mu.Unlock()
		l.log.WithField("peer", peer).WithField("connected", connected).Debug("ignored central")
		return
	}
	l.mu.Unlock()

	ev := transport.Event{Type: transport.EventDisconnected, Peer: peer}
	if connected {
		ev = transport.Event{Type: transport.EventConnected, Peer: peer, MTU: l.opts.MTU}
	}
	if l.fn != nil {
		l.fn(ev)
	}
}

func (l *Link) StartAdvertising() error {
	if l.adv == nil {
		return errors.New("ble: not initialized")
	}
	return l.adv.Start()
}

func (l *Link) StopAdvertising() error {
	if l.adv == nil {
		return errors.New("ble: not initialized")
	}
	return l.adv.Stop()
}

// Write notifies subscribers of the characteristic. The stack addresses all
// subscribed centrals; peer only guards against writes for a stale peer.
func (l *Link) Write(peer core.PeerHandle, b []byte) error {
	l.mu.Lock()
	current := l.peer
	l.mu.Unlock()
	if current == "" || current != peer {
		return fmt.Errorf("ble: peer %s: %w", peer, core.ErrNotConnected)
	}
	_, err := l.ch.Write(b)
	return err
}

func (l *Link) Close() error {
	l.mu.Lock()
	l.peer = ""
	l.mu.Unlock()
	if l.adv != nil {
		return l.adv.Stop()
	}
	return nil
}
