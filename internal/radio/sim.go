package radio

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/wisniff/internal/core"
)

// SimOptions configures the synthetic traffic of a SimDriver.
type SimOptions struct {
	Rate int    `mapstructure:"rate"` // frames per second, 0 = only injected frames
	Seed int64  `mapstructure:"seed"`
	SSID string `mapstructure:"ssid"`
}

// SimDriver is an in-memory radio. Frames come from Inject or, when Rate is
// set, from a generator producing beacon, data and ACK frames.
type SimDriver struct {
	opts SimOptions

	// mu is held while the callback runs so DisablePromiscuous waits for an
	// in-flight delivery.
	mu        sync.Mutex
	channel   uint8
	token     any
	fn        RxFunc
	faultFn   FaultFunc
	failures  map[uint8]error
	enableErr error
	tunes     map[uint8]int

	genCancel context.CancelFunc
	genDone   chan struct{}
}

// NewSimDriver creates a simulated radio.
func NewSimDriver(opts SimOptions) *SimDriver {
	if opts.SSID == "" {
		opts.SSID = "wisniff-sim"
	}
	return &SimDriver{
		opts:     opts,
		failures: make(map[uint8]error),
		tunes:    make(map[uint8]int),
	}
}

// FailChannel makes SetChannel(ch) fail with err. A nil err clears it.
func (d *SimDriver) FailChannel(ch uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, ch)
		return
	}
	d.failures[ch] = err
}

// FailEnable makes EnablePromiscuous fail with err. A nil err clears it.
func (d *SimDriver) FailEnable(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableErr = err
}

func (d *SimDriver) OnFault(fn FaultFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faultFn = fn
}

// Fail ends reception as if the device went away: the fault handler is told
// and no frame is delivered until promiscuous mode is enabled again. It
// reports false when reception was not enabled.
func (d *SimDriver) Fail(err error) bool {
	d.stopGenerator()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fn == nil {
		return false
	}
	token := d.token
	d.token, d.fn = nil, nil
	if d.faultFn != nil {
		d.faultFn(token, err)
	}
	return true
}

// Tunes returns how many times the radio was tuned to ch.
func (d *SimDriver) Tunes(ch uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunes[ch]
}

func (d *SimDriver) SetChannel(ch uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failures[ch]; err != nil {
		return err
	}
	d.channel = ch
	d.tunes[ch]++
	return nil
}

func (d *SimDriver) EnablePromiscuous(token any, fn RxFunc) error {
	d.mu.Lock()
	if d.enableErr != nil {
		d.mu.Unlock()
		return d.enableErr
	}
	if d.fn != nil {
		d.mu.Unlock()
		return errors.New("sim: promiscuous mode already enabled")
	}
	d.token, d.fn = token, fn
	d.mu.Unlock()

	if d.opts.Rate > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.genCancel = cancel
		d.genDone = make(chan struct{})
		go d.generate(ctx, d.genDone)
	}
	return nil
}

func (d *SimDriver) DisablePromiscuous() error {
	d.stopGenerator()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fn == nil {
		return errors.New("sim: promiscuous mode not enabled")
	}
	d.token, d.fn = nil, nil
	return nil
}

func (d *SimDriver) stopGenerator() {
	if d.genCancel != nil {
		d.genCancel()
		<-d.genDone
		d.genCancel, d.genDone = nil, nil
	}
}

func (d *SimDriver) Close() error {
	d.mu.Lock()
	enabled := d.fn != nil
	d.mu.Unlock()
	if enabled {
		return d.DisablePromiscuous()
	}
	return nil
}

// Inject delivers pkt synchronously. It reports false when promiscuous
// reception is off and the frame was dropped.
func (d *SimDriver) Inject(pkt RxPacket) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fn == nil {
		return false
	}
	if pkt.Channel == 0 {
		pkt.Channel = d.channel
	}
	d.fn(d.token, &pkt)
	return true
}

func (d *SimDriver) generate(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	rng := rand.New(rand.NewSource(d.opts.Seed))
	ticker := time.NewTicker(time.Second / time.Duration(d.opts.Rate))
	defer ticker.Stop()

	var seq uint16
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		seq++

		kind := core.KindManagement
		switch n := rng.Intn(10); {
		case n >= 8:
			kind = core.KindControl
		case n >= 4:
			kind = core.KindData
		}
		frame, err := SynthFrame(kind, seq, d.opts.SSID)
		if err != nil {
			continue
		}
		d.Inject(RxPacket{
			Kind:    kind,
			RSSI:    int8(-30 - rng.Intn(60)),
			Length:  uint16(len(frame)),
			Payload: frame,
		})
	}
}

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// SynthFrame serializes a plausible 802.11 frame of the given kind: a beacon
// for management, a to-DS data frame, or an ACK.
func SynthFrame(kind core.FrameKind, seq uint16, ssid string) ([]byte, error) {
	bssid := net.HardwareAddr{0x02, 0x00, 0x5e, 0x00, byte(seq >> 8), byte(seq)}
	station := net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, byte(seq)}

	var ls []gopacket.SerializableLayer
	switch kind {
	case core.KindManagement:
		ls = []gopacket.SerializableLayer{
			&layers.Dot11{
				Type:           layers.Dot11TypeMgmtBeacon,
				Address1:       broadcast,
				Address2:       bssid,
				Address3:       bssid,
				SequenceNumber: seq & 0x0fff,
			},
			&layers.Dot11MgmtBeacon{Interval: 100},
			&layers.Dot11InformationElement{
				ID:     layers.Dot11InformationElementIDSSID,
				Length: uint8(len(ssid)),
				Info:   []byte(ssid),
			},
		}
	case core.KindData:
		ls = []gopacket.SerializableLayer{
			&layers.Dot11{
				Type:           layers.Dot11TypeData,
				Flags:          layers.Dot11FlagsToDS,
				Address1:       bssid,
				Address2:       station,
				Address3:       broadcast,
				SequenceNumber: seq & 0x0fff,
			},
			gopacket.Payload([]byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00, 0x08, 0x00}),
		}
	case core.KindControl:
		ls = []gopacket.SerializableLayer{
			&layers.Dot11{Type: layers.Dot11TypeCtrlAck, Address1: station},
		}
	default:
		return nil, fmt.Errorf("sim: cannot synthesize %s frame", kind)
	}

	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
