// Package monitor is a radio driver for Linux wireless interfaces in monitor
// mode. Frames are read through libpcap with radiotap headers; tuning is
// delegated to iw.
package monitor

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/radio"
)

const Name = "monitor"

// Options are read from radio.options.
type Options struct {
	Interface string        `mapstructure:"interface"`
	SnapLen   int           `mapstructure:"snaplen"`
	RFMon     bool          `mapstructure:"rfmon"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Prefilter bool          `mapstructure:"prefilter"`
	Filter    string        `mapstructure:"filter"` // libpcap expression, replaces the prefilter
	IW        string        `mapstructure:"iw"`
}

func defaultOptions() Options {
	return Options{
		SnapLen:   256,
		RFMon:     true,
		Timeout:   100 * time.Millisecond,
		Prefilter: true,
		IW:        "iw",
	}
}

// ParseOptions decodes raw option values over the defaults.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := defaultOptions()
	if err := config.DecodeOptions(raw, &opts); err != nil {
		return opts, err
	}
	if opts.Interface == "" {
		return opts, errors.New("monitor: interface is required")
	}
	if opts.SnapLen < core.InspectLen+64 {
		return opts, fmt.Errorf("monitor: snaplen %d too small", opts.SnapLen)
	}
	if opts.Timeout <= 0 {
		return opts, fmt.Errorf("monitor: timeout must be positive")
	}
	return opts, nil
}

// Driver captures on a monitor-mode interface.
type Driver struct {
	opts Options
	log  log.Logger

	// tune runs the channel switch; replaced in tests.
	tune func(iface string, channel uint8) error

	mu      sync.Mutex
	handle  *pcap.Handle
	stop    atomic.Bool
	done    chan struct{}
	channel atomic.Uint32
	fault   radio.FaultFunc
}

// packetReader is the read side of a pcap handle.
type packetReader interface {
	ZeroCopyReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// New creates a driver from radio.options.
func New(raw map[string]any) (*Driver, error) {
	opts, err := ParseOptions(raw)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		opts: opts,
		log:  log.Named("monitor").WithField("iface", opts.Interface),
	}
	d.tune = d.iwSetChannel
	return d, nil
}

func (d *Driver) SetChannel(channel uint8) error {
	if err := d.tune(d.opts.Interface, channel); err != nil {
		return err
	}
	d.channel.Store(uint32(channel))
	return nil
}

func (d *Driver) iwSetChannel(iface string, channel uint8) error {
	args := tuneArgs(iface, channel)
	out, err := exec.Command(d.opts.IW, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", d.opts.IW, args, err, out)
	}
	return nil
}

func tuneArgs(iface string, channel uint8) []string {
	return []string{"dev", iface, "set", "channel", strconv.Itoa(int(channel))}
}

func (d *Driver) OnFault(fn radio.FaultFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = fn
}

func (d *Driver) EnablePromiscuous(token any, fn radio.RxFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		if !d.reclaim() {
			return errors.New("monitor: capture already running")
		}
	}

	handle, err := d.open()
	if err != nil {
		return err
	}
	if lt := handle.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		handle.Close()
		return fmt.Errorf("monitor: %s has link type %s, want radiotap", d.opts.Interface, lt)
	}

	d.handle = handle
	d.stop.Store(false)
	d.done = make(chan struct{})
	go d.readLoop(handle, d.done, token, fn, d.fault)

	d.log.WithField("snaplen", d.opts.SnapLen).Debug("capture handle active")
	return nil
}

func (d *Driver) open() (*pcap.Handle, error) {
	inactive, err := pcap.NewInactiveHandle(d.opts.Interface)
	if err != nil {
		return nil, err
	}
	defer inactive.CleanUp()

	if err = inactive.SetSnapLen(d.opts.SnapLen); err != nil {
		return nil, fmt.Errorf("snaplen: %w", err)
	}
	if err = inactive.SetRFMon(d.opts.RFMon); err != nil {
		return nil, fmt.Errorf("rfmon: %w", err)
	}
	if err = inactive.SetPromisc(true); err != nil {
		return nil, fmt.Errorf("promisc: %w", err)
	}
	if err = inactive.SetTimeout(d.opts.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	if err = inactive.SetImmediateMode(true); err != nil {
		return nil, fmt.Errorf("immediate mode: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", d.opts.Interface, err)
	}
	if d.opts.Filter != "" || d.opts.Prefilter {
		prog, err := d.filterProgram()
		if err != nil {
			handle.Close()
			return nil, err
		}
		if err = handle.SetBPFInstructionFilter(prog); err != nil {
			handle.Close()
			return nil, fmt.Errorf("install prefilter: %w", err)
		}
	}
	return handle, nil
}

func (d *Driver) filterProgram() ([]pcap.BPFInstruction, error) {
	if d.opts.Filter != "" {
		return compileFilter(d.opts.Filter, d.opts.SnapLen)
	}
	return prefilter(uint32(d.opts.SnapLen))
}

// compileFilter compiles a libpcap filter expression for radiotap frames.
func compileFilter(expr string, snaplen int) ([]pcap.BPFInstruction, error) {
	prog, err := pcap.CompileBPFFilter(layers.LinkTypeIEEE80211Radio, snaplen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}
	return prog, nil
}

func prefilter(snaplen uint32) ([]pcap.BPFInstruction, error) {
	raw, err := radio.AssemblePrefilter(snaplen)
	if err != nil {
		return nil, err
	}
	prog := make([]pcap.BPFInstruction, len(raw))
	for i, ins := range raw {
		prog[i] = pcap.BPFInstruction{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return prog, nil
}

// reclaim releases a handle whose read loop already ended on an error.
// Called with mu held.
func (d *Driver) reclaim() bool {
	select {
	case <-d.done:
	default:
		return false
	}
	d.handle.Close()
	d.handle, d.done = nil, nil
	return true
}

func (d *Driver) readLoop(r packetReader, done chan<- struct{}, token any, fn radio.RxFunc, fault radio.FaultFunc) {
	defer close(done)

	var pkt radio.RxPacket
	for !d.stop.Load() {
		data, ci, err := r.ZeroCopyReadPacketData()
		switch {
		case err == nil:
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		default:
			if d.stop.Load() {
				return
			}
			d.log.WithError(err).Error("read failed, capture stopped")
			if fault != nil {
				fault(token, err)
			}
			return
		}
		if !decode(data, ci, uint8(d.channel.Load()), &pkt) {
			continue
		}
		fn(token, &pkt)
	}
}

// decode fills pkt from a radiotap-encapsulated frame. data is only valid
// until the next read.
func decode(data []byte, ci gopacket.CaptureInfo, tuned uint8, pkt *radio.RxPacket) bool {
	var rt layers.RadioTap
	if err := rt.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return false
	}
	frame := rt.Payload
	if len(frame) == 0 {
		return false
	}

	*pkt = radio.RxPacket{
		Kind:    radio.ClassifyFrame(frame),
		Channel: tuned,
		Payload: frame,
	}
	if rt.Present.Channel() {
		if ch := core.FrequencyChannel(int(rt.ChannelFrequency)); ch != 0 {
			pkt.Channel = ch
		}
	}
	if rt.Present.DBMAntennaSignal() {
		pkt.RSSI = rt.DBMAntennaSignal
	}
	length := ci.Length - int(rt.Length)
	if rt.Flags.FCS() {
		length -= 4
	}
	if length < 0 {
		length = 0
	}
	if length > 0xffff {
		length = 0xffff
	}
	pkt.Length = uint16(length)
	return true
}

func (d *Driver) DisablePromiscuous() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return errors.New("monitor: capture not running")
	}
	d.stop.Store(true)
	<-d.done
	d.handle.Close()
	d.handle, d.done = nil, nil
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	running := d.handle != nil
	d.mu.Unlock()
	if running {
		return d.DisablePromiscuous()
	}
	return nil
}

// Interfaces lists capture devices known to libpcap.
func Interfaces() ([]string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(devs))
	for _, dev := range devs {
		names = append(names, dev.Name)
	}
	return names, nil
}
