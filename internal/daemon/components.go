package daemon

import (
	"fmt"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/link/ble"
	"firestige.xyz/wisniff/internal/link/tcplink"
	"firestige.xyz/wisniff/internal/radio"
	"firestige.xyz/wisniff/internal/radio/monitor"
	"firestige.xyz/wisniff/internal/transport"
)

func newDriver(cfg config.RadioConfig) (radio.Driver, error) {
	switch cfg.Driver {
	case monitor.Name:
		return monitor.New(cfg.Options)
	case "sim":
		var opts radio.SimOptions
		if err := config.DecodeOptions(cfg.Options, &opts); err != nil {
			return nil, err
		}
		return radio.NewSimDriver(opts), nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q", cfg.Driver)
	}
}

// newLink returns nil for link type "none".
func newLink(cfg config.LinkConfig) (transport.Link, error) {
	switch cfg.Type {
	case ble.Name:
		return ble.New(cfg.DeviceName, cfg.Options)
	case tcplink.Name:
		return tcplink.New(cfg.Options)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown link type %q", cfg.Type)
	}
}
