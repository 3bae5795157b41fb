package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"firestige.xyz/wisniff/internal/core"
)

// Validate checks cross-field constraints. All failures wrap
// core.ErrConfigInvalid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Radio.Driver {
	case "monitor", "sim":
	default:
		return invalid("unsupported radio.driver %q (must be monitor/sim)", c.Radio.Driver)
	}
	if !core.ValidChannel(c.Radio.Channel) {
		return invalid("radio.channel %d out of range %d-%d", c.Radio.Channel, core.MinChannel, core.MaxChannel)
	}

	switch c.Link.Type {
	case "ble", "tcp", "none":
	default:
		return invalid("unsupported link.type %q (must be ble/tcp/none)", c.Link.Type)
	}

	if c.Transport.MTU <= 0 {
		return invalid("transport.mtu must be positive")
	}
	if c.Transport.MaxMTU < c.Transport.MTU {
		return invalid("transport.max_mtu %d below transport.mtu %d", c.Transport.MaxMTU, c.Transport.MTU)
	}
	if c.Transport.Pacing < 0 {
		return invalid("transport.pacing must not be negative")
	}
	switch c.Transport.Framing {
	case "none", "length-prefix":
	default:
		return invalid("unsupported transport.framing %q (must be none/length-prefix)", c.Transport.Framing)
	}

	if c.Capture.QueueSize <= 0 {
		return invalid("capture.queue_size must be positive")
	}
	switch c.Capture.DropPolicy {
	case "tail", "head":
	default:
		return invalid("unsupported capture.drop_policy %q (must be tail/head)", c.Capture.DropPolicy)
	}
	if c.Capture.PrefixLen < 0 || c.Capture.PrefixLen > core.InspectLen {
		return invalid("capture.prefix_len must be within 0-%d", core.InspectLen)
	}
	if c.Capture.HopAttempts <= 0 {
		return invalid("capture.hop_attempts must be positive")
	}

	if c.Hop.Enabled {
		if c.Hop.Interval <= 0 {
			return invalid("hop.interval must be positive when hopping is enabled")
		}
		if len(c.Hop.Channels) == 0 {
			return invalid("hop.channels must not be empty when hopping is enabled")
		}
	}
	for _, ch := range c.Hop.Channels {
		if !core.ValidChannel(ch) {
			return invalid("hop.channels contains invalid channel %d", ch)
		}
	}

	if c.Stats.Interval <= 0 || c.Status.Interval <= 0 {
		return invalid("stats.interval and status.interval must be positive")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return invalid("invalid log.level %q", c.Log.Level)
	}
	return nil
}
