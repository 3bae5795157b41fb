package daemon

import (
	"fmt"

	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/log"
)

// Reload re-reads the configuration file and applies it.
// Hot-reloadable: log level, radio channel, hop interval. A capture stopped
// by a fault is restarted on the configured channel.
// Cold (requires restart): radio driver, link, transport, capture queue.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file to reload")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	d.apply(cfg)
	return nil
}

func (d *Daemon) apply(next *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return
	}

	prev := d.config
	hotReloaded := []string{}

	// 1. Log level
	if next.Log.Level != prev.Log.Level {
		if err := log.SetLevel(next.Log.Level); err != nil {
			d.log.WithError(err).Error("failed to change log level")
		} else {
			hotReloaded = append(hotReloaded, "log.level")
		}
	}

	// 2. Channel: hop a running capture, restart one that faulted. The
	// recorded channel only changes once the radio is on it.
	switch st := d.ctrl.State(); {
	case !st.Capturing:
		if err := d.ctrl.Begin(next.Radio.Channel); err != nil {
			d.log.WithError(err).WithField("channel", next.Radio.Channel).Error("capture restart failed")
			next.Radio.Channel = prev.Radio.Channel
			break
		}
		hotReloaded = append(hotReloaded, "capture")
		if prev.Hop.Enabled {
			d.startHopper()
		}
	case next.Radio.Channel != prev.Radio.Channel:
		if err := d.ctrl.HopTo(next.Radio.Channel); err != nil {
			d.log.WithError(err).WithField("channel", next.Radio.Channel).Error("channel change failed")
			next.Radio.Channel = prev.Radio.Channel
			break
		}
		hotReloaded = append(hotReloaded, "radio.channel")
	}

	// 3. Hop interval
	if next.Hop.Interval != prev.Hop.Interval {
		d.hopper.SetInterval(next.Hop.Interval)
		hotReloaded = append(hotReloaded, "hop.interval")
	}

	// 4. Warn about cold-reload items that changed
	requiresRestart := []string{}
	if next.Radio.Driver != prev.Radio.Driver {
		requiresRestart = append(requiresRestart, "radio.driver")
	}
	if next.Link.Type != prev.Link.Type || next.Link.DeviceName != prev.Link.DeviceName {
		requiresRestart = append(requiresRestart, "link")
	}
	if next.Transport != prev.Transport {
		requiresRestart = append(requiresRestart, "transport")
	}
	if next.Capture != prev.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if next.Hop.Enabled != prev.Hop.Enabled {
		requiresRestart = append(requiresRestart, "hop.enabled")
	}

	d.config = next
	d.log.WithField("hot_reloaded", hotReloaded).
		WithField("requires_restart", requiresRestart).
		Info("configuration reloaded")
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}
