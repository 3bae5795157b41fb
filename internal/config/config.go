// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
)

// Config is the top-level configuration, rooted at `wisniff:` in YAML.
type Config struct {
	Radio     RadioConfig      `mapstructure:"radio" yaml:"radio"`
	Link      LinkConfig       `mapstructure:"link" yaml:"link"`
	Transport TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Capture   CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Hop       HopConfig        `mapstructure:"hop" yaml:"hop"`
	Stats     StatsConfig      `mapstructure:"stats" yaml:"stats"`
	Status    StatusConfig     `mapstructure:"status" yaml:"status"`
	Metrics   MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Log       log.LoggerConfig `mapstructure:"log" yaml:"log"`
}

// ─── Radio ───

// RadioConfig selects the radio driver and the initial capture channel.
type RadioConfig struct {
	Driver  string         `mapstructure:"driver" yaml:"driver"`   // monitor | sim
	Channel uint8          `mapstructure:"channel" yaml:"channel"` // initial channel
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Link ───

// LinkConfig selects the peer link. Type "none" runs capture without a peer.
type LinkConfig struct {
	Type       string         `mapstructure:"type" yaml:"type"` // ble | tcp | none
	DeviceName string         `mapstructure:"device_name" yaml:"device_name"`
	Options    map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// TransportConfig tunes chunking and pacing.
type TransportConfig struct {
	MTU     int           `mapstructure:"mtu" yaml:"mtu"`
	MaxMTU  int           `mapstructure:"max_mtu" yaml:"max_mtu"`
	Pacing  time.Duration `mapstructure:"pacing" yaml:"pacing"`
	Framing string        `mapstructure:"framing" yaml:"framing"` // none | length-prefix
}

// ─── Capture ───

// CaptureConfig configures the capture-to-transport hand-off.
type CaptureConfig struct {
	QueueSize   int    `mapstructure:"queue_size" yaml:"queue_size"`
	DropPolicy  string `mapstructure:"drop_policy" yaml:"drop_policy"` // tail | head
	PrefixLen   int    `mapstructure:"prefix_len" yaml:"prefix_len"`
	HopAttempts int    `mapstructure:"hop_attempts" yaml:"hop_attempts"`
	HexDump     bool   `mapstructure:"hex_dump" yaml:"hex_dump"`
}

// HopConfig configures periodic channel hopping.
type HopConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Channels []uint8       `mapstructure:"channels" yaml:"channels"`
}

// StatsConfig configures the periodic STATS record sent to the peer.
type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// StatusConfig configures the local status log line.
type StatusConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Loading ───

const rootKey = "wisniff"

type configRoot struct {
	Wisniff Config `mapstructure:"wisniff"`
}

// Load loads configuration from path. An empty path yields the defaults,
// still subject to environment overrides (e.g. WISNIFF_RADIO_CHANNEL).
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(v)
}

// Watch re-reads path whenever it changes and hands every valid result to
// onChange. Invalid edits are reported through onError and otherwise ignored.
func Watch(path string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := load(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	// Keys are prefixed with "wisniff." so the replacer maps them to WISNIFF_*.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func load(v *viper.Viper) (*Config, error) {
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Wisniff
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	key := func(k string) string { return rootKey + "." + k }

	v.SetDefault(key("radio.driver"), "monitor")
	v.SetDefault(key("radio.channel"), 1)

	v.SetDefault(key("link.type"), "ble")
	v.SetDefault(key("link.device_name"), "wisniff")

	v.SetDefault(key("transport.mtu"), 20)
	v.SetDefault(key("transport.max_mtu"), 512)
	v.SetDefault(key("transport.pacing"), "10ms")
	v.SetDefault(key("transport.framing"), "none")

	v.SetDefault(key("capture.queue_size"), 64)
	v.SetDefault(key("capture.drop_policy"), "tail")
	v.SetDefault(key("capture.prefix_len"), core.PrefixLen)
	v.SetDefault(key("capture.hop_attempts"), 3)
	v.SetDefault(key("capture.hex_dump"), false)

	v.SetDefault(key("hop.enabled"), false)
	v.SetDefault(key("hop.interval"), "30s")
	v.SetDefault(key("hop.channels"), []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13})

	v.SetDefault(key("stats.interval"), "30s")
	v.SetDefault(key("status.interval"), "30s")

	v.SetDefault(key("metrics.enabled"), false)
	v.SetDefault(key("metrics.listen"), ":9464")
	v.SetDefault(key("metrics.path"), "/metrics")

	def := log.DefaultConfig()
	v.SetDefault(key("log.level"), def.Level)
	v.SetDefault(key("log.format"), def.Format)
	v.SetDefault(key("log.pattern"), def.Pattern)
	v.SetDefault(key("log.time"), def.Time)
	v.SetDefault(key("log.file.max_size"), 100)
	v.SetDefault(key("log.file.max_backups"), 5)
	v.SetDefault(key("log.file.max_age"), 30)
}
