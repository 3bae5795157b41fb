// Package daemon wires the radio, the capture controller and the peer
// transport together and manages their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"firestige.xyz/wisniff/internal/capture"
	"firestige.xyz/wisniff/internal/config"
	"firestige.xyz/wisniff/internal/core"
	"firestige.xyz/wisniff/internal/log"
	"firestige.xyz/wisniff/internal/metrics"
	"firestige.xyz/wisniff/internal/radio"
	"firestige.xyz/wisniff/internal/stats"
	"firestige.xyz/wisniff/internal/transport"
)

// Version is reported at startup.
const Version = "0.1.0"

// Daemon manages the sniffer process lifecycle.
type Daemon struct {
	// Configuration
	mu         sync.Mutex
	config     *config.Config
	configPath string
	pidFile    string

	// Core components
	driver    radio.Driver
	link      transport.Link // nil when link.type is none
	source    *radio.FrameSource
	transport *transport.Transport // nil when link.type is none
	ctrl      *capture.Controller
	collector *stats.Collector
	reporter  *stats.Reporter
	hopper    *capture.Hopper
	hopping   atomic.Bool
	status    *statusPrinter

	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	tasks        conc.WaitGroup
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
	log          log.Logger
}

// New loads the configuration and creates a daemon. An empty configPath
// runs on defaults.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, configPath, pidFile), nil
}

// NewWithConfig creates a daemon from an already loaded configuration.
func NewWithConfig(cfg *config.Config, configPath, pidFile string) *Daemon {
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes all components and begins capturing. A transport that
// cannot be initialized or a radio that cannot start is fatal.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(&d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.log = log.Named("daemon")
	d.log.WithFields(map[string]interface{}{
		"version": Version,
		"config":  d.configPath,
		"driver":  d.config.Radio.Driver,
		"link":    d.config.Link.Type,
	}).Info("starting wisniff")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Build radio, link and capture pipeline
	if err := d.build(); err != nil {
		return err
	}

	// 5. Bring the link up; without it the process cannot serve a peer
	if d.transport != nil {
		if err := d.transport.Initialize(); err != nil {
			return err
		}
		if err := d.transport.StartAdvertising(); err != nil {
			d.log.WithError(err).Error("advertising failed, waiting for reload")
		}
	}

	// 6. Start capturing
	if err := d.ctrl.Begin(d.config.Radio.Channel); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	// 7. Background tasks
	d.startTasks()

	d.log.WithField("channel", d.config.Radio.Channel).Info("daemon started successfully")
	return nil
}

func (d *Daemon) build() error {
	driver, err := newDriver(d.config.Radio)
	if err != nil {
		return fmt.Errorf("failed to create radio driver: %w", err)
	}
	d.driver = driver

	link, err := newLink(d.config.Link)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	captureOpts, err := capture.OptionsFromConfig(d.config.Capture)
	if err != nil {
		return fmt.Errorf("failed to configure capture: %w", err)
	}

	d.link = link

	var sender capture.Sender
	if link != nil {
		transportOpts, err := transport.OptionsFromConfig(d.config.Transport)
		if err != nil {
			return fmt.Errorf("failed to configure transport: %w", err)
		}
		d.transport = transport.New(link, transportOpts)
		sender = d.transport
	}

	d.collector = stats.NewCollector()
	d.source = radio.NewFrameSource(driver, func(f core.CapturedFrame) { d.ctrl.Deliver(&f) })
	d.ctrl = capture.NewController(d.source, sender, d.collector, core.NewMonotonicClock(), captureOpts)
	d.source.OnFault(d.ctrl.SourceFailed)
	if d.transport != nil {
		d.transport.OnStateChange(d.ctrl.OnConnectionChange)
		d.reporter = stats.NewReporter(d.collector, d.transport, d.config.Stats.Interval)
	}
	d.hopper = capture.NewHopper(d.ctrl, d.config.Hop.Channels, d.config.Hop.Interval)
	d.status = newStatusPrinter(d, d.config.Status.Interval)
	return nil
}

func (d *Daemon) startTasks() {
	d.tasks.Go(func() { _ = d.ctrl.Run(d.ctx) })
	d.tasks.Go(func() { d.status.Run(d.ctx) })

	if d.reporter != nil {
		d.tasks.Go(func() { _ = d.reporter.Run(d.ctx) })
	}
	if d.config.Hop.Enabled {
		d.startHopper()
	}
	if d.configPath != "" {
		err := config.Watch(d.configPath, func(cfg *config.Config) {
			d.apply(cfg)
		}, func(err error) {
			d.log.WithError(err).Warn("ignoring invalid config change")
		})
		if err != nil {
			d.log.WithError(err).Warn("config watch disabled")
		}
	}
}

// startHopper runs the hopper unless it is already running. A hop fault ends
// it; a reload that restarts capture starts it again.
func (d *Daemon) startHopper() {
	if !d.hopping.CompareAndSwap(false, true) {
		return
	}
	d.tasks.Go(func() {
		defer d.hopping.Store(false)
		if err := d.hopper.Run(d.ctx); err != nil {
			d.log.WithError(err).Error("channel hopping stopped")
		}
	})
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT, TriggerShutdown
// or context cancellation. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	d.log.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.log.WithField("signal", sig).Info("received shutdown signal")
				d.Stop()
				return nil

			case syscall.SIGHUP:
				d.log.Info("received reload signal")
				if err := d.Reload(); err != nil {
					d.log.WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			d.log.Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown asks Run to stop the daemon.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Stop performs graceful shutdown. It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	if d.log == nil {
		d.log = log.Named("daemon")
	}
	d.log.Info("initiating graceful shutdown")

	// 1. Cancel context; a reload racing with shutdown sees it under mu
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()

	// 2. Stop capture so no more frames enter the queue
	if d.ctrl != nil {
		if err := d.ctrl.End(); err != nil && !errors.Is(err, core.ErrInvalidState) {
			d.log.WithError(err).Error("error stopping capture")
		}
	}

	// 3. Wait for background tasks
	d.tasks.Wait()

	// 4. Drop the peer
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			d.log.WithError(err).Error("error closing transport")
		}
	}

	// 5. Release the radio
	if d.driver != nil {
		if err := d.driver.Close(); err != nil {
			d.log.WithError(err).Error("error closing radio driver")
		}
	}

	// 6. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			d.log.WithError(err).Error("error stopping metrics server")
		}
	}

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := d.removePIDFile(); err != nil {
		d.log.WithError(err).Error("error removing PID file")
	}

	d.log.Info("daemon stopped gracefully")
}

// Controller exposes the capture controller.
func (d *Daemon) Controller() *capture.Controller { return d.ctrl }

// Transport exposes the peer transport, nil without a link.
func (d *Daemon) Transport() *transport.Transport { return d.transport }

// Driver exposes the radio driver.
func (d *Daemon) Driver() radio.Driver { return d.driver }

// Stats returns the capture counters.
func (d *Daemon) Stats() core.Stats { return d.collector.Snapshot() }

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.log.Debug("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	data := []byte(fmt.Sprintf("%d\n", os.Getpid()))
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
