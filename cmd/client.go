package cmd

import (
	"context"
	"syscall"

	"firestige.xyz/wisniff/internal/daemon"
)

// ClientInterface controls a running daemon.
type ClientInterface interface {
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
}

// signalClient reaches the daemon through the pid in its PID file.
type signalClient struct {
	pidFile string
}

func newClient() ClientInterface {
	return &signalClient{pidFile: pidFile}
}

func (c *signalClient) Stop(ctx context.Context) error {
	return daemon.Signal(c.pidFile, syscall.SIGTERM)
}

func (c *signalClient) Reload(ctx context.Context) error {
	return daemon.Signal(c.pidFile, syscall.SIGHUP)
}
