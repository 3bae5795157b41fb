// Package log provides the process-wide structured logger backed by logrus.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger
	root   *logrusAdapter
)

// GetLogger returns the process logger. Before Init it falls back to an
// info-level stdout logger.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		a, _ := newAdapter(DefaultConfig())
		root, logger = a, a
	}
	return logger
}

// Named returns a logger tagged with the component prefix used by the
// prefixed console format.
func Named(component string) Logger {
	return GetLogger().WithField("prefix", component)
}

// Init replaces the process logger according to cfg.
func Init(cfg *LoggerConfig) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a, err := newAdapter(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	root, logger = a, a
	mu.Unlock()
	return nil
}

// SetLevel changes the level of the process logger in place.
func SetLevel(level string) error {
	GetLogger()
	mu.RLock()
	defer mu.RUnlock()
	return root.setLevel(level)
}
