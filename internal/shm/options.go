package shm

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPollInterval is how often an attacher re-checks readiness.
	DefaultPollInterval = time.Millisecond

	// DefaultTimeout bounds the readiness wait: 5000 polls at 1ms.
	DefaultTimeout = 5 * time.Second
)

// Option configures Open.
type Option func(*options)

type options struct {
	namespace    Namespace
	sleep        func(time.Duration)
	logger       zerolog.Logger
	pollInterval time.Duration
	timeout      time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		namespace:    DirNamespace{Dir: DefaultDir},
		sleep:        time.Sleep,
		logger:       log.Logger,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}
	if o.timeout < 0 {
		o.timeout = 0
	}
	return o
}

// WithDir stores segments as files in dir instead of /dev/shm.
func WithDir(dir string) Option {
	return func(o *options) {
		o.namespace = DirNamespace{Dir: dir}
	}
}

// WithNamespace replaces the segment namespace.
func WithNamespace(ns Namespace) Option {
	return func(o *options) {
		if ns != nil {
			o.namespace = ns
		}
	}
}

// WithPollInterval sets the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithTimeout sets the readiness wait bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithSleep replaces time.Sleep in the readiness poll, so tests can run
// the wait against a virtual clock.
func WithSleep(sleep func(time.Duration)) Option {
	return func(o *options) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithLogger sets the logger used for create/attach diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
