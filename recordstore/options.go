package recordstore

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultOpenTimeout  = 5 * time.Second
	DefaultRetryTimeout = 30 * time.Second
)

type Options struct {
	// OpenTimeout bounds a single open attempt, including the wait for other
	// connections to release the database during an upgrade.
	OpenTimeout time.Duration
	// RetryTimeout bounds the whole open sequence across retries.
	RetryTimeout time.Duration
	Clock        func() time.Time
	Logger       zerolog.Logger
}

type Option func(o *Options)

func WithOpenTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.OpenTimeout = d
	}
}

func WithRetryTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RetryTimeout = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func newOptions(opts []Option) *Options {
	o := &Options{
		OpenTimeout:  DefaultOpenTimeout,
		RetryTimeout: DefaultRetryTimeout,
		Clock:        time.Now,
		Logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
