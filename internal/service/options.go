package service

import (
	"time"

	"github.com/atinyakov/GraphPaste/internal/metrics"
)

type options struct {
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option customises a service.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
