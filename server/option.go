// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package server

import (
	"time"

	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/tochemey/stateserver/internal/frame"
	"github.com/tochemey/stateserver/log"
)

// Option configures the serving of one connection.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*config)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*config)

// Apply applies the option to the config
func (f OptionFunc) Apply(c *config) {
	f(c)
}

type config struct {
	logger        log.Logger
	maxFrameSize  uint32
	idleTimeout   time.Duration
	acceptTimeout time.Duration
	meter         otelmetric.Meter
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		logger:       log.DefaultLogger,
		maxFrameSize: frame.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	return cfg
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMaxFrameSize sets the largest frame payload accepted from, and written to, the worker.
// The default is 16 MiB.
func WithMaxFrameSize(size uint32) Option {
	return OptionFunc(func(c *config) {
		if size > 0 {
			c.maxFrameSize = size
		}
	})
}

// WithIdleTimeout bounds how long the server waits for the next request and for a
// response to be written. Zero, the default, waits forever.
func WithIdleTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.idleTimeout = timeout
	})
}

// WithAcceptTimeout bounds how long the server waits for the worker to connect.
// Zero, the default, waits until the context is done.
func WithAcceptTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *config) {
		c.acceptTimeout = timeout
	})
}

// WithMetrics records serving metrics with meter.
func WithMetrics(meter otelmetric.Meter) Option {
	return OptionFunc(func(c *config) {
		c.meter = meter
	})
}
