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

package partition

import (
	otelmetric "go.opentelemetry.io/otel/metric"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/internal/metric"
	"github.com/tochemey/stateserver/internal/validation"
	"github.com/tochemey/stateserver/log"
	"github.com/tochemey/stateserver/server"
	"github.com/tochemey/stateserver/statestore"
)

// Config describes how one partition is processed.
type Config struct {
	backend       statestore.Backend
	partition     int
	logger        log.Logger
	meter         otelmetric.Meter
	serverOptions []server.Option
}

// Option configures a Config.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(*Config)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Config)

// Apply applies the option to the config
func (f OptionFunc) Apply(c *Config) {
	f(c)
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithMetrics records serving and commit metrics with meter.
func WithMetrics(meter otelmetric.Meter) Option {
	return OptionFunc(func(c *Config) {
		if meter != nil {
			c.meter = meter
		}
	})
}

// WithServerOptions passes options to the connection server.
func WithServerOptions(opts ...server.Option) Option {
	return OptionFunc(func(c *Config) {
		c.serverOptions = append(c.serverOptions, opts...)
	})
}

// NewConfig creates a validated Config for partition stored in backend.
func NewConfig(backend statestore.Backend, partition int, opts ...Option) (*Config, error) {
	cfg := &Config{
		backend:   backend,
		partition: partition,
		logger:    log.DefaultLogger,
		meter:     metric.NewProvider().Meter(),
	}
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.New().
		AddCheck(c.backend != nil, gerrors.ErrBackendRequired).
		AddCheck(c.partition >= 0, gerrors.ErrInvalidPartition).
		Validate()
}

// Partition returns the partition id.
func (c *Config) Partition() int {
	return c.partition
}

// Backend returns the state store backend.
func (c *Config) Backend() statestore.Backend {
	return c.backend
}

// Logger returns the logger.
func (c *Config) Logger() log.Logger {
	return c.logger
}
