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

// Package partition runs one partition task: it serves the worker connection
// while the host drains its upstream rows, then commits the state store exactly
// once when both finished cleanly, and aborts otherwise.
package partition

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/tochemey/stateserver/internal/metric"
	"github.com/tochemey/stateserver/processor"
	"github.com/tochemey/stateserver/server"
)

// DrainFunc iterates the partition's upstream rows. It runs concurrently with
// serving and its context is canceled when serving ends abnormally.
type DrainFunc func(ctx context.Context) error

// Result reports how a partition task ended.
type Result struct {
	// RunID is the correlation id of the processor handle.
	RunID string
	// Termination is how serving ended.
	Termination server.Termination
	// DrainErr is the error returned by the drain function, if any.
	DrainErr error
	// Committed is true when the state store session was committed.
	Committed bool
	// States lists the state variables the worker registered, in registration order.
	States []processor.Descriptor
}

// Run processes one partition. It opens a store session, serves the worker
// connecting to listener and runs drain concurrently. The session is committed
// once iff serving ended cleanly and drain returned nil; otherwise it is aborted.
// A nil error means the session was committed.
//
// The listener is closed on every return path.
func Run(ctx context.Context, cfg *Config, listener net.Listener, drain DrainFunc) (*Result, error) {
	if cfg == nil {
		closeListener(listener)
		return nil, errors.New("partition: config is required")
	}
	if err := cfg.Validate(); err != nil {
		closeListener(listener)
		return nil, err
	}

	serverMetric, err := metric.NewServerMetric(cfg.meter)
	if err != nil {
		closeListener(listener)
		return nil, err
	}

	store, err := cfg.backend.Begin(ctx, cfg.partition)
	if err != nil {
		closeListener(listener)
		return nil, fmt.Errorf("partition %d: begin: %w", cfg.partition, err)
	}

	handle := processor.NewHandle(cfg.partition, store)
	logger := cfg.logger.With("partition", cfg.partition, "run_id", handle.RunID())
	result := &Result{RunID: handle.RunID()}

	opts := append([]server.Option{
		server.WithLogger(cfg.logger),
		server.WithMetrics(cfg.meter),
	}, cfg.serverOptions...)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result.Termination = server.Serve(groupCtx, listener, handle, opts...)
		if !result.Termination.Clean() {
			return fmt.Errorf("serving ended abnormally: %s", result.Termination)
		}
		return nil
	})
	group.Go(func() error {
		if drain == nil {
			return nil
		}
		if err := drain(groupCtx); err != nil {
			result.DrainErr = err
			return fmt.Errorf("drain: %w", err)
		}
		return nil
	})

	cause := group.Wait()
	result.States = handle.Registry().Descriptors()
	if cause != nil {
		if err := store.Abort(ctx); err != nil {
			cause = errors.Join(cause, fmt.Errorf("abort: %w", err))
		}
		serverMetric.RecordCommit(ctx, metric.OutcomeAborted)
		logger.Warnf("state store aborted: %v", cause)
		return result, fmt.Errorf("partition %d: %w", cfg.partition, cause)
	}

	if err := store.Commit(ctx); err != nil {
		serverMetric.RecordCommit(ctx, metric.OutcomeAborted)
		logger.Errorf("state store commit failed: %v", err)
		return result, fmt.Errorf("partition %d: commit: %w", cfg.partition, err)
	}

	result.Committed = true
	serverMetric.RecordCommit(ctx, metric.OutcomeCommitted)
	logger.Infof("state store committed after %s", result.Termination)
	return result, nil
}

func closeListener(listener net.Listener) {
	if listener != nil {
		_ = listener.Close()
	}
}
