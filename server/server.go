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

// Package server serves the state protocol to one worker connection per
// partition task. The loop is strictly request-then-response: read one frame,
// dispatch it against the processor handle, write and flush one frame.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/internal/frame"
	"github.com/tochemey/stateserver/internal/metric"
	"github.com/tochemey/stateserver/log"
	"github.com/tochemey/stateserver/processor"
	"github.com/tochemey/stateserver/protocol"
)

// Reason tells why serving ended.
type Reason int

const (
	// HandleClosed means the worker moved the handle to CLOSED and the response was flushed.
	HandleClosed Reason = iota
	// EndOfStream means the worker sent the end-of-stream marker.
	EndOfStream
	// PeerDisconnected means the worker went away on a frame boundary without closing the handle.
	PeerDisconnected
	// Failed means a fatal protocol, transport or state store error.
	Failed
	// Canceled means the serving context was done.
	Canceled
)

// String returns the name of the reason
func (r Reason) String() string {
	switch r {
	case HandleClosed:
		return "handle closed"
	case EndOfStream:
		return "end of stream"
	case PeerDisconnected:
		return "peer disconnected"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Termination is the terminal signal of a serving task. The owner of the
// partition uses it to decide between commit and abort.
type Termination struct {
	Reason Reason
	Err    error
}

// Clean reports whether serving ended normally.
func (t Termination) Clean() bool {
	return t.Reason == HandleClosed || t.Reason == EndOfStream
}

// String returns a readable form of the termination
func (t Termination) String() string {
	if t.Err == nil {
		return t.Reason.String()
	}
	return fmt.Sprintf("%s: %v", t.Reason, t.Err)
}

// Serve accepts exactly one worker connection on listener and serves it against
// handle until the handle is closed, the stream ends, the worker disconnects, a
// fatal error occurs or ctx is done. The listener and the accepted connection
// are closed on every return path, and the handle always ends in CLOSED.
func Serve(ctx context.Context, listener net.Listener, handle *processor.Handle, opts ...Option) Termination {
	if handle == nil {
		if listener != nil {
			_ = listener.Close()
		}
		return Termination{Reason: Failed, Err: gerrors.ErrHandleRequired}
	}
	defer handle.Close()

	if listener == nil {
		return Termination{Reason: Failed, Err: gerrors.ErrListenerRequired}
	}

	cfg := newConfig(opts...)
	logger := cfg.logger.With("partition", handle.Partition(), "run_id", handle.RunID())

	serverMetric, err := newServerMetric(cfg)
	if err != nil {
		_ = listener.Close()
		return Termination{Reason: Failed, Err: err}
	}

	conn, err := accept(ctx, listener, cfg.acceptTimeout)
	_ = listener.Close()
	if err != nil {
		termination := Termination{Reason: Failed, Err: err}
		if ctx.Err() != nil {
			termination.Reason = Canceled
		}
		logger.Warnf("no worker connected: %v", err)
		return termination
	}
	defer conn.Close()

	serverMetric.RecordConnection(ctx)
	logger = logger.With("peer", conn.RemoteAddr().String())
	logger.Debug("worker connected")

	// unblock a pending read or write when ctx is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s := &session{
		conn:       conn,
		transport:  frame.NewTransport(conn, frame.WithMaxSize(cfg.maxFrameSize)),
		dispatcher: processor.NewDispatcher(handle, logger),
		handle:     handle,
		cfg:        cfg,
		logger:     logger,
		metric:     serverMetric,
	}

	termination := s.serve(ctx)
	if !termination.Clean() {
		s.transport.Discard()
	}
	switch {
	case termination.Clean():
		logger.Infof("serving ended: %s", termination)
	case gerrors.IsFatal(termination.Err):
		// the worker broke the protocol or went away
		logger.Warnf("serving ended by the worker: %s", termination)
	default:
		logger.Errorf("serving ended: %s", termination)
	}
	return termination
}

type session struct {
	conn       net.Conn
	transport  *frame.Transport
	dispatcher *processor.Dispatcher
	handle     *processor.Handle
	cfg        *config
	logger     log.Logger
	metric     *metric.ServerMetric
}

func (s *session) serve(ctx context.Context) (termination Termination) {
	defer func() {
		if r := recover(); r != nil {
			termination = Termination{Reason: Failed, Err: fmt.Errorf("panic while serving: %v", r)}
		}
	}()

	for {
		if s.cfg.idleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.idleTimeout)); err != nil {
				return s.transportFailure(ctx, err)
			}
		}

		payload, err := s.transport.ReadFrame()
		if err != nil {
			return s.readFailure(ctx, err)
		}
		s.metric.RecordFrame(ctx, metric.DirectionIn, len(payload))

		req, err := protocol.UnmarshalRequest(payload)
		s.transport.Release(payload)
		if err != nil {
			return Termination{Reason: Failed, Err: err}
		}

		start := time.Now()
		resp, err := s.dispatcher.Dispatch(ctx, req)
		if err != nil {
			return Termination{Reason: Failed, Err: err}
		}
		s.metric.RecordRequest(ctx, req.CallName(), resp.Succeeded(), time.Since(start))

		out := protocol.MarshalResponse(resp)
		if s.cfg.idleTimeout > 0 {
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.idleTimeout)); err != nil {
				return s.transportFailure(ctx, err)
			}
		}
		if err := s.transport.WriteFrame(out); err != nil {
			return s.transportFailure(ctx, err)
		}
		s.metric.RecordFrame(ctx, metric.DirectionOut, len(out))

		if s.handle.IsClosed() {
			return Termination{Reason: HandleClosed}
		}
	}
}

func (s *session) readFailure(ctx context.Context, err error) Termination {
	switch {
	case errors.Is(err, gerrors.ErrEndOfStream):
		return Termination{Reason: EndOfStream}
	case ctx.Err() != nil:
		return Termination{Reason: Canceled, Err: ctx.Err()}
	case errors.Is(err, os.ErrDeadlineExceeded):
		return Termination{Reason: Failed, Err: fmt.Errorf("idle timeout after %s: %w", s.cfg.idleTimeout, err)}
	case errors.Is(err, gerrors.ErrTransportClosed):
		return Termination{Reason: PeerDisconnected, Err: err}
	default:
		return Termination{Reason: Failed, Err: err}
	}
}

func (s *session) transportFailure(ctx context.Context, err error) Termination {
	if ctx.Err() != nil {
		return Termination{Reason: Canceled, Err: ctx.Err()}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return Termination{Reason: Failed, Err: fmt.Errorf("idle timeout after %s: %w", s.cfg.idleTimeout, err)}
	}
	return Termination{Reason: PeerDisconnected, Err: err}
}

func newServerMetric(cfg *config) (*metric.ServerMetric, error) {
	meter := cfg.meter
	if meter == nil {
		meter = metric.NewProvider().Meter()
	}
	return metric.NewServerMetric(meter)
}

// accept waits for one connection. The listener is closed to unblock Accept
// when ctx is done or timeout elapses; a connection accepted at the same time
// is closed.
func accept(ctx context.Context, listener net.Listener, timeout time.Duration) (net.Conn, error) {
	type accepted struct {
		conn net.Conn
		err  error
	}

	result := make(chan accepted, 1)
	go func() {
		conn, err := listener.Accept()
		result <- accepted{conn: conn, err: err}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var cause error
	select {
	case r := <-result:
		if r.err != nil {
			return nil, fmt.Errorf("%w: accept: %w", gerrors.ErrTransportClosed, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		cause = ctx.Err()
	case <-expired:
		cause = fmt.Errorf("%w after %s", gerrors.ErrAcceptTimeout, timeout)
	}

	_ = listener.Close()
	if r := <-result; r.conn != nil {
		_ = r.conn.Close()
	}
	return nil, cause
}
