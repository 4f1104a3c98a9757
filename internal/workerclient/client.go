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

// Package workerclient is a synchronous client of the state protocol. It plays
// the worker side in tests and in the harness binary.
package workerclient

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/flowchartsman/retry"

	"github.com/tochemey/stateserver/internal/frame"
	"github.com/tochemey/stateserver/protocol"
)

const (
	defaultDialAttempts = 5
	defaultInitialDelay = 50 * time.Millisecond
	defaultMaxDelay     = time.Second
)

// Client sends one request at a time and waits for its response.
// It is not safe for concurrent use.
type Client struct {
	conn      net.Conn
	transport *frame.Transport
}

// Dial connects to addr, retrying with exponential backoff while the server is
// not listening yet.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var (
		conn   net.Conn
		dialer net.Dialer
	)
	retrier := retry.NewRetrier(defaultDialAttempts, defaultInitialDelay, defaultMaxDelay)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("workerclient: dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, transport: frame.NewTransport(conn)}
}

// Call sends req and returns the server response.
func (c *Client) Call(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	payload, err := protocol.MarshalRequest(req)
	if err != nil {
		return nil, err
	}
	return c.CallRaw(ctx, payload)
}

// CallRaw sends payload as one frame and decodes the reply.
func (c *Client) CallRaw(ctx context.Context, payload []byte) (*protocol.Response, error) {
	stop := c.bind(ctx)
	defer stop()

	if err := c.transport.WriteFrame(payload); err != nil {
		return nil, err
	}
	reply, err := c.transport.ReadFrame()
	if err != nil {
		return nil, err
	}
	defer c.transport.Release(reply)
	return protocol.UnmarshalResponse(reply)
}

// Send writes raw bytes to the connection, bypassing framing.
func (c *Client) Send(raw []byte) error {
	_, err := c.conn.Write(raw)
	return err
}

// ReadFrame reads the next frame from the server.
func (c *Client) ReadFrame(ctx context.Context) ([]byte, error) {
	stop := c.bind(ctx)
	defer stop()

	payload, err := c.transport.ReadFrame()
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), payload...)
	c.transport.Release(payload)
	return out, nil
}

// SetHandleState asks for a handle lifecycle transition.
func (c *Client) SetHandleState(ctx context.Context, state protocol.HandleState) (*protocol.Response, error) {
	return c.Call(ctx, &protocol.SetHandleState{State: state})
}

// RegisterValueState registers a value state.
func (c *Client) RegisterValueState(ctx context.Context, name string) (*protocol.Response, error) {
	return c.Call(ctx, &protocol.RegisterState{Kind: protocol.ValueStateKind, Name: name})
}

// RegisterListState registers a list state.
func (c *Client) RegisterListState(ctx context.Context, name string) (*protocol.Response, error) {
	return c.Call(ctx, &protocol.RegisterState{Kind: protocol.ListStateKind, Name: name})
}

// SetGroupingKey sets the active grouping key.
func (c *Client) SetGroupingKey(ctx context.Context, key []byte) (*protocol.Response, error) {
	return c.Call(ctx, &protocol.SetGroupingKey{Key: key})
}

// EndOfStream tells the server no further frames follow.
func (c *Client) EndOfStream() error {
	return c.transport.WriteEndOfStream()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// bind applies the ctx deadline to the connection and closes it when ctx is done.
func (c *Client) bind(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.Close()
	})
	return func() { stop() }
}
