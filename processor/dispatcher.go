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

package processor

import (
	"context"
	"fmt"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/log"
	"github.com/tochemey/stateserver/protocol"
	"github.com/tochemey/stateserver/state"
)

// Dispatcher executes decoded worker requests against a Handle. It tracks the
// active grouping key of the connection and hands it explicitly to every state
// operation.
//
// Recoverable errors become failed responses and are only logged on the host.
// Any other error, such as a state store failure, is returned and ends the
// connection. A Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	handle *Handle
	key    state.GroupingKey
	logger log.Logger
}

var _ protocol.Handler = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher for handle with no active grouping key.
func NewDispatcher(handle *Handle, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Dispatcher{handle: handle, logger: logger}
}

// Dispatch executes req and returns the response to send back.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	resp, err := req.Dispatch(ctx, d)
	if err == nil {
		return resp, nil
	}
	if gerrors.IsRecoverable(err) {
		d.logger.Debugf("request %s failed: %v", req.CallName(), err)
		return protocol.Failure(), nil
	}
	return nil, fmt.Errorf("%s: %w", req.CallName(), err)
}

// GroupingKey returns the active grouping key.
func (d *Dispatcher) GroupingKey() state.GroupingKey {
	return d.key
}

func (d *Dispatcher) SetHandleState(_ context.Context, to protocol.HandleState) (*protocol.Response, error) {
	from := d.handle.State()
	if err := d.handle.Transition(to); err != nil {
		return nil, err
	}
	d.logger.Debugf("processor handle moved from %s to %s", from, to)
	return protocol.Success(), nil
}

func (d *Dispatcher) RegisterState(_ context.Context, kind protocol.StateKind, name, schema string) (*protocol.Response, error) {
	var err error
	switch kind {
	case protocol.ValueStateKind:
		_, err = d.handle.RegisterValueState(name, schema)
	case protocol.ListStateKind:
		_, err = d.handle.RegisterListState(name, schema)
	default:
		err = fmt.Errorf("%w: unknown state kind %d", gerrors.ErrStateConflict, kind)
	}
	if err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) SetGroupingKey(_ context.Context, key []byte) (*protocol.Response, error) {
	d.key = state.NewGroupingKey(key)
	return protocol.Success(), nil
}

func (d *Dispatcher) RemoveGroupingKey(context.Context) (*protocol.Response, error) {
	d.key = state.GroupingKey{}
	return protocol.Success(), nil
}

func (d *Dispatcher) ValueExists(ctx context.Context, name string) (*protocol.Response, error) {
	value, err := d.valueState(name)
	if err != nil {
		return nil, err
	}
	ok, err := value.Exists(ctx, d.key)
	if err != nil {
		return nil, err
	}
	return protocol.Exists(ok), nil
}

func (d *Dispatcher) ValueGet(ctx context.Context, name string) (*protocol.Response, error) {
	value, err := d.valueState(name)
	if err != nil {
		return nil, err
	}
	current, ok, err := value.Get(ctx, d.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return protocol.NotFound(), nil
	}
	return protocol.Found(current), nil
}

func (d *Dispatcher) ValueUpdate(ctx context.Context, name string, newValue []byte) (*protocol.Response, error) {
	value, err := d.valueState(name)
	if err != nil {
		return nil, err
	}
	if err := value.Update(ctx, d.key, newValue); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) ValueClear(ctx context.Context, name string) (*protocol.Response, error) {
	value, err := d.valueState(name)
	if err != nil {
		return nil, err
	}
	if err := value.Clear(ctx, d.key); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) ListExists(ctx context.Context, name string) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	ok, err := list.Exists(ctx, d.key)
	if err != nil {
		return nil, err
	}
	return protocol.Exists(ok), nil
}

func (d *Dispatcher) ListGet(ctx context.Context, name string) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	values, err := list.Get(ctx, d.key)
	if err != nil {
		return nil, err
	}
	return protocol.List(values), nil
}

func (d *Dispatcher) ListPut(ctx context.Context, name string, values [][]byte) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	if err := list.Put(ctx, d.key, values); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) ListAppendValue(ctx context.Context, name string, value []byte) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	if err := list.AppendValue(ctx, d.key, value); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) ListAppendList(ctx context.Context, name string, values [][]byte) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	if err := list.AppendList(ctx, d.key, values); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

func (d *Dispatcher) ListClear(ctx context.Context, name string) (*protocol.Response, error) {
	list, err := d.listState(name)
	if err != nil {
		return nil, err
	}
	if err := list.Clear(ctx, d.key); err != nil {
		return nil, err
	}
	return protocol.Success(), nil
}

// valueState resolves name and checks the grouping key before any store access.
func (d *Dispatcher) valueState(name string) (*state.ValueState, error) {
	value, err := d.handle.Registry().ValueState(name)
	if err != nil {
		return nil, err
	}
	if !d.key.IsSet() {
		return nil, gerrors.ErrMissingGroupingKey
	}
	return value, nil
}

func (d *Dispatcher) listState(name string) (*state.ListState, error) {
	list, err := d.handle.Registry().ListState(name)
	if err != nil {
		return nil, err
	}
	if !d.key.IsSet() {
		return nil, gerrors.ErrMissingGroupingKey
	}
	return list, nil
}
