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
	"context"
	"net"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/processor"
)

// Task is a serving loop running in its own goroutine.
type Task struct {
	addr        net.Addr
	handle      *processor.Handle
	cancel      context.CancelFunc
	done        chan struct{}
	termination Termination
}

// StartServing starts Serve in a new goroutine and returns immediately. The
// worker connects to Addr.
func StartServing(ctx context.Context, listener net.Listener, handle *processor.Handle, opts ...Option) (*Task, error) {
	if listener == nil {
		return nil, gerrors.ErrListenerRequired
	}
	if handle == nil {
		return nil, gerrors.ErrHandleRequired
	}

	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		addr:   listener.Addr(),
		handle: handle,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(task.done)
		defer cancel()
		task.termination = Serve(ctx, listener, handle, opts...)
	}()

	return task, nil
}

// Addr returns the address the worker connects to.
func (t *Task) Addr() net.Addr {
	return t.addr
}

// Handle returns the processor handle being served.
func (t *Task) Handle() *processor.Handle {
	return t.handle
}

// Done is closed once serving ended.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until serving ended and returns the termination.
func (t *Task) Wait() Termination {
	<-t.done
	return t.termination
}

// Cancel stops serving. Wait returns Canceled unless serving already ended.
func (t *Task) Cancel() {
	t.cancel()
}
