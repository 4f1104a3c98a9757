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

// Package processor holds the server side of one partition's stateful processing
// session: the processor handle and its lifecycle, the registry of state variables
// and the dispatcher executing worker requests against them.
package processor

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/protocol"
	"github.com/tochemey/stateserver/state"
	"github.com/tochemey/stateserver/statestore"
)

// Handle is the processor handle of one partition task. It starts in CREATED,
// moves to INITIALIZED and ends in CLOSED. Only the serving loop drives it.
type Handle struct {
	runID     string
	partition int
	state     *atomic.Int32
	store     statestore.Store
	states    *state.Handle
	registry  *Registry
}

// NewHandle creates a Handle in CREATED over the given store session.
func NewHandle(partition int, store statestore.Store) *Handle {
	return &Handle{
		runID:     uuid.NewString(),
		partition: partition,
		state:     atomic.NewInt32(int32(protocol.HandleCreated)),
		store:     store,
		states:    state.NewHandle(store),
		registry:  newRegistry(),
	}
}

// RunID returns the correlation id of the task.
func (h *Handle) RunID() string {
	return h.runID
}

// Partition returns the partition the handle processes.
func (h *Handle) Partition() int {
	return h.partition
}

// Store returns the store session backing the handle.
func (h *Handle) Store() statestore.Store {
	return h.store
}

// State returns the current lifecycle state.
func (h *Handle) State() protocol.HandleState {
	return protocol.HandleState(h.state.Load())
}

// IsClosed reports whether the handle reached CLOSED.
func (h *Handle) IsClosed() bool {
	return h.State() == protocol.HandleClosed
}

// Registry returns the state variables registered so far.
func (h *Handle) Registry() *Registry {
	return h.registry
}

// Transition moves the handle to the given state. The legal transitions are
// CREATED to INITIALIZED, and CREATED or INITIALIZED to CLOSED. Any other request
// leaves the state unchanged and returns ErrInvalidHandleState.
func (h *Handle) Transition(to protocol.HandleState) error {
	from := h.State()
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", gerrors.ErrInvalidHandleState, from, to)
	}
	h.state.Store(int32(to))
	return nil
}

// Close moves the handle to CLOSED from any state. The serving loop calls it on
// every exit so the handle agrees with how serving ended. It reports whether
// the handle was still open.
func (h *Handle) Close() bool {
	return h.state.Swap(int32(protocol.HandleClosed)) != int32(protocol.HandleClosed)
}

// RegisterValueState gets or creates the value state called name.
func (h *Handle) RegisterValueState(name, schema string) (*state.ValueState, error) {
	if err := h.ensureInitialized(); err != nil {
		return nil, err
	}
	return h.registry.registerValue(h.states, name, schema)
}

// RegisterListState gets or creates the list state called name.
func (h *Handle) RegisterListState(name, schema string) (*state.ListState, error) {
	if err := h.ensureInitialized(); err != nil {
		return nil, err
	}
	return h.registry.registerList(h.states, name, schema)
}

func (h *Handle) ensureInitialized() error {
	if current := h.State(); current != protocol.HandleInitialized {
		return fmt.Errorf("%w: registration requires %s, handle is %s",
			gerrors.ErrInvalidHandleState, protocol.HandleInitialized, current)
	}
	return nil
}

func canTransition(from, to protocol.HandleState) bool {
	switch from {
	case protocol.HandleCreated:
		return to == protocol.HandleInitialized || to == protocol.HandleClosed
	case protocol.HandleInitialized:
		return to == protocol.HandleClosed
	default:
		return false
	}
}
