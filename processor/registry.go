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
	"fmt"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/protocol"
	"github.com/tochemey/stateserver/state"
)

// Descriptor describes a registered state variable.
type Descriptor struct {
	Name   string
	Kind   protocol.StateKind
	Schema string
}

type registration struct {
	descriptor Descriptor
	value      *state.ValueState
	list       *state.ListState
}

// Registry maps state names to their accessors for one handle. Entries are never
// removed; the registry lives as long as the handle.
type Registry struct {
	entries map[string]*registration
	order   []string
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

// Len returns the number of registered state variables.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Descriptors returns the registered state variables in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].descriptor)
	}
	return out
}

// ValueState returns the value state registered as name.
func (r *Registry) ValueState(name string) (*state.ValueState, error) {
	entry, err := r.lookup(name, protocol.ValueStateKind)
	if err != nil {
		return nil, err
	}
	return entry.value, nil
}

// ListState returns the list state registered as name.
func (r *Registry) ListState(name string) (*state.ListState, error) {
	entry, err := r.lookup(name, protocol.ListStateKind)
	if err != nil {
		return nil, err
	}
	return entry.list, nil
}

func (r *Registry) lookup(name string, kind protocol.StateKind) (*registration, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", gerrors.ErrUnknownState, name)
	}
	if entry.descriptor.Kind != kind {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", gerrors.ErrStateConflict, name, entry.descriptor.Kind, kind)
	}
	return entry, nil
}

func (r *Registry) registerValue(states *state.Handle, name, schema string) (*state.ValueState, error) {
	entry, err := r.register(Descriptor{Name: name, Kind: protocol.ValueStateKind, Schema: schema}, func(entry *registration) error {
		value, err := states.ValueState(name)
		entry.value = value
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry.value, nil
}

func (r *Registry) registerList(states *state.Handle, name, schema string) (*state.ListState, error) {
	entry, err := r.register(Descriptor{Name: name, Kind: protocol.ListStateKind, Schema: schema}, func(entry *registration) error {
		list, err := states.ListState(name)
		entry.list = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry.list, nil
}

// register returns the existing entry when descriptor matches it, and creates
// one with create otherwise.
func (r *Registry) register(descriptor Descriptor, create func(*registration) error) (*registration, error) {
	if entry, ok := r.entries[descriptor.Name]; ok {
		if entry.descriptor != descriptor {
			return nil, fmt.Errorf("%w: %q is registered as %s(%q)", gerrors.ErrStateConflict,
				descriptor.Name, entry.descriptor.Kind, entry.descriptor.Schema)
		}
		return entry, nil
	}

	entry := &registration{descriptor: descriptor}
	if err := create(entry); err != nil {
		return nil, err
	}
	r.entries[descriptor.Name] = entry
	r.order = append(r.order, descriptor.Name)
	return entry, nil
}
