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

// Package state exposes state variables scoped to a grouping key on top of a
// statestore session. The grouping key is an explicit argument of every
// operation; there is no ambient current key.
package state

import (
	"context"
	"errors"
	"fmt"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/statestore"
)

// Handle creates state accessors over one store session.
type Handle struct {
	store statestore.Store
}

// NewHandle creates a Handle over store.
func NewHandle(store statestore.Store) *Handle {
	return &Handle{store: store}
}

// Store returns the underlying session.
func (h *Handle) Store() statestore.Store {
	return h.store
}

// ValueState returns the accessor of the value state called name.
func (h *Handle) ValueState(name string) (*ValueState, error) {
	if name == "" {
		return nil, gerrors.ErrInvalidStateName
	}
	return &ValueState{name: name, store: h.store}, nil
}

// ListState returns the accessor of the list state called name.
func (h *Handle) ListState(name string) (*ListState, error) {
	if name == "" {
		return nil, gerrors.ErrInvalidStateName
	}
	return &ListState{name: name, store: h.store}, nil
}

// ValueState holds at most one value per grouping key.
type ValueState struct {
	name  string
	store statestore.Store
}

// Name returns the state name.
func (s *ValueState) Name() string {
	return s.name
}

// Exists reports whether a value is stored for key.
func (s *ValueState) Exists(ctx context.Context, key GroupingKey) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Get returns the value stored for key. Absence is reported through the boolean,
// never as an error.
func (s *ValueState) Get(ctx context.Context, key GroupingKey) ([]byte, bool, error) {
	if !key.IsSet() {
		return nil, false, gerrors.ErrMissingGroupingKey
	}
	return s.store.Get(ctx, stateKey(valueKind, s.name, key))
}

// Update overwrites the value stored for key.
func (s *ValueState) Update(ctx context.Context, key GroupingKey, value []byte) error {
	if !key.IsSet() {
		return gerrors.ErrMissingGroupingKey
	}
	return s.store.Put(ctx, stateKey(valueKind, s.name, key), value)
}

// Clear removes the value stored for key.
func (s *ValueState) Clear(ctx context.Context, key GroupingKey) error {
	if !key.IsSet() {
		return gerrors.ErrMissingGroupingKey
	}
	return s.store.Delete(ctx, stateKey(valueKind, s.name, key))
}

// ListState holds an ordered sequence of values per grouping key. Every element is
// stored under its own key, followed by a big endian sequence number.
type ListState struct {
	name  string
	store statestore.Store
}

var errStopRange = errors.New("stop range")

// Name returns the state name.
func (s *ListState) Name() string {
	return s.name
}

// Exists reports whether the list of key holds at least one element.
func (s *ListState) Exists(ctx context.Context, key GroupingKey) (bool, error) {
	if !key.IsSet() {
		return false, gerrors.ErrMissingGroupingKey
	}
	found := false
	err := s.store.Range(ctx, stateKey(elementKind, s.name, key), func(_, _ []byte) error {
		found = true
		return errStopRange
	})
	if err != nil && !errors.Is(err, errStopRange) {
		return false, err
	}
	return found, nil
}

// Get returns the elements of the list of key in insertion order.
func (s *ListState) Get(ctx context.Context, key GroupingKey) ([][]byte, error) {
	if !key.IsSet() {
		return nil, gerrors.ErrMissingGroupingKey
	}
	var values [][]byte
	err := s.store.Range(ctx, stateKey(elementKind, s.name, key), func(_, value []byte) error {
		values = append(values, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Put replaces the list of key with values. An empty values clears the list.
func (s *ListState) Put(ctx context.Context, key GroupingKey, values [][]byte) error {
	if err := s.Clear(ctx, key); err != nil {
		return err
	}
	return s.AppendList(ctx, key, values)
}

// AppendValue appends value to the list of key.
func (s *ListState) AppendValue(ctx context.Context, key GroupingKey, value []byte) error {
	return s.AppendList(ctx, key, [][]byte{value})
}

// AppendList appends values to the list of key, preserving their order.
func (s *ListState) AppendList(ctx context.Context, key GroupingKey, values [][]byte) error {
	if !key.IsSet() {
		return gerrors.ErrMissingGroupingKey
	}
	if len(values) == 0 {
		return nil
	}

	seqKey := stateKey(sequenceKind, s.name, key)
	next, err := s.nextSequence(ctx, seqKey)
	if err != nil {
		return err
	}

	prefix := stateKey(elementKind, s.name, key)
	for _, value := range values {
		if err := s.store.Put(ctx, elementKey(prefix, next), value); err != nil {
			return err
		}
		next++
	}
	return s.store.Put(ctx, seqKey, encodeSequence(next))
}

// Clear removes every element of the list of key.
func (s *ListState) Clear(ctx context.Context, key GroupingKey) error {
	if !key.IsSet() {
		return gerrors.ErrMissingGroupingKey
	}

	var keys [][]byte
	err := s.store.Range(ctx, stateKey(elementKind, s.name, key), func(k, _ []byte) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, stateKey(sequenceKind, s.name, key))
}

func (s *ListState) nextSequence(ctx context.Context, seqKey []byte) (uint64, error) {
	raw, ok, err := s.store.Get(ctx, seqKey)
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("list state %q: corrupt sequence counter of %d bytes", s.name, len(raw))
	}
	return decodeSequence(raw), nil
}
