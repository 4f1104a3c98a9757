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

package statestore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/stateserver/errors"
)

// MemoryBackend keeps committed partition data in ordered in-memory trees.
//
// Concurrency:
//   - A RWMutex guards the partition trees. Sessions read under the read lock
//     and Commit applies a session's writes under the write lock, so a commit
//     is observed atomically by other sessions.
//
// Use cases:
//   - Suitable for tests and ephemeral runs. Data does not survive the process.
type MemoryBackend struct {
	mu         sync.RWMutex
	partitions map[int]*btree.BTreeG[item]
	closed     *atomic.Bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		partitions: make(map[int]*btree.BTreeG[item]),
		closed:     atomic.NewBool(false),
	}
}

// Begin opens a session over the given partition.
func (b *MemoryBackend) Begin(ctx context.Context, partition int) (Store, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if err := contextErr(ctx); err != nil {
		return nil, err
	}
	if partition < 0 {
		return nil, fmt.Errorf("%w: %d", gerrors.ErrInvalidPartition, partition)
	}
	return &memoryStore{
		backend:   b,
		partition: partition,
		pending:   newOverlay(),
		finalized: atomic.NewBool(false),
	}, nil
}

// Close drops all committed data.
func (b *MemoryBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.mu.Lock()
	clear(b.partitions)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) ensureOpen() error {
	if b.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return nil
}

type memoryStore struct {
	backend   *MemoryBackend
	partition int
	pending   *overlay
	finalized *atomic.Bool
}

var _ Store = (*memoryStore)(nil)

func (s *memoryStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	if it, ok := s.pending.get(key); ok {
		if it.deleted {
			return nil, false, nil
		}
		return bytes.Clone(it.value), true, nil
	}

	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	tree, ok := s.backend.partitions[s.partition]
	if !ok {
		return nil, false, nil
	}
	it, ok := tree.Get(item{key: key})
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(it.value), true, nil
}

func (s *memoryStore) Put(ctx context.Context, key, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.put(key, value)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.delete(key)
	return nil
}

func (s *memoryStore) Range(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	var committed []item
	s.backend.mu.RLock()
	if tree, ok := s.backend.partitions[s.partition]; ok {
		tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
			if !bytes.HasPrefix(it.key, prefix) {
				return false
			}
			committed = append(committed, it)
			return true
		})
	}
	s.backend.mu.RUnlock()

	return merge(committed, s.pending.ascendPrefix(prefix), func(key, value []byte) error {
		return fn(bytes.Clone(key), bytes.Clone(value))
	})
}

func (s *memoryStore) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if err := s.backend.ensureOpen(); err != nil {
		return err
	}

	tree, ok := s.backend.partitions[s.partition]
	if !ok {
		tree = newTree()
		s.backend.partitions[s.partition] = tree
	}
	return s.pending.ascend(func(it item) error {
		if it.deleted {
			tree.Delete(it)
			return nil
		}
		tree.ReplaceOrInsert(it)
		return nil
	})
}

func (s *memoryStore) Abort(context.Context) error {
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}
	s.pending = newOverlay()
	return nil
}

func (s *memoryStore) check(ctx context.Context) error {
	if s.finalized.Load() {
		return gerrors.ErrStoreFinalized
	}
	if err := s.backend.ensureOpen(); err != nil {
		return err
	}
	return contextErr(ctx)
}
