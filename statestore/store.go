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

// Package statestore defines the transactional key-value contract the state server
// executes state operations against, and ships three backends for it: an in-memory
// B-tree, bbolt and badger.
//
// A Store is one session over one partition. Writes stay private to the session
// until Commit; Abort drops them. Either call finalizes the session.
package statestore

import (
	"context"
)

// Backend hands out store sessions for partitions.
type Backend interface {
	// Begin opens a session over the given partition.
	Begin(ctx context.Context, partition int) (Store, error)
	// Close releases the backend. Sessions still open afterwards fail with ErrStoreClosed.
	Close() error
}

// Store is a read-your-writes session over the keys of one partition.
type Store interface {
	// Get returns a copy of the value stored under key and whether the key is present.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	// Put stores value under key.
	Put(ctx context.Context, key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error
	// Range calls fn for every key starting with prefix in ascending key order.
	// Iteration stops at the first error returned by fn.
	Range(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
	// Commit makes the session's writes durable and visible to later sessions.
	Commit(ctx context.Context) error
	// Abort discards the session's writes.
	Abort(ctx context.Context) error
}

// contextErr reports the context error without blocking.
func contextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
