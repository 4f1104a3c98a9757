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
	"os"
	"strconv"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/stateserver/errors"
)

const (
	boltFileMode     os.FileMode = 0o600
	boltBucketPrefix             = "partition-"
)

var (
	boltTimeout        = 5 * time.Second
	defaultBoltOptions = &bbolt.Options{Timeout: boltTimeout, NoGrowSync: true}
)

// BoltBackend persists partition data in a bbolt file, one bucket per partition.
//
// Concurrency:
//   - bbolt provides single-writer/multi-reader semantics. Sessions therefore
//     buffer their writes in memory and apply them in a single Update at commit,
//     keeping the write lock for the duration of the commit only.
//   - Reads run in short View transactions and see every commit that finished
//     before they started.
type BoltBackend struct {
	db     *bbolt.DB
	closed *atomic.Bool
}

var _ Backend = (*BoltBackend)(nil)

// NewBoltBackend opens (or creates) the bbolt database at path. The database is
// opened with a short timeout to avoid blocking on a locked file.
func NewBoltBackend(path string) (*BoltBackend, error) {
	optionsCopy := *defaultBoltOptions
	db, err := bbolt.Open(path, boltFileMode, &optionsCopy)
	if err != nil {
		return nil, fmt.Errorf("statestore: opening boltdb: %w", err)
	}
	return &BoltBackend{db: db, closed: atomic.NewBool(false)}, nil
}

// Begin opens a session over the given partition.
func (b *BoltBackend) Begin(ctx context.Context, partition int) (Store, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if err := contextErr(ctx); err != nil {
		return nil, err
	}
	if partition < 0 {
		return nil, fmt.Errorf("%w: %d", gerrors.ErrInvalidPartition, partition)
	}
	return &boltStore{
		backend:   b,
		bucket:    []byte(boltBucketPrefix + strconv.Itoa(partition)),
		pending:   newOverlay(),
		finalized: atomic.NewBool(false),
	}, nil
}

// Close releases the underlying bbolt handle. The file is kept.
func (b *BoltBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

func (b *BoltBackend) ensureOpen() error {
	if b.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return nil
}

type boltStore struct {
	backend   *BoltBackend
	bucket    []byte
	pending   *overlay
	finalized *atomic.Bool
}

var _ Store = (*boltStore)(nil)

func (s *boltStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	if it, ok := s.pending.get(key); ok {
		if it.deleted {
			return nil, false, nil
		}
		return bytes.Clone(it.value), true, nil
	}

	var (
		value []byte
		found bool
	)
	err := s.backend.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return nil
		}
		// a cursor tells an empty value apart from a missing key
		k, v := bucket.Cursor().Seek(key)
		if k == nil || !bytes.Equal(k, key) {
			return nil
		}
		value, found = cloneValue(v), true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("statestore: boltdb get: %w", err)
	}
	return value, found, nil
}

func (s *boltStore) Put(ctx context.Context, key, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.put(key, value)
	return nil
}

func (s *boltStore) Delete(ctx context.Context, key []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.delete(key)
	return nil
}

func (s *boltStore) Range(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	var committed []item
	err := s.backend.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		k, v := cursor.First()
		if len(prefix) > 0 {
			k, v = cursor.Seek(prefix)
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			committed = append(committed, item{key: bytes.Clone(k), value: cloneValue(v)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: boltdb range: %w", err)
	}

	return merge(committed, s.pending.ascendPrefix(prefix), func(key, value []byte) error {
		return fn(bytes.Clone(key), bytes.Clone(value))
	})
}

func (s *boltStore) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}
	if s.pending.len() == 0 {
		return nil
	}

	err := s.backend.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return s.pending.ascend(func(it item) error {
			if it.deleted {
				return bucket.Delete(it.key)
			}
			return bucket.Put(it.key, it.value)
		})
	})
	if err != nil {
		return fmt.Errorf("statestore: boltdb commit: %w", err)
	}
	return nil
}

func (s *boltStore) Abort(context.Context) error {
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}
	s.pending = newOverlay()
	return nil
}

func (s *boltStore) check(ctx context.Context) error {
	if s.finalized.Load() {
		return gerrors.ErrStoreFinalized
	}
	if err := s.backend.ensureOpen(); err != nil {
		return err
	}
	return contextErr(ctx)
}
