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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/log"
)

const (
	badgerGCInterval     = 5 * time.Minute
	badgerGCDiscardRatio = 0.7

	// key spaces, each followed by the big-endian partition id
	badgerLiveSpace   byte = 'd'
	badgerStageSpace  byte = 's'
	badgerMarkerSpace byte = 'm'

	stagedPut    byte = 0
	stagedDelete byte = 1
)

// BadgerBackend persists partition data in BadgerDB.
//
// Sessions buffer their writes in memory. Commit has no size limit: the writes
// are first staged with a write batch, then a marker key is set in one small
// transaction, then the staged writes are applied to the live keys and the
// stage is cleared. The marker is the commit point. Begin finishes an
// interrupted commit when the marker is present and drops the stage otherwise,
// so a partition never exposes half of a commit.
type BadgerBackend struct {
	db      *badger.DB
	logger  log.Logger
	closed  *atomic.Bool
	stopSig chan struct{}
	gcDone  chan struct{}
	// serializes commits and recovery
	mu sync.Mutex
}

var _ Backend = (*BadgerBackend)(nil)

// NewBadgerBackend creates a BadgerBackend. When dir is nil an in-memory badger
// instance is used and the value log garbage collector is not started.
func NewBadgerBackend(logger log.Logger, dir *string) (*BadgerBackend, error) {
	if logger == nil {
		logger = log.DiscardLogger
	}

	var dbOpts badger.Options
	if dir != nil {
		dbOpts = badger.
			DefaultOptions(*dir).
			WithLogger(badgerLogger{logger})
	} else {
		dbOpts = badger.
			DefaultOptions("").
			WithInMemory(true).
			WithCompression(options.None).
			WithBlockCacheSize(0).
			WithLogger(badgerLogger{logger})
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("statestore: opening badger: %w", err)
	}

	b := &BadgerBackend{
		db:      db,
		logger:  logger,
		closed:  atomic.NewBool(false),
		stopSig: make(chan struct{}),
		gcDone:  make(chan struct{}),
	}

	if dir != nil {
		go b.runGC()
	} else {
		close(b.gcDone)
	}

	return b, nil
}

// Begin opens a session over the given partition, finishing or dropping any
// commit of that partition that was interrupted.
func (b *BadgerBackend) Begin(ctx context.Context, partition int) (Store, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	if err := contextErr(ctx); err != nil {
		return nil, err
	}
	if partition < 0 {
		return nil, fmt.Errorf("%w: %d", gerrors.ErrInvalidPartition, partition)
	}

	b.mu.Lock()
	err := b.recover(partition)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &badgerStore{
		backend:   b,
		partition: partition,
		live:      badgerSpace(badgerLiveSpace, partition),
		pending:   newOverlay(),
		finalized: atomic.NewBool(false),
	}, nil
}

// Close stops the garbage collector and closes the database.
func (b *BadgerBackend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	close(b.stopSig)
	<-b.gcDone
	return b.db.Close()
}

func (b *BadgerBackend) ensureOpen() error {
	if b.closed.Load() {
		return gerrors.ErrStoreClosed
	}
	return nil
}

// commit runs the staged commit of items. It must be called with mu held.
func (b *BadgerBackend) commit(partition int, items []item) error {
	stage := badgerSpace(badgerStageSpace, partition)
	batch := b.db.NewWriteBatch()
	for _, it := range items {
		if err := batch.Set(join(stage, it.key), encodeStaged(it)); err != nil {
			batch.Cancel()
			return fmt.Errorf("statestore: badger stage: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("statestore: badger stage: %w", err)
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerSpace(badgerMarkerSpace, partition), nil)
	})
	if err != nil {
		return fmt.Errorf("statestore: badger commit: %w", err)
	}

	// committed from here on; a failure is repaired by the next Begin
	if err := b.apply(partition, items); err != nil {
		b.logger.Warnf("partition %d committed, applying staged writes deferred: %v", partition, err)
	}
	return nil
}

// recover finishes or drops an interrupted commit. It must be called with mu held.
func (b *BadgerBackend) recover(partition int) error {
	var (
		committed bool
		staged    []item
	)
	stage := badgerSpace(badgerStageSpace, partition)
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerSpace(badgerMarkerSpace, partition))
		switch {
		case err == nil:
			committed = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = stage
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(stage); it.ValidForPrefix(stage); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := decodeStaged(it.Item().KeyCopy(nil)[len(stage):], raw)
			if err != nil {
				return err
			}
			staged = append(staged, entry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: badger recover: %w", err)
	}

	switch {
	case committed:
		b.logger.Infof("partition %d: finishing an interrupted commit of %d writes", partition, len(staged))
		err = b.apply(partition, staged)
	case len(staged) > 0:
		b.logger.Infof("partition %d: dropping %d writes of an unfinished commit", partition, len(staged))
		err = b.dropStage(partition, staged)
	}
	if err != nil {
		return fmt.Errorf("statestore: badger recover: %w", err)
	}
	return nil
}

// apply copies the staged writes to the live keys, then clears the stage and the marker.
func (b *BadgerBackend) apply(partition int, items []item) error {
	live := badgerSpace(badgerLiveSpace, partition)
	stage := badgerSpace(badgerStageSpace, partition)
	batch := b.db.NewWriteBatch()
	for _, it := range items {
		var err error
		if it.deleted {
			err = batch.Delete(join(live, it.key))
		} else {
			err = batch.Set(join(live, it.key), it.value)
		}
		if err == nil {
			err = batch.Delete(join(stage, it.key))
		}
		if err != nil {
			batch.Cancel()
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerSpace(badgerMarkerSpace, partition))
	})
}

func (b *BadgerBackend) dropStage(partition int, items []item) error {
	stage := badgerSpace(badgerStageSpace, partition)
	batch := b.db.NewWriteBatch()
	for _, it := range items {
		if err := batch.Delete(join(stage, it.key)); err != nil {
			batch.Cancel()
			return err
		}
	}
	return batch.Flush()
}

// runGC periodically reclaims value log space until the backend is closed.
func (b *BadgerBackend) runGC() {
	defer close(b.gcDone)
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				if err := b.db.RunValueLogGC(badgerGCDiscardRatio); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						b.logger.Error(fmt.Errorf("failed to run value log GC: %w", err))
					}
					break
				}
			}
		case <-b.stopSig:
			return
		}
	}
}

type badgerStore struct {
	backend   *BadgerBackend
	partition int
	live      []byte
	pending   *overlay
	finalized *atomic.Bool
}

var _ Store = (*badgerStore)(nil)

func (s *badgerStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}

	if it, ok := s.pending.get(key); ok {
		if it.deleted {
			return nil, false, nil
		}
		return cloneValue(it.value), true, nil
	}

	var (
		value []byte
		found bool
	)
	err := s.backend.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(join(s.live, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		raw, err := entry.ValueCopy(nil)
		if err != nil {
			return err
		}
		value, found = cloneValue(raw), true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("statestore: badger get: %w", err)
	}
	return value, found, nil
}

func (s *badgerStore) Put(ctx context.Context, key, value []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.put(key, value)
	return nil
}

func (s *badgerStore) Delete(ctx context.Context, key []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.pending.delete(key)
	return nil
}

func (s *badgerStore) Range(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	var committed []item
	full := join(s.live, prefix)
	err := s.backend.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = full
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(full); it.ValidForPrefix(full); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)[len(s.live):]
			committed = append(committed, item{key: key, value: cloneValue(value)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: badger range: %w", err)
	}

	return merge(committed, s.pending.ascendPrefix(prefix), func(key, value []byte) error {
		return fn(cloneValue(key), cloneValue(value))
	})
}

func (s *badgerStore) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}
	if s.pending.len() == 0 {
		return nil
	}

	items := make([]item, 0, s.pending.len())
	_ = s.pending.ascend(func(it item) error {
		items = append(items, it)
		return nil
	})

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.commit(s.partition, items)
}

func (s *badgerStore) Abort(context.Context) error {
	if !s.finalized.CompareAndSwap(false, true) {
		return gerrors.ErrStoreFinalized
	}
	s.pending = newOverlay()
	return nil
}

func (s *badgerStore) check(ctx context.Context) error {
	if s.finalized.Load() {
		return gerrors.ErrStoreFinalized
	}
	if err := s.backend.ensureOpen(); err != nil {
		return err
	}
	return contextErr(ctx)
}

// badgerSpace returns the key prefix of one key space of a partition.
func badgerSpace(space byte, partition int) []byte {
	return binary.BigEndian.AppendUint32([]byte{space}, uint32(partition))
}

func join(prefix, key []byte) []byte {
	full := make([]byte, 0, len(prefix)+len(key))
	full = append(full, prefix...)
	return append(full, key...)
}

func encodeStaged(it item) []byte {
	if it.deleted {
		return []byte{stagedDelete}
	}
	return append([]byte{stagedPut}, it.value...)
}

func decodeStaged(key, raw []byte) (item, error) {
	if len(raw) == 0 {
		return item{}, errors.New("empty staged entry")
	}
	switch raw[0] {
	case stagedPut:
		return item{key: key, value: cloneValue(raw[1:])}, nil
	case stagedDelete:
		return item{key: key, deleted: true}, nil
	default:
		return item{}, fmt.Errorf("unknown staged entry flag %d", raw[0])
	}
}

// badgerLogger routes badger's own logging through the server logger.
type badgerLogger struct {
	logger log.Logger
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.logger.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.logger.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.logger.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.logger.Debugf(format, args...) }
