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

package partition

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/internal/workerclient"
	"github.com/tochemey/stateserver/log"
	"github.com/tochemey/stateserver/processor"
	"github.com/tochemey/stateserver/protocol"
	"github.com/tochemey/stateserver/server"
	"github.com/tochemey/stateserver/state"
	"github.com/tochemey/stateserver/statestore"
)

type countingBackend struct {
	statestore.Backend
	commits *atomic.Int32
	aborts  *atomic.Int32
}

func newCountingBackend(backend statestore.Backend) *countingBackend {
	return &countingBackend{Backend: backend, commits: atomic.NewInt32(0), aborts: atomic.NewInt32(0)}
}

func (b *countingBackend) Begin(ctx context.Context, partition int) (statestore.Store, error) {
	store, err := b.Backend.Begin(ctx, partition)
	if err != nil {
		return nil, err
	}
	return &countingStore{Store: store, backend: b}, nil
}

type countingStore struct {
	statestore.Store
	backend *countingBackend
}

func (s *countingStore) Commit(ctx context.Context) error {
	s.backend.commits.Inc()
	return s.Store.Commit(ctx)
}

func (s *countingStore) Abort(ctx context.Context) error {
	s.backend.aborts.Inc()
	return s.Store.Abort(ctx)
}

type outcome struct {
	result *Result
	err    error
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ports := dynaport.Get(1)
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(ports[0])))
	require.NoError(t, err)
	return listener
}

func runAsync(ctx context.Context, cfg *Config, listener net.Listener, drain DrainFunc) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		result, err := Run(ctx, cfg, listener, drain)
		done <- outcome{result: result, err: err}
	}()
	return done
}

func readValue(t *testing.T, backend statestore.Backend, name, key string) ([]byte, bool) {
	t.Helper()
	ctx := context.Background()
	store, err := backend.Begin(ctx, 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Abort(ctx)) }()

	value, err := state.NewHandle(store).ValueState(name)
	require.NoError(t, err)
	current, ok, err := value.Get(ctx, state.NewGroupingKey([]byte(key)))
	require.NoError(t, err)
	return current, ok
}

// writeCount runs the scenario from connection to CLOSED and sets count[key] to value.
func writeCount(t *testing.T, ctx context.Context, client *workerclient.Client, key, value string) {
	t.Helper()
	steps := []protocol.Request{
		&protocol.SetHandleState{State: protocol.HandleInitialized},
		&protocol.RegisterState{Kind: protocol.ValueStateKind, Name: "count"},
		&protocol.SetGroupingKey{Key: []byte(key)},
		&protocol.ValueStateCall{Name: "count", Op: protocol.ValueUpdate{Value: []byte(value)}},
	}
	for _, step := range steps {
		resp, err := client.Call(ctx, step)
		require.NoError(t, err)
		require.True(t, resp.Succeeded(), step.CallName())
	}

	resp, err := client.Call(ctx, &protocol.ValueStateCall{Name: "count", Op: protocol.ValueGet{}})
	require.NoError(t, err)
	require.True(t, resp.Present)
	require.Equal(t, []byte(value), resp.Value)
}

func TestRun(t *testing.T) {
	t.Run("commits exactly once after a clean close", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		listener := listen(t)
		drained := atomic.NewBool(false)
		done := runAsync(ctx, cfg, listener, func(context.Context) error {
			drained.Store(true)
			return nil
		})

		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()

		writeCount(t, ctx, client, "A", "1")
		resp, err := client.SetHandleState(ctx, protocol.HandleClosed)
		require.NoError(t, err)
		require.True(t, resp.Succeeded())

		out := <-done
		require.NoError(t, out.err)
		assert.True(t, out.result.Committed)
		assert.Equal(t, server.HandleClosed, out.result.Termination.Reason)
		assert.NotEmpty(t, out.result.RunID)
		assert.True(t, drained.Load())
		assert.Equal(t, []processor.Descriptor{{Name: "count", Kind: protocol.ValueStateKind}}, out.result.States)
		assert.EqualValues(t, 1, backend.commits.Load())
		assert.Zero(t, backend.aborts.Load())

		value, ok := readValue(t, backend, "count", "A")
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), value)
	})
	t.Run("end of stream commits", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		listener := listen(t)
		done := runAsync(ctx, cfg, listener, nil)

		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()

		writeCount(t, ctx, client, "A", "2")
		require.NoError(t, client.EndOfStream())

		out := <-done
		require.NoError(t, out.err)
		assert.True(t, out.result.Committed)
		assert.Equal(t, server.EndOfStream, out.result.Termination.Reason)
		assert.EqualValues(t, 1, backend.commits.Load())
	})
	t.Run("malformed input aborts and keeps committed state", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		// first run commits count[A] = 1
		listener := listen(t)
		done := runAsync(ctx, cfg, listener, nil)
		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		writeCount(t, ctx, client, "A", "1")
		_, err = client.SetHandleState(ctx, protocol.HandleClosed)
		require.NoError(t, err)
		require.NoError(t, (<-done).err)
		require.NoError(t, client.Close())

		// second run writes count[A] = 2 then sends garbage
		listener = listen(t)
		done = runAsync(ctx, cfg, listener, nil)
		client, err = workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()
		writeCount(t, ctx, client, "A", "2")
		_, err = client.CallRaw(ctx, []byte{0xff, 0xff, 0xff})
		require.Error(t, err)

		out := <-done
		require.Error(t, out.err)
		assert.False(t, out.result.Committed)
		assert.Equal(t, server.Failed, out.result.Termination.Reason)
		assert.ErrorIs(t, out.result.Termination.Err, gerrors.ErrMalformedMessage)
		assert.EqualValues(t, 1, backend.commits.Load())
		assert.EqualValues(t, 1, backend.aborts.Load())

		value, ok := readValue(t, backend, "count", "A")
		assert.True(t, ok)
		assert.Equal(t, []byte("1"), value)
	})
	t.Run("worker disconnect aborts", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		listener := listen(t)
		done := runAsync(ctx, cfg, listener, nil)
		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		writeCount(t, ctx, client, "A", "1")
		require.NoError(t, client.Close())

		out := <-done
		require.Error(t, out.err)
		assert.False(t, out.result.Committed)
		assert.Equal(t, server.PeerDisconnected, out.result.Termination.Reason)
		assert.Zero(t, backend.commits.Load())
		assert.EqualValues(t, 1, backend.aborts.Load())

		_, ok := readValue(t, backend, "count", "A")
		assert.False(t, ok)
	})
	t.Run("drain failure cancels serving and aborts", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		upstream := errors.New("upstream failed")
		out := <-runAsync(ctx, cfg, listen(t), func(context.Context) error {
			return upstream
		})

		require.ErrorIs(t, out.err, upstream)
		assert.ErrorIs(t, out.result.DrainErr, upstream)
		assert.False(t, out.result.Committed)
		assert.Equal(t, server.Canceled, out.result.Termination.Reason)
		assert.Zero(t, backend.commits.Load())
		assert.EqualValues(t, 1, backend.aborts.Load())
	})
	t.Run("commit waits for drain", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		backend := newCountingBackend(statestore.NewMemoryBackend())
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		release := make(chan struct{})
		listener := listen(t)
		done := runAsync(ctx, cfg, listener, func(context.Context) error {
			<-release
			return nil
		})

		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()
		writeCount(t, ctx, client, "A", "1")
		_, err = client.SetHandleState(ctx, protocol.HandleClosed)
		require.NoError(t, err)

		assert.Zero(t, backend.commits.Load())
		close(release)

		out := <-done
		require.NoError(t, out.err)
		assert.True(t, out.result.Committed)
		assert.EqualValues(t, 1, backend.commits.Load())
	})
	t.Run("bolt backend", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx := context.Background()
		bolt, err := statestore.NewBoltBackend(filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		defer func() { require.NoError(t, bolt.Close()) }()

		cfg, err := NewConfig(bolt, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)

		listener := listen(t)
		done := runAsync(ctx, cfg, listener, nil)
		client, err := workerclient.Dial(ctx, listener.Addr().String())
		require.NoError(t, err)
		defer client.Close()
		writeCount(t, ctx, client, "A", "7")
		_, err = client.SetHandleState(ctx, protocol.HandleClosed)
		require.NoError(t, err)
		require.NoError(t, (<-done).err)

		value, ok := readValue(t, bolt, "count", "A")
		assert.True(t, ok)
		assert.Equal(t, []byte("7"), value)
	})
}

func TestNewConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := NewConfig(statestore.NewMemoryBackend(), 3, WithLogger(log.DiscardLogger),
			WithServerOptions(server.WithMaxFrameSize(1024)))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Partition())
		assert.NotNil(t, cfg.Backend())
		assert.Equal(t, log.DiscardLogger, cfg.Logger())
		assert.Len(t, cfg.serverOptions, 1)
	})
	t.Run("reports every violation", func(t *testing.T) {
		_, err := NewConfig(nil, -1)
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrBackendRequired)
		assert.ErrorIs(t, err, gerrors.ErrInvalidPartition)
	})
	t.Run("ignores a nil meter", func(t *testing.T) {
		cfg, err := NewConfig(statestore.NewMemoryBackend(), 0, WithMetrics(nil))
		require.NoError(t, err)
		assert.NotNil(t, cfg.meter)
	})
	t.Run("run rejects a nil config", func(t *testing.T) {
		_, err := Run(context.Background(), nil, nil, nil)
		require.Error(t, err)
	})
	t.Run("run releases the listener when it cannot start", func(t *testing.T) {
		ctx := context.Background()
		for _, cfg := range []*Config{nil, {}} {
			listener := listen(t)
			_, err := Run(ctx, cfg, listener, nil)
			require.Error(t, err)
			_, err = net.Dial("tcp", listener.Addr().String())
			assert.Error(t, err)
		}

		backend := statestore.NewMemoryBackend()
		cfg, err := NewConfig(backend, 0, WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		require.NoError(t, backend.Close())
		listener := listen(t)
		_, err = Run(ctx, cfg, listener, nil)
		require.ErrorIs(t, err, gerrors.ErrStoreClosed)
		_, err = net.Dial("tcp", listener.Addr().String())
		assert.Error(t, err)
	})
}
