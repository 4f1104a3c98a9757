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

package cmd

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/stateserver/errors"
)

func execute(ctx context.Context, args ...string) (string, error) {
	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestServeAndWorker(t *testing.T) {
	run := func(t *testing.T, extra ...string) {
		ctx := context.Background()
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(dynaport.Get(1)[0]))

		type served struct {
			out string
			err error
		}
		done := make(chan served, 1)
		go func() {
			args := append([]string{"serve", "--listen", addr, "--log-level", "error", "--accept-timeout", "10s"}, extra...)
			out, err := execute(ctx, args...)
			done <- served{out: out, err: err}
		}()

		out, err := execute(ctx, "worker", "--addr", addr, "--name", "count", "--key", "A", "--value", "1")
		require.NoError(t, err)
		assert.Equal(t, "count[A] = 1\n", out)

		result := <-done
		require.NoError(t, result.err)
		assert.Contains(t, result.out, "listening on "+addr)
		assert.Contains(t, result.out, "committed=true")
	}

	t.Run("memory backend", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		run(t)
	})
	t.Run("bolt backend", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		run(t, "--backend", "bolt", "--path", filepath.Join(t.TempDir(), "state.db"))
	})
}

func TestServeFlags(t *testing.T) {
	valid := func() *serveFlags {
		return &serveFlags{
			listen:       "127.0.0.1:0",
			backend:      backendMemory,
			logLevel:     "info",
			maxFrameSize: 1024,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().validate())
	})
	t.Run("unknown backend", func(t *testing.T) {
		flags := valid()
		flags.backend = "redis"
		assert.Error(t, flags.validate())
	})
	t.Run("persistent backend without path", func(t *testing.T) {
		flags := valid()
		flags.backend = backendBadger
		assert.ErrorIs(t, flags.validate(), errPathRequired)
	})
	t.Run("negative partition", func(t *testing.T) {
		flags := valid()
		flags.partition = -2
		assert.ErrorIs(t, flags.validate(), gerrors.ErrInvalidPartition)
	})
	t.Run("bad listen address", func(t *testing.T) {
		flags := valid()
		flags.listen = "localhost"
		assert.Error(t, flags.validate())
	})
	t.Run("unknown log level", func(t *testing.T) {
		flags := valid()
		flags.logLevel = "verbose"
		assert.Error(t, flags.validate())
	})
	t.Run("serve rejects invalid flags", func(t *testing.T) {
		_, err := execute(context.Background(), "serve", "--backend", "bolt")
		assert.ErrorIs(t, err, errPathRequired)
	})
	t.Run("worker requires an address", func(t *testing.T) {
		_, err := execute(context.Background(), "worker")
		assert.Error(t, err)
	})
}
