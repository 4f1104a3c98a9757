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

package workerclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	gerrors "github.com/tochemey/stateserver/errors"
	"github.com/tochemey/stateserver/internal/frame"
	"github.com/tochemey/stateserver/protocol"
)

// fakeServer answers every request on conn with reply until the stream ends.
// It reports the error that stopped it.
func fakeServer(conn net.Conn, reply *protocol.Response, seen chan<- protocol.Request) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer conn.Close()
		transport := frame.NewTransport(conn)
		for {
			payload, err := transport.ReadFrame()
			if err != nil {
				done <- err
				return
			}
			req, err := protocol.UnmarshalRequest(payload)
			transport.Release(payload)
			if err != nil {
				done <- err
				return
			}
			seen <- req
			if err := transport.WriteFrame(protocol.MarshalResponse(reply)); err != nil {
				done <- err
				return
			}
		}
	}()
	return done
}

func TestClient(t *testing.T) {
	t.Run("call round trip", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		serverConn, clientConn := net.Pipe()
		seen := make(chan protocol.Request, 8)
		done := fakeServer(serverConn, protocol.Found([]byte("v")), seen)

		client := New(clientConn)
		ctx := context.Background()

		resp, err := client.SetHandleState(ctx, protocol.HandleInitialized)
		require.NoError(t, err)
		assert.True(t, resp.Present)
		assert.Equal(t, []byte("v"), resp.Value)
		assert.Equal(t, &protocol.SetHandleState{State: protocol.HandleInitialized}, <-seen)

		_, err = client.RegisterValueState(ctx, "count")
		require.NoError(t, err)
		assert.Equal(t, &protocol.RegisterState{Kind: protocol.ValueStateKind, Name: "count"}, <-seen)

		_, err = client.RegisterListState(ctx, "items")
		require.NoError(t, err)
		assert.Equal(t, &protocol.RegisterState{Kind: protocol.ListStateKind, Name: "items"}, <-seen)

		_, err = client.SetGroupingKey(ctx, []byte("A"))
		require.NoError(t, err)
		assert.Equal(t, &protocol.SetGroupingKey{Key: []byte("A")}, <-seen)

		require.NoError(t, client.EndOfStream())
		assert.ErrorIs(t, <-done, gerrors.ErrEndOfStream)
		require.NoError(t, client.Close())
	})
	t.Run("call fails when the server goes away", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		serverConn, clientConn := net.Pipe()
		go func() {
			transport := frame.NewTransport(serverConn)
			if payload, err := transport.ReadFrame(); err == nil {
				transport.Release(payload)
			}
			_ = serverConn.Close()
		}()

		client := New(clientConn)
		defer client.Close()
		_, err := client.Call(context.Background(), &protocol.RemoveGroupingKey{})
		require.Error(t, err)
		assert.ErrorIs(t, err, gerrors.ErrTransportClosed)
	})
	t.Run("call honors the context deadline", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		serverConn, clientConn := net.Pipe()
		defer serverConn.Close()
		// drain without answering
		go func() {
			buf := make([]byte, 64)
			for {
				if _, err := serverConn.Read(buf); err != nil {
					return
				}
			}
		}()

		client := New(clientConn)
		defer client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.Call(ctx, &protocol.RemoveGroupingKey{})
		require.Error(t, err)
	})
	t.Run("dial gives up on a canceled context", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Dial(ctx, "127.0.0.1:1")
		require.Error(t, err)
	})
	t.Run("dial connects to a listening server", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			conn, err := listener.Accept()
			if err == nil {
				accepted <- conn
			}
			close(accepted)
		}()

		client, err := Dial(context.Background(), listener.Addr().String())
		require.NoError(t, err)
		conn := <-accepted
		require.NotNil(t, conn)
		require.NoError(t, client.Close())
		require.NoError(t, conn.Close())
	})
}
