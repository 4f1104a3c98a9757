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

package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	gerrors "github.com/tochemey/stateserver/errors"
)

func TestRequestCodec(t *testing.T) {
	t.Run("round trips every request variant", func(t *testing.T) {
		requests := []Request{
			&SetHandleState{State: HandleCreated},
			&SetHandleState{State: HandleInitialized},
			&SetHandleState{State: HandleClosed},
			&RegisterState{Kind: ValueStateKind, Name: "count", Schema: "int"},
			&RegisterState{Kind: ListStateKind, Name: "events"},
			&SetGroupingKey{Key: []byte("user-1")},
			&RemoveGroupingKey{},
			&ValueStateCall{Name: "count", Op: ValueExists{}},
			&ValueStateCall{Name: "count", Op: ValueGet{}},
			&ValueStateCall{Name: "count", Op: ValueUpdate{Value: []byte{0x01, 0x02}}},
			&ValueStateCall{Name: "count", Op: ValueClear{}},
			&ListStateCall{Name: "events", Op: ListExists{}},
			&ListStateCall{Name: "events", Op: ListGet{}},
			&ListStateCall{Name: "events", Op: ListPut{Values: [][]byte{[]byte("a"), []byte("b")}}},
			&ListStateCall{Name: "events", Op: ListAppendValue{Value: []byte("c")}},
			&ListStateCall{Name: "events", Op: ListAppendList{Values: [][]byte{[]byte("d"), {}, []byte("e")}}},
			&ListStateCall{Name: "events", Op: ListClear{}},
		}

		for _, req := range requests {
			payload, err := MarshalRequest(req)
			require.NoError(t, err, req.CallName())

			actual, err := UnmarshalRequest(payload)
			require.NoError(t, err, req.CallName())
			assert.Equal(t, req, actual, req.CallName())
			assert.Equal(t, req.CallName(), actual.CallName())
		}
	})
	t.Run("empty grouping key and empty value decode as empty slices", func(t *testing.T) {
		payload, err := MarshalRequest(&SetGroupingKey{})
		require.NoError(t, err)
		req, err := UnmarshalRequest(payload)
		require.NoError(t, err)
		setKey, ok := req.(*SetGroupingKey)
		require.True(t, ok)
		assert.NotNil(t, setKey.Key)
		assert.Empty(t, setKey.Key)

		payload, err = MarshalRequest(&ValueStateCall{Name: "v", Op: ValueUpdate{}})
		require.NoError(t, err)
		req, err = UnmarshalRequest(payload)
		require.NoError(t, err)
		update, ok := req.(*ValueStateCall).Op.(ValueUpdate)
		require.True(t, ok)
		assert.NotNil(t, update.Value)
		assert.Empty(t, update.Value)
	})
	t.Run("decoded bytes do not alias the payload", func(t *testing.T) {
		payload, err := MarshalRequest(&SetGroupingKey{Key: []byte("key")})
		require.NoError(t, err)
		req, err := UnmarshalRequest(payload)
		require.NoError(t, err)

		for i := range payload {
			payload[i] = 0
		}
		assert.Equal(t, []byte("key"), req.(*SetGroupingKey).Key)
	})
	t.Run("rejects a request without call", func(t *testing.T) {
		_, err := UnmarshalRequest(nil)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a request with two calls", func(t *testing.T) {
		first, err := MarshalRequest(&RemoveGroupingKey{})
		require.NoError(t, err)
		second, err := MarshalRequest(&SetHandleState{State: HandleClosed})
		require.NoError(t, err)

		_, err = UnmarshalRequest(append(first, second...))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects an unknown call", func(t *testing.T) {
		payload := appendMessage(nil, 42, nil)
		_, err := UnmarshalRequest(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a state call without operation", func(t *testing.T) {
		payload := appendMessage(nil, requestValueState, appendString(nil, stateCallName, "count"))
		_, err := UnmarshalRequest(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)

		payload = appendMessage(nil, requestListState, appendString(nil, stateCallName, "events"))
		_, err = UnmarshalRequest(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a state call with two operations", func(t *testing.T) {
		inner := appendString(nil, stateCallName, "count")
		inner = appendMessage(inner, valueOpGet, nil)
		inner = appendMessage(inner, valueOpClear, nil)
		_, err := UnmarshalRequest(appendMessage(nil, requestValueState, inner))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects an unknown handle state", func(t *testing.T) {
		inner := protowire.AppendTag(nil, handleStateState, protowire.VarintType)
		inner = protowire.AppendVarint(inner, 7)
		_, err := UnmarshalRequest(appendMessage(nil, requestHandleState, inner))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects an unknown state kind", func(t *testing.T) {
		inner := protowire.AppendTag(nil, registerKind, protowire.VarintType)
		inner = protowire.AppendVarint(inner, 3)
		_, err := UnmarshalRequest(appendMessage(nil, requestRegister, inner))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a mismatched wire type", func(t *testing.T) {
		payload := protowire.AppendTag(nil, requestHandleState, protowire.VarintType)
		payload = protowire.AppendVarint(payload, 1)
		_, err := UnmarshalRequest(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a fixed width field", func(t *testing.T) {
		payload := protowire.AppendTag(nil, requestHandleState, protowire.Fixed32Type)
		payload = protowire.AppendFixed32(payload, 1)
		_, err := UnmarshalRequest(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects truncated bytes", func(t *testing.T) {
		payload, err := MarshalRequest(&RegisterState{Kind: ListStateKind, Name: "events"})
		require.NoError(t, err)
		_, err = UnmarshalRequest(payload[:len(payload)-2])
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects garbage", func(t *testing.T) {
		_, err := UnmarshalRequest([]byte{0xff, 0xff, 0xff})
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects a state name that is not UTF-8", func(t *testing.T) {
		inner := protowire.AppendTag(nil, registerName, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte{0xc3, 0x28})
		_, err := UnmarshalRequest(appendMessage(nil, requestRegister, inner))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects an unknown field inside an operation", func(t *testing.T) {
		inner := appendString(nil, stateCallName, "count")
		inner = appendMessage(inner, valueOpExists, appendString(nil, 9, "extra"))
		_, err := UnmarshalRequest(appendMessage(nil, requestValueState, inner))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
}

func TestResponseCodec(t *testing.T) {
	t.Run("round trips responses", func(t *testing.T) {
		responses := []*Response{
			Success(),
			Failure(),
			Found([]byte("v")),
			NotFound(),
			Exists(true),
			Exists(false),
			List([][]byte{[]byte("a"), []byte("b")}),
			List(nil),
		}
		for _, resp := range responses {
			actual, err := UnmarshalResponse(MarshalResponse(resp))
			require.NoError(t, err)
			assert.Equal(t, resp, actual)
		}
	})
	t.Run("success without payload encodes to zero bytes", func(t *testing.T) {
		assert.Empty(t, MarshalResponse(Success()))
	})
	t.Run("rejects an unknown status", func(t *testing.T) {
		payload := protowire.AppendTag(nil, responseStatus, protowire.VarintType)
		payload = protowire.AppendVarint(payload, 5)
		_, err := UnmarshalResponse(payload)
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
	t.Run("rejects an unknown field", func(t *testing.T) {
		_, err := UnmarshalResponse(appendString(nil, 12, "x"))
		require.ErrorIs(t, err, gerrors.ErrMalformedMessage)
	})
}

type recordingHandler struct {
	calls []string
}

var _ Handler = (*recordingHandler)(nil)

func (h *recordingHandler) record(call string) (*Response, error) {
	h.calls = append(h.calls, call)
	return Success(), nil
}

func (h *recordingHandler) SetHandleState(_ context.Context, state HandleState) (*Response, error) {
	return h.record("SetHandleState:" + state.String())
}

func (h *recordingHandler) RegisterState(_ context.Context, kind StateKind, name, _ string) (*Response, error) {
	return h.record("RegisterState:" + kind.String() + ":" + name)
}

func (h *recordingHandler) SetGroupingKey(_ context.Context, key []byte) (*Response, error) {
	return h.record("SetGroupingKey:" + string(key))
}

func (h *recordingHandler) RemoveGroupingKey(context.Context) (*Response, error) {
	return h.record("RemoveGroupingKey")
}

func (h *recordingHandler) ValueExists(_ context.Context, name string) (*Response, error) {
	return h.record("ValueExists:" + name)
}

func (h *recordingHandler) ValueGet(_ context.Context, name string) (*Response, error) {
	return h.record("ValueGet:" + name)
}

func (h *recordingHandler) ValueUpdate(_ context.Context, name string, value []byte) (*Response, error) {
	return h.record("ValueUpdate:" + name + ":" + string(value))
}

func (h *recordingHandler) ValueClear(_ context.Context, name string) (*Response, error) {
	return h.record("ValueClear:" + name)
}

func (h *recordingHandler) ListExists(_ context.Context, name string) (*Response, error) {
	return h.record("ListExists:" + name)
}

func (h *recordingHandler) ListGet(_ context.Context, name string) (*Response, error) {
	return h.record("ListGet:" + name)
}

func (h *recordingHandler) ListPut(_ context.Context, name string, values [][]byte) (*Response, error) {
	return h.record("ListPut:" + name + ":" + string(values[0]))
}

func (h *recordingHandler) ListAppendValue(_ context.Context, name string, value []byte) (*Response, error) {
	return h.record("ListAppendValue:" + name + ":" + string(value))
}

func (h *recordingHandler) ListAppendList(_ context.Context, name string, values [][]byte) (*Response, error) {
	return h.record("ListAppendList:" + name + ":" + string(values[0]))
}

func (h *recordingHandler) ListClear(_ context.Context, name string) (*Response, error) {
	return h.record("ListClear:" + name)
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	handler := new(recordingHandler)

	requests := []Request{
		&SetHandleState{State: HandleInitialized},
		&RegisterState{Kind: ListStateKind, Name: "events"},
		&SetGroupingKey{Key: []byte("k")},
		&RemoveGroupingKey{},
		&ValueStateCall{Name: "v", Op: ValueExists{}},
		&ValueStateCall{Name: "v", Op: ValueGet{}},
		&ValueStateCall{Name: "v", Op: ValueUpdate{Value: []byte("x")}},
		&ValueStateCall{Name: "v", Op: ValueClear{}},
		&ListStateCall{Name: "l", Op: ListExists{}},
		&ListStateCall{Name: "l", Op: ListGet{}},
		&ListStateCall{Name: "l", Op: ListPut{Values: [][]byte{[]byte("p")}}},
		&ListStateCall{Name: "l", Op: ListAppendValue{Value: []byte("a")}},
		&ListStateCall{Name: "l", Op: ListAppendList{Values: [][]byte{[]byte("b")}}},
		&ListStateCall{Name: "l", Op: ListClear{}},
	}
	for _, req := range requests {
		resp, err := req.Dispatch(ctx, handler)
		require.NoError(t, err)
		assert.True(t, resp.Succeeded())
	}

	expected := []string{
		"SetHandleState:INITIALIZED",
		"RegisterState:ListState:events",
		"SetGroupingKey:k",
		"RemoveGroupingKey",
		"ValueExists:v",
		"ValueGet:v",
		"ValueUpdate:v:x",
		"ValueClear:v",
		"ListExists:l",
		"ListGet:l",
		"ListPut:l:p",
		"ListAppendValue:l:a",
		"ListAppendList:l:b",
		"ListClear:l",
	}
	assert.Equal(t, expected, handler.calls)
}
