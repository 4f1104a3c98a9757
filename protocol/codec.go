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
	"bytes"
	"fmt"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	gerrors "github.com/tochemey/stateserver/errors"
)

// Field numbers of the wire schema documented in stateserver.proto.
const (
	requestHandleState  protowire.Number = 1
	requestRegister     protowire.Number = 2
	requestValueState   protowire.Number = 3
	requestListState    protowire.Number = 4
	requestGroupingKey  protowire.Number = 5
	handleStateState    protowire.Number = 1
	registerKind        protowire.Number = 1
	registerName        protowire.Number = 2
	registerSchema      protowire.Number = 3
	stateCallName       protowire.Number = 1
	valueOpExists       protowire.Number = 2
	valueOpGet          protowire.Number = 3
	valueOpUpdate       protowire.Number = 4
	valueOpClear        protowire.Number = 5
	listOpExists        protowire.Number = 2
	listOpGet           protowire.Number = 3
	listOpPut           protowire.Number = 4
	listOpAppendValue   protowire.Number = 5
	listOpAppendList    protowire.Number = 6
	listOpClear         protowire.Number = 7
	groupingKeySet      protowire.Number = 1
	groupingKeyRemove   protowire.Number = 2
	setKeyKey           protowire.Number = 1
	singleValueField    protowire.Number = 1
	repeatedValuesField protowire.Number = 1
	responseStatus      protowire.Number = 1
	responsePresent     protowire.Number = 2
	responseValue       protowire.Number = 3
	responseValues      protowire.Number = 4
)

// MarshalRequest encodes req into a frame payload.
func MarshalRequest(req Request) ([]byte, error) {
	switch x := req.(type) {
	case *SetHandleState:
		var inner []byte
		inner = appendEnum(inner, handleStateState, int32(x.State))
		return appendMessage(nil, requestHandleState, inner), nil
	case *RegisterState:
		var inner []byte
		inner = appendEnum(inner, registerKind, int32(x.Kind))
		inner = appendString(inner, registerName, x.Name)
		inner = appendString(inner, registerSchema, x.Schema)
		return appendMessage(nil, requestRegister, inner), nil
	case *SetGroupingKey:
		var setKey []byte
		setKey = appendBytes(setKey, setKeyKey, x.Key)
		return appendMessage(nil, requestGroupingKey, appendMessage(nil, groupingKeySet, setKey)), nil
	case *RemoveGroupingKey:
		return appendMessage(nil, requestGroupingKey, appendMessage(nil, groupingKeyRemove, nil)), nil
	case *ValueStateCall:
		inner := appendString(nil, stateCallName, x.Name)
		switch op := x.Op.(type) {
		case ValueExists:
			inner = appendMessage(inner, valueOpExists, nil)
		case ValueGet:
			inner = appendMessage(inner, valueOpGet, nil)
		case ValueUpdate:
			inner = appendMessage(inner, valueOpUpdate, appendBytes(nil, singleValueField, op.Value))
		case ValueClear:
			inner = appendMessage(inner, valueOpClear, nil)
		default:
			return nil, fmt.Errorf("%w: value state operation %T", gerrors.ErrMalformedMessage, x.Op)
		}
		return appendMessage(nil, requestValueState, inner), nil
	case *ListStateCall:
		inner := appendString(nil, stateCallName, x.Name)
		switch op := x.Op.(type) {
		case ListExists:
			inner = appendMessage(inner, listOpExists, nil)
		case ListGet:
			inner = appendMessage(inner, listOpGet, nil)
		case ListPut:
			inner = appendMessage(inner, listOpPut, appendRepeatedBytes(nil, repeatedValuesField, op.Values))
		case ListAppendValue:
			inner = appendMessage(inner, listOpAppendValue, appendBytes(nil, singleValueField, op.Value))
		case ListAppendList:
			inner = appendMessage(inner, listOpAppendList, appendRepeatedBytes(nil, repeatedValuesField, op.Values))
		case ListClear:
			inner = appendMessage(inner, listOpClear, nil)
		default:
			return nil, fmt.Errorf("%w: list state operation %T", gerrors.ErrMalformedMessage, x.Op)
		}
		return appendMessage(nil, requestListState, inner), nil
	default:
		return nil, fmt.Errorf("%w: request %T", gerrors.ErrMalformedMessage, req)
	}
}

// UnmarshalRequest decodes a frame payload into a Request. The returned request
// does not alias data. Unknown field numbers, mismatched wire types, truncated
// bytes and oneofs without exactly one member yield ErrMalformedMessage.
func UnmarshalRequest(data []byte) (Request, error) {
	var (
		req   Request
		count int
	)

	err := walk(data, func(f field) error {
		count++
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}

		var err error
		switch f.num {
		case requestHandleState:
			req, err = decodeHandleState(f.bytes)
		case requestRegister:
			req, err = decodeRegister(f.bytes)
		case requestValueState:
			req, err = decodeValueState(f.bytes)
		case requestListState:
			req, err = decodeListState(f.bytes)
		case requestGroupingKey:
			req, err = decodeGroupingKey(f.bytes)
		default:
			return f.unknown("request")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if count != 1 {
		return nil, malformed("request carries %d calls", count)
	}
	return req, nil
}

// MarshalResponse encodes resp into a frame payload.
func MarshalResponse(resp *Response) []byte {
	var out []byte
	out = appendEnum(out, responseStatus, int32(resp.Status))
	if resp.Present {
		out = protowire.AppendTag(out, responsePresent, protowire.VarintType)
		out = protowire.AppendVarint(out, protowire.EncodeBool(true))
	}
	out = appendBytes(out, responseValue, resp.Value)
	out = appendRepeatedBytes(out, responseValues, resp.Values)
	return out
}

// UnmarshalResponse decodes a frame payload into a Response.
func UnmarshalResponse(data []byte) (*Response, error) {
	resp := new(Response)
	err := walk(data, func(f field) error {
		switch f.num {
		case responseStatus:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			status := Status(f.varint)
			if status != StatusSuccess && status != StatusFailure {
				return malformed("unknown status %d", f.varint)
			}
			resp.Status = status
		case responsePresent:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			resp.Present = protowire.DecodeBool(f.varint)
		case responseValue:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			resp.Value = bytes.Clone(f.bytes)
		case responseValues:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			resp.Values = append(resp.Values, bytes.Clone(f.bytes))
		default:
			return f.unknown("response")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeHandleState(data []byte) (Request, error) {
	req := new(SetHandleState)
	err := walk(data, func(f field) error {
		if f.num != handleStateState {
			return f.unknown("handle state call")
		}
		if err := f.expect(protowire.VarintType); err != nil {
			return err
		}
		state := HandleState(f.varint)
		if f.varint > uint64(HandleClosed) || !state.valid() {
			return malformed("unknown handle state %d", f.varint)
		}
		req.State = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func decodeRegister(data []byte) (Request, error) {
	req := new(RegisterState)
	err := walk(data, func(f field) error {
		switch f.num {
		case registerKind:
			if err := f.expect(protowire.VarintType); err != nil {
				return err
			}
			kind := StateKind(f.varint)
			if f.varint > uint64(ListStateKind) || !kind.valid() {
				return malformed("unknown state kind %d", f.varint)
			}
			req.Kind = kind
		case registerName:
			name, err := f.string()
			if err != nil {
				return err
			}
			req.Name = name
		case registerSchema:
			schema, err := f.string()
			if err != nil {
				return err
			}
			req.Schema = schema
		default:
			return f.unknown("register state call")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func decodeGroupingKey(data []byte) (Request, error) {
	var (
		req   Request
		count int
	)
	err := walk(data, func(f field) error {
		count++
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		switch f.num {
		case groupingKeySet:
			setKey := new(SetGroupingKey)
			if err := walk(f.bytes, func(inner field) error {
				if inner.num != setKeyKey {
					return inner.unknown("set key")
				}
				if err := inner.expect(protowire.BytesType); err != nil {
					return err
				}
				setKey.Key = bytes.Clone(inner.bytes)
				return nil
			}); err != nil {
				return err
			}
			if setKey.Key == nil {
				setKey.Key = []byte{}
			}
			req = setKey
		case groupingKeyRemove:
			if err := expectEmpty(f.bytes, "remove key"); err != nil {
				return err
			}
			req = new(RemoveGroupingKey)
		default:
			return f.unknown("grouping key call")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, malformed("grouping key call carries %d operations", count)
	}
	return req, nil
}

func decodeValueState(data []byte) (Request, error) {
	req := new(ValueStateCall)
	count := 0
	err := walk(data, func(f field) error {
		if f.num == stateCallName {
			name, err := f.string()
			if err != nil {
				return err
			}
			req.Name = name
			return nil
		}

		count++
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		switch f.num {
		case valueOpExists:
			req.Op = ValueExists{}
			return expectEmpty(f.bytes, "exists")
		case valueOpGet:
			req.Op = ValueGet{}
			return expectEmpty(f.bytes, "get")
		case valueOpUpdate:
			value, err := decodeSingleValue(f.bytes)
			if err != nil {
				return err
			}
			req.Op = ValueUpdate{Value: value}
		case valueOpClear:
			req.Op = ValueClear{}
			return expectEmpty(f.bytes, "clear")
		default:
			return f.unknown("value state call")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, malformed("value state call carries %d operations", count)
	}
	return req, nil
}

func decodeListState(data []byte) (Request, error) {
	req := new(ListStateCall)
	count := 0
	err := walk(data, func(f field) error {
		if f.num == stateCallName {
			name, err := f.string()
			if err != nil {
				return err
			}
			req.Name = name
			return nil
		}

		count++
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		switch f.num {
		case listOpExists:
			req.Op = ListExists{}
			return expectEmpty(f.bytes, "exists")
		case listOpGet:
			req.Op = ListGet{}
			return expectEmpty(f.bytes, "get")
		case listOpPut:
			values, err := decodeRepeatedValues(f.bytes)
			if err != nil {
				return err
			}
			req.Op = ListPut{Values: values}
		case listOpAppendValue:
			value, err := decodeSingleValue(f.bytes)
			if err != nil {
				return err
			}
			req.Op = ListAppendValue{Value: value}
		case listOpAppendList:
			values, err := decodeRepeatedValues(f.bytes)
			if err != nil {
				return err
			}
			req.Op = ListAppendList{Values: values}
		case listOpClear:
			req.Op = ListClear{}
			return expectEmpty(f.bytes, "clear")
		default:
			return f.unknown("list state call")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count != 1 {
		return nil, malformed("list state call carries %d operations", count)
	}
	return req, nil
}

func decodeSingleValue(data []byte) ([]byte, error) {
	value := []byte{}
	err := walk(data, func(f field) error {
		if f.num != singleValueField {
			return f.unknown("value")
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		value = bytes.Clone(f.bytes)
		return nil
	})
	return value, err
}

func decodeRepeatedValues(data []byte) ([][]byte, error) {
	var values [][]byte
	err := walk(data, func(f field) error {
		if f.num != repeatedValuesField {
			return f.unknown("values")
		}
		if err := f.expect(protowire.BytesType); err != nil {
			return err
		}
		values = append(values, bytes.Clone(f.bytes))
		return nil
	})
	return values, err
}

func expectEmpty(data []byte, message string) error {
	return walk(data, func(f field) error {
		return f.unknown(message)
	})
}

// field is one decoded tag/value pair. Bytes alias the input.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return malformed("field %d has wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) unknown(message string) error {
	return malformed("unknown field %d in %s", f.num, message)
}

func (f field) string() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	if !utf8.Valid(f.bytes) {
		return "", malformed("field %d is not valid UTF-8", f.num)
	}
	return string(f.bytes), nil
}

// walk calls fn for every field of a protobuf encoded message. Only varint and
// length-delimited fields are part of the schema; any other wire type is rejected.
func walk(data []byte, fn func(field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
			f.varint = v
			data = data[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return malformed("field %d: %v", num, protowire.ParseError(m))
			}
			f.bytes = v
			data = data[m:]
		default:
			return malformed("field %d has unsupported wire type %d", num, typ)
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", gerrors.ErrMalformedMessage, fmt.Sprintf(format, args...))
}

func appendMessage(out []byte, num protowire.Number, inner []byte) []byte {
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, inner)
}

func appendEnum(out []byte, num protowire.Number, value int32) []byte {
	if value == 0 {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.VarintType)
	return protowire.AppendVarint(out, uint64(value))
}

func appendString(out []byte, num protowire.Number, value string) []byte {
	if value == "" {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendString(out, value)
}

func appendBytes(out []byte, num protowire.Number, value []byte) []byte {
	if len(value) == 0 {
		return out
	}
	out = protowire.AppendTag(out, num, protowire.BytesType)
	return protowire.AppendBytes(out, value)
}

func appendRepeatedBytes(out []byte, num protowire.Number, values [][]byte) []byte {
	for _, value := range values {
		out = protowire.AppendTag(out, num, protowire.BytesType)
		out = protowire.AppendBytes(out, value)
	}
	return out
}
