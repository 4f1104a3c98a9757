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

import "context"

// HandleState is the lifecycle state of a processor handle.
type HandleState int32

const (
	// HandleCreated is the initial state of a processor handle.
	HandleCreated HandleState = iota
	// HandleInitialized is reached once the worker finished its init phase.
	HandleInitialized
	// HandleClosed is terminal.
	HandleClosed
)

// String returns the wire name of the state
func (s HandleState) String() string {
	switch s {
	case HandleCreated:
		return "CREATED"
	case HandleInitialized:
		return "INITIALIZED"
	case HandleClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s HandleState) valid() bool {
	return s >= HandleCreated && s <= HandleClosed
}

// StateKind is the kind of a state variable.
type StateKind int32

const (
	// ValueStateKind holds at most one value per grouping key.
	ValueStateKind StateKind = iota
	// ListStateKind holds an ordered sequence of values per grouping key.
	ListStateKind
)

// String returns the name of the kind
func (k StateKind) String() string {
	switch k {
	case ValueStateKind:
		return "ValueState"
	case ListStateKind:
		return "ListState"
	default:
		return "UnknownState"
	}
}

func (k StateKind) valid() bool {
	return k == ValueStateKind || k == ListStateKind
}

// Request is one decoded worker request. The set of implementations is closed:
// SetHandleState, RegisterState, SetGroupingKey, RemoveGroupingKey,
// ValueStateCall and ListStateCall.
type Request interface {
	// Dispatch invokes the Handler method matching the request.
	Dispatch(ctx context.Context, handler Handler) (*Response, error)
	// CallName is a stable label for the request, used in logs and metrics.
	CallName() string

	isRequest()
}

// Handler executes requests. Every request variant maps to exactly one method,
// so a new variant cannot be added without every Handler implementing it.
//
// A returned error is fatal to the connection. Per-request failures are
// reported through a failed Response with a nil error.
type Handler interface {
	SetHandleState(ctx context.Context, state HandleState) (*Response, error)
	RegisterState(ctx context.Context, kind StateKind, name, schema string) (*Response, error)
	SetGroupingKey(ctx context.Context, key []byte) (*Response, error)
	RemoveGroupingKey(ctx context.Context) (*Response, error)
	ValueStateHandler
	ListStateHandler
}

// ValueStateHandler executes value state operations against a registered state name.
type ValueStateHandler interface {
	ValueExists(ctx context.Context, name string) (*Response, error)
	ValueGet(ctx context.Context, name string) (*Response, error)
	ValueUpdate(ctx context.Context, name string, value []byte) (*Response, error)
	ValueClear(ctx context.Context, name string) (*Response, error)
}

// ListStateHandler executes list state operations against a registered state name.
type ListStateHandler interface {
	ListExists(ctx context.Context, name string) (*Response, error)
	ListGet(ctx context.Context, name string) (*Response, error)
	ListPut(ctx context.Context, name string, values [][]byte) (*Response, error)
	ListAppendValue(ctx context.Context, name string, value []byte) (*Response, error)
	ListAppendList(ctx context.Context, name string, values [][]byte) (*Response, error)
	ListClear(ctx context.Context, name string) (*Response, error)
}

// SetHandleState asks for a lifecycle transition of the processor handle.
type SetHandleState struct {
	State HandleState
}

// RegisterState gets or creates a state variable. Schema is opaque to the server
// and only takes part in the idempotence check.
type RegisterState struct {
	Kind   StateKind
	Name   string
	Schema string
}

// SetGroupingKey makes Key the grouping key of subsequent state operations.
type SetGroupingKey struct {
	Key []byte
}

// RemoveGroupingKey clears the active grouping key.
type RemoveGroupingKey struct{}

// ValueStateCall runs Op against the value state registered as Name.
type ValueStateCall struct {
	Name string
	Op   ValueOp
}

// ListStateCall runs Op against the list state registered as Name.
type ListStateCall struct {
	Name string
	Op   ListOp
}

// ValueOp is a value state operation: ValueExists, ValueGet, ValueUpdate or ValueClear.
type ValueOp interface {
	apply(ctx context.Context, name string, handler ValueStateHandler) (*Response, error)
	opName() string
}

// ListOp is a list state operation: ListExists, ListGet, ListPut, ListAppendValue,
// ListAppendList or ListClear.
type ListOp interface {
	apply(ctx context.Context, name string, handler ListStateHandler) (*Response, error)
	opName() string
}

// ValueExists reports whether the value is set for the active grouping key.
type ValueExists struct{}

// ValueGet reads the value for the active grouping key.
type ValueGet struct{}

// ValueUpdate overwrites the value for the active grouping key.
type ValueUpdate struct {
	Value []byte
}

// ValueClear removes the value for the active grouping key.
type ValueClear struct{}

// ListExists reports whether the list is non-empty for the active grouping key.
type ListExists struct{}

// ListGet reads the whole list for the active grouping key.
type ListGet struct{}

// ListPut replaces the list for the active grouping key.
type ListPut struct {
	Values [][]byte
}

// ListAppendValue appends one value to the list for the active grouping key.
type ListAppendValue struct {
	Value []byte
}

// ListAppendList appends values to the list for the active grouping key.
type ListAppendList struct {
	Values [][]byte
}

// ListClear removes the list for the active grouping key.
type ListClear struct{}

var (
	_ Request = (*SetHandleState)(nil)
	_ Request = (*RegisterState)(nil)
	_ Request = (*SetGroupingKey)(nil)
	_ Request = (*RemoveGroupingKey)(nil)
	_ Request = (*ValueStateCall)(nil)
	_ Request = (*ListStateCall)(nil)
)

func (x *SetHandleState) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return handler.SetHandleState(ctx, x.State)
}

func (x *RegisterState) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return handler.RegisterState(ctx, x.Kind, x.Name, x.Schema)
}

func (x *SetGroupingKey) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return handler.SetGroupingKey(ctx, x.Key)
}

func (x *RemoveGroupingKey) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return handler.RemoveGroupingKey(ctx)
}

func (x *ValueStateCall) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return x.Op.apply(ctx, x.Name, handler)
}

func (x *ListStateCall) Dispatch(ctx context.Context, handler Handler) (*Response, error) {
	return x.Op.apply(ctx, x.Name, handler)
}

func (x *SetHandleState) CallName() string    { return "handle_state" }
func (x *RegisterState) CallName() string     { return "register_state" }
func (x *SetGroupingKey) CallName() string    { return "grouping_key.set" }
func (x *RemoveGroupingKey) CallName() string { return "grouping_key.remove" }
func (x *ValueStateCall) CallName() string    { return "value_state." + x.Op.opName() }
func (x *ListStateCall) CallName() string     { return "list_state." + x.Op.opName() }

func (*SetHandleState) isRequest()    {}
func (*RegisterState) isRequest()     {}
func (*SetGroupingKey) isRequest()    {}
func (*RemoveGroupingKey) isRequest() {}
func (*ValueStateCall) isRequest()    {}
func (*ListStateCall) isRequest()     {}

func (ValueExists) apply(ctx context.Context, name string, h ValueStateHandler) (*Response, error) {
	return h.ValueExists(ctx, name)
}

func (ValueGet) apply(ctx context.Context, name string, h ValueStateHandler) (*Response, error) {
	return h.ValueGet(ctx, name)
}

func (x ValueUpdate) apply(ctx context.Context, name string, h ValueStateHandler) (*Response, error) {
	return h.ValueUpdate(ctx, name, x.Value)
}

func (ValueClear) apply(ctx context.Context, name string, h ValueStateHandler) (*Response, error) {
	return h.ValueClear(ctx, name)
}

func (ListExists) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListExists(ctx, name)
}

func (ListGet) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListGet(ctx, name)
}

func (x ListPut) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListPut(ctx, name, x.Values)
}

func (x ListAppendValue) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListAppendValue(ctx, name, x.Value)
}

func (x ListAppendList) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListAppendList(ctx, name, x.Values)
}

func (ListClear) apply(ctx context.Context, name string, h ListStateHandler) (*Response, error) {
	return h.ListClear(ctx, name)
}

func (ValueExists) opName() string     { return "exists" }
func (ValueGet) opName() string        { return "get" }
func (ValueUpdate) opName() string     { return "update" }
func (ValueClear) opName() string      { return "clear" }
func (ListExists) opName() string      { return "exists" }
func (ListGet) opName() string         { return "get" }
func (ListPut) opName() string         { return "put" }
func (ListAppendValue) opName() string { return "append_value" }
func (ListAppendList) opName() string  { return "append_list" }
func (ListClear) opName() string       { return "clear" }
