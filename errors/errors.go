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

package errors

import "errors"

var (
	// ErrMalformedMessage is returned when a frame payload cannot be decoded into a
	// request or a response: truncated bytes, unknown field tags, wrong wire types or
	// a oneof without exactly one member.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnsupportedProtocolVersion is returned when a frame header carries a protocol
	// version the server does not speak.
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")

	// ErrFrameTooLarge is returned when a frame declares a payload bigger than the
	// configured maximum frame size.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrTransportClosed is returned when the peer disconnected or the local stream failed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrEndOfStream is returned by the frame reader when the peer sent the end-of-stream
	// marker. It is a clean termination, not a failure.
	ErrEndOfStream = errors.New("end of stream")

	// ErrInvalidHandleState is returned when a lifecycle or registration request is issued
	// while the processor handle is in a state that forbids it.
	ErrInvalidHandleState = errors.New("invalid handle state")

	// ErrUnknownState is returned when a value or list operation targets a state variable
	// that was never registered on the connection.
	ErrUnknownState = errors.New("state variable is not registered")

	// ErrStateConflict is returned when a state variable is registered again under the same
	// name with a different kind or schema, or used as a kind it was not registered with.
	ErrStateConflict = errors.New("state variable already registered with a different definition")

	// ErrInvalidStateName is returned when a state variable name is empty.
	ErrInvalidStateName = errors.New("state variable name is required")

	// ErrMissingGroupingKey is returned when a value or list operation is issued while no
	// grouping key is active.
	ErrMissingGroupingKey = errors.New("grouping key is not set")

	// ErrStoreFinalized is returned when a state store session is used after it was
	// committed or aborted.
	ErrStoreFinalized = errors.New("state store session is already committed or aborted")

	// ErrStoreClosed is returned when a state store backend is used after Close.
	ErrStoreClosed = errors.New("state store backend is closed")

	// ErrBackendRequired is returned when a partition is configured without a state store backend.
	ErrBackendRequired = errors.New("state store backend is required")

	// ErrInvalidPartition is returned when a partition id is negative.
	ErrInvalidPartition = errors.New("invalid partition id")

	// ErrListenerRequired is returned when serving is started without a listener.
	ErrListenerRequired = errors.New("listener is required")

	// ErrHandleRequired is returned when serving is started without a processor handle.
	ErrHandleRequired = errors.New("processor handle is required")

	// ErrAcceptTimeout is returned when the worker did not connect within the accept timeout.
	ErrAcceptTimeout = errors.New("worker did not connect in time")
)

// IsFatal reports whether err must tear the connection down.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrUnsupportedProtocolVersion) ||
		errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrTransportClosed)
}

// IsRecoverable reports whether err is a per-request error that is reported to the
// worker as a failed response while the connection stays open.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidHandleState) ||
		errors.Is(err, ErrUnknownState) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrInvalidStateName) ||
		errors.Is(err, ErrMissingGroupingKey)
}
