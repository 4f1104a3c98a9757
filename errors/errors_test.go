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

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		fatal       bool
		recoverable bool
	}{
		{name: "malformed", err: ErrMalformedMessage, fatal: true},
		{name: "version", err: ErrUnsupportedProtocolVersion, fatal: true},
		{name: "frame too large", err: ErrFrameTooLarge, fatal: true},
		{name: "transport closed", err: ErrTransportClosed, fatal: true},
		{name: "invalid handle state", err: ErrInvalidHandleState, recoverable: true},
		{name: "unknown state", err: ErrUnknownState, recoverable: true},
		{name: "state conflict", err: ErrStateConflict, recoverable: true},
		{name: "invalid state name", err: ErrInvalidStateName, recoverable: true},
		{name: "missing grouping key", err: ErrMissingGroupingKey, recoverable: true},
		{name: "wrapped", err: fmt.Errorf("value state count: %w", ErrUnknownState), recoverable: true},
		{name: "joined", err: errors.Join(ErrMalformedMessage, errors.New("short tag")), fatal: true},
		{name: "end of stream", err: ErrEndOfStream},
		{name: "store finalized", err: ErrStoreFinalized},
		{name: "nil", err: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fatal, IsFatal(tc.err))
			assert.Equal(t, tc.recoverable, IsRecoverable(tc.err))
		})
	}
}
