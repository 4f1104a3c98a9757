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

package validation

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

type conditionValidator struct {
	ok  bool
	err error
}

// NewConditionValidator returns a Validator reporting err when ok is false.
// err is returned as is so callers can match it with errors.Is.
func NewConditionValidator(ok bool, err error) Validator {
	return conditionValidator{ok: ok, err: err}
}

func (v conditionValidator) Validate() error {
	if !v.ok {
		return v.err
	}
	return nil
}

type oneOfValidator struct {
	field   string
	value   string
	allowed []string
}

// NewOneOfValidator checks that value is one of allowed.
func NewOneOfValidator(field, value string, allowed ...string) Validator {
	return oneOfValidator{field: field, value: value, allowed: allowed}
}

func (v oneOfValidator) Validate() error {
	if slices.Contains(v.allowed, v.value) {
		return nil
	}
	return fmt.Errorf("the [%s] must be one of %s, got %q", v.field, strings.Join(v.allowed, "|"), v.value)
}

// ListenAddressValidator checks a host:port address a server can listen on.
// The host may be empty to listen on every interface and the port may be zero
// to let the system pick one.
type ListenAddressValidator struct {
	address string
}

var _ Validator = (*ListenAddressValidator)(nil)

// NewListenAddressValidator creates an instance of ListenAddressValidator
func NewListenAddressValidator(address string) *ListenAddressValidator {
	return &ListenAddressValidator{address: address}
}

// Validate implements validation.Validator.
func (a *ListenAddressValidator) Validate() error {
	_, port, err := net.SplitHostPort(strings.TrimSpace(a.address))
	if err != nil {
		return fmt.Errorf("invalid listen address=(%s): %w", a.address, err)
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid listen address=(%s): %w", a.address, err)
	}
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen address=(%s): port out of range", a.address)
	}
	return nil
}
