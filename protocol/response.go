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

// Status is the outcome of a request.
type Status int32

const (
	// StatusSuccess means the request was executed.
	StatusSuccess Status = 0
	// StatusFailure means the request was rejected. The reason stays on the host.
	StatusFailure Status = 1
)

// Response is the reply to exactly one Request.
//
// Present and Value are only set by value reads and exists checks; Values only by list reads.
type Response struct {
	Status  Status
	Present bool
	Value   []byte
	Values  [][]byte
}

// Success returns a successful response without payload.
func Success() *Response {
	return &Response{Status: StatusSuccess}
}

// Failure returns a failed response.
func Failure() *Response {
	return &Response{Status: StatusFailure}
}

// Found returns a successful read response carrying value.
func Found(value []byte) *Response {
	return &Response{Status: StatusSuccess, Present: true, Value: value}
}

// NotFound returns a successful read response for an absent value.
func NotFound() *Response {
	return &Response{Status: StatusSuccess}
}

// Exists returns a successful exists response.
func Exists(present bool) *Response {
	return &Response{Status: StatusSuccess, Present: present}
}

// List returns a successful list read response. Present is false for an empty list.
func List(values [][]byte) *Response {
	return &Response{Status: StatusSuccess, Present: len(values) > 0, Values: values}
}

// Succeeded reports whether the response status is StatusSuccess.
func (x *Response) Succeeded() bool {
	return x != nil && x.Status == StatusSuccess
}
