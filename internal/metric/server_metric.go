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

package metric

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// frame directions
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// commit outcomes
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
)

// ServerMetric defines the state server instrumentation
type ServerMetric struct {
	// Specifies the total number of requests served, by call and status
	requests metric.Int64Counter
	// Specifies the request processing duration in milliseconds
	requestDuration metric.Float64Histogram
	// Specifies the size of the frames read and written
	frameBytes metric.Int64Histogram
	// Specifies the total number of worker connections accepted
	connections metric.Int64Counter
	// Specifies the total number of store sessions finalized, by outcome
	commits metric.Int64Counter
}

// NewServerMetric creates an instance of ServerMetric
func NewServerMetric(meter metric.Meter) (*ServerMetric, error) {
	serverMetric := new(ServerMetric)
	var err error

	if serverMetric.requests, err = meter.Int64Counter(
		"stateserver_requests_total",
		metric.WithDescription("Total number of requests served"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requests instrument, %w", err)
	}

	if serverMetric.requestDuration, err = meter.Float64Histogram(
		"stateserver_request_duration",
		metric.WithDescription("The latency of request processing in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create requestDuration instrument, %w", err)
	}

	if serverMetric.frameBytes, err = meter.Int64Histogram(
		"stateserver_frame_bytes",
		metric.WithDescription("The payload size of frames read and written"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("failed to create frameBytes instrument, %w", err)
	}

	if serverMetric.connections, err = meter.Int64Counter(
		"stateserver_connections_total",
		metric.WithDescription("Total number of worker connections accepted"),
	); err != nil {
		return nil, fmt.Errorf("failed to create connections instrument, %w", err)
	}

	if serverMetric.commits, err = meter.Int64Counter(
		"stateserver_commits_total",
		metric.WithDescription("Total number of state store sessions finalized"),
	); err != nil {
		return nil, fmt.Errorf("failed to create commits instrument, %w", err)
	}

	return serverMetric, nil
}

// RecordRequest records one served request.
func (x *ServerMetric) RecordRequest(ctx context.Context, call string, succeeded bool, elapsed time.Duration) {
	status := "success"
	if !succeeded {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("call", call), attribute.String("status", status))
	x.requests.Add(ctx, 1, attrs)
	x.requestDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordFrame records the payload size of one frame.
func (x *ServerMetric) RecordFrame(ctx context.Context, direction string, size int) {
	x.frameBytes.Record(ctx, int64(size), metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordConnection records one accepted worker connection.
func (x *ServerMetric) RecordConnection(ctx context.Context) {
	x.connections.Add(ctx, 1)
}

// RecordCommit records how a store session ended.
func (x *ServerMetric) RecordCommit(ctx context.Context, outcome string) {
	x.commits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
