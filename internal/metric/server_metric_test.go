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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewServerMetric(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	serverMetric, err := NewServerMetric(meter)
	require.NoError(t, err)
	assert.NotNil(t, serverMetric)

	ctx := context.Background()
	serverMetric.RecordRequest(ctx, "handle_state", true, time.Millisecond)
	serverMetric.RecordFrame(ctx, DirectionIn, 12)
	serverMetric.RecordConnection(ctx)
	serverMetric.RecordCommit(ctx, OutcomeCommitted)
}

func TestServerMetricRecords(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	serverMetric, err := NewServerMetric(NewProviderFrom(provider).Meter())
	require.NoError(t, err)

	serverMetric.RecordRequest(ctx, "value_state.get", true, 2*time.Millisecond)
	serverMetric.RecordRequest(ctx, "value_state.get", false, time.Millisecond)
	serverMetric.RecordConnection(ctx)
	serverMetric.RecordCommit(ctx, OutcomeAborted)

	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &data))
	require.Len(t, data.ScopeMetrics, 1)

	sums := make(map[string]int64)
	for _, m := range data.ScopeMetrics[0].Metrics {
		if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
			for _, point := range sum.DataPoints {
				sums[m.Name] += point.Value
			}
		}
	}
	assert.EqualValues(t, 2, sums["stateserver_requests_total"])
	assert.EqualValues(t, 1, sums["stateserver_connections_total"])
	assert.EqualValues(t, 1, sums["stateserver_commits_total"])
}

func TestProvider(t *testing.T) {
	assert.NotNil(t, NewProvider().Meter())
}
