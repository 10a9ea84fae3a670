package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sania-talib/api-gateway-project/store"
)

type fakeSource struct {
	requests int64
	errs     int64
	avg      float64
	stats    []store.EndpointStat

	requestsErr error
	statsErr    error
}

func (f *fakeSource) CountRequests(context.Context) (int64, error) {
	return f.requests, f.requestsErr
}

func (f *fakeSource) CountErrors(context.Context) (int64, error) {
	return f.errs, nil
}

func (f *fakeSource) AvgLatencyMs(context.Context) (float64, error) {
	return f.avg, nil
}

func (f *fakeSource) EndpointStats(context.Context) ([]store.EndpointStat, error) {
	return f.stats, f.statsErr
}

func TestReporter_Run(t *testing.T) {
	src := &fakeSource{
		requests: 200,
		errs:     25,
		avg:      117.5,
		stats: []store.EndpointStat{
			{Endpoint: "/api/users/list", Method: "GET", TotalCalls: 150, AvgLatencyMs: 120, ErrorCount: 20},
			{Endpoint: "/api/products/list", Method: "GET", TotalCalls: 50, AvgLatencyMs: 110, ErrorCount: 5},
		},
	}

	report, err := NewReporter(src).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(200), report.TotalRequests)
	assert.Equal(t, int64(25), report.TotalErrors)
	assert.InDelta(t, 12.5, report.ErrorRatePct, 0.001)
	assert.InDelta(t, 117.5, report.AvgLatencyMs, 0.001)
	require.Len(t, report.Endpoints, 2)
	assert.Equal(t, "/api/users/list", report.Endpoints[0].Endpoint)
}

func TestReporter_EmptyStore(t *testing.T) {
	report, err := NewReporter(&fakeSource{}).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.TotalRequests)
	assert.Zero(t, report.ErrorRatePct, "zero requests must not divide by zero")
	assert.Empty(t, report.Endpoints)
}

func TestReporter_QueryErrorPropagates(t *testing.T) {
	src := &fakeSource{statsErr: errors.New("disk I/O error")}

	_, err := NewReporter(src).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
}
