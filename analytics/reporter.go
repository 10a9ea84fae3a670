// Package analytics builds traffic reports from logged gateway requests.
package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sania-talib/api-gateway-project/store"
)

// Source is the slice of the store the reporter reads.
type Source interface {
	CountRequests(ctx context.Context) (int64, error)
	CountErrors(ctx context.Context) (int64, error)
	AvgLatencyMs(ctx context.Context) (float64, error)
	EndpointStats(ctx context.Context) ([]store.EndpointStat, error)
}

// Report aggregates gateway traffic.
type Report struct {
	TotalRequests int64                `json:"total_requests"`
	TotalErrors   int64                `json:"total_errors"`
	ErrorRatePct  float64              `json:"error_rate_pct"`
	AvgLatencyMs  float64              `json:"avg_latency_ms"`
	Endpoints     []store.EndpointStat `json:"endpoints"`
}

// Reporter runs the aggregate queries behind a Report.
type Reporter struct {
	src Source
}

// NewReporter builds a reporter over the given source.
func NewReporter(src Source) *Reporter {
	return &Reporter{src: src}
}

// Run executes the aggregate queries in parallel and assembles the
// report. The first query error cancels the rest.
func (r *Reporter) Run(ctx context.Context) (*Report, error) {
	var report Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.src.CountRequests(gctx)
		report.TotalRequests = n
		return err
	})
	g.Go(func() error {
		n, err := r.src.CountErrors(gctx)
		report.TotalErrors = n
		return err
	})
	g.Go(func() error {
		avg, err := r.src.AvgLatencyMs(gctx)
		report.AvgLatencyMs = avg
		return err
	})
	g.Go(func() error {
		stats, err := r.src.EndpointStats(gctx)
		report.Endpoints = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if report.TotalRequests > 0 {
		report.ErrorRatePct = float64(report.TotalErrors) / float64(report.TotalRequests) * 100
	}
	return &report, nil
}
