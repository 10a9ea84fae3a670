package store

import (
	"context"

	"github.com/sania-talib/api-gateway-project/audit"
	"github.com/sania-talib/api-gateway-project/errors"
)

// Write persists one audit record. Implements audit.Sink.
func (s *Store) Write(ctx context.Context, rec audit.Record) error {
	isError := 0
	if rec.IsError {
		isError = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO api_logs (timestamp, endpoint, http_method, status_code, response_time_ms, is_error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Timestamp.UTC().Unix(), rec.Endpoint, rec.Method, rec.Status, rec.ResponseTimeMs, isError)
	if err != nil {
		return errors.WrapTransient(err, "store.Store", "Write", "insert audit record")
	}
	return nil
}

// EndpointStat is one row of per-endpoint traffic aggregates.
type EndpointStat struct {
	Endpoint     string  `json:"endpoint"`
	Method       string  `json:"http_method"`
	TotalCalls   int64   `json:"total_calls"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorCount   int64   `json:"error_count"`
}

// CountRequests returns the total number of logged requests.
func (s *Store) CountRequests(ctx context.Context) (int64, error) {
	var n int64
	row := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_logs`)
	if err := row.Scan(&n); err != nil {
		return 0, errors.WrapTransient(err, "store.Store", "CountRequests", "count requests")
	}
	return n, nil
}

// CountErrors returns the number of logged requests that failed.
func (s *Store) CountErrors(ctx context.Context) (int64, error) {
	var n int64
	row := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_logs WHERE is_error = 1`)
	if err := row.Scan(&n); err != nil {
		return 0, errors.WrapTransient(err, "store.Store", "CountErrors", "count errors")
	}
	return n, nil
}

// AvgLatencyMs returns the mean response time of successful requests,
// or 0 when none have been logged.
func (s *Store) AvgLatencyMs(ctx context.Context) (float64, error) {
	var avg float64
	row := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(response_time_ms), 0) FROM api_logs WHERE is_error = 0`)
	if err := row.Scan(&avg); err != nil {
		return 0, errors.WrapTransient(err, "store.Store", "AvgLatencyMs", "average latency")
	}
	return avg, nil
}

// EndpointStats aggregates traffic per endpoint and method, busiest
// first.
func (s *Store) EndpointStats(ctx context.Context) ([]EndpointStat, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT
			endpoint,
			http_method,
			COUNT(*) AS total_calls,
			COALESCE(AVG(response_time_ms), 0) AS avg_latency_ms,
			SUM(CASE WHEN is_error = 1 THEN 1 ELSE 0 END) AS error_count
		FROM api_logs
		GROUP BY endpoint, http_method
		ORDER BY total_calls DESC
	`)
	if err != nil {
		return nil, errors.WrapTransient(err, "store.Store", "EndpointStats", "aggregate endpoints")
	}
	defer rows.Close() //nolint:errcheck // best-effort cleanup on SQL rows

	var stats []EndpointStat
	for rows.Next() {
		var st EndpointStat
		if err := rows.Scan(&st.Endpoint, &st.Method, &st.TotalCalls, &st.AvgLatencyMs, &st.ErrorCount); err != nil {
			return nil, errors.WrapTransient(err, "store.Store", "EndpointStats", "scan endpoint row")
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "store.Store", "EndpointStats", "aggregate endpoints")
	}
	return stats, nil
}
