// Package main implements gateway-report, a CLI that summarizes the
// gateway's audit log: total traffic, error rate, mean latency, and
// per-endpoint aggregates, busiest endpoints first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sania-talib/api-gateway-project/analytics"
	"github.com/sania-talib/api-gateway-project/config"
	"github.com/sania-talib/api-gateway-project/store"
)

const appName = "gateway-report"

func main() {
	dsn := flag.String("dsn", getEnv("GATEWAY_STORE_DSN", config.DefaultStoreDSN),
		"Store DSN (env: GATEWAY_STORE_DSN)")
	authToken := flag.String("auth-token", getEnv("GATEWAY_STORE_AUTH_TOKEN", ""),
		"Auth token for remote libsql DSNs (env: GATEWAY_STORE_AUTH_TOKEN)")
	format := flag.String("format", "table", "Output format: table, json")
	timeout := flag.Duration("timeout", 30*time.Second, "Query timeout")
	flag.Parse()

	if err := run(*dsn, *authToken, *format, *timeout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run(dsn, authToken, format string, timeout time.Duration) error {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	st, err := store.Open(ctx, config.StoreConfig{
		Driver:    config.DriverLibSQL,
		DSN:       dsn,
		AuthToken: authToken,
	}, nil)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	report, err := analytics.NewReporter(st).Run(ctx)
	if err != nil {
		return err
	}

	out, err := render(report, format)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// render produces the report in the requested format.
func render(report *analytics.Report, format string) (string, error) {
	if format == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return renderTable(report), nil
}

// renderTable renders per-endpoint rows with the overall totals in the
// footer.
func renderTable(report *analytics.Report) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("API Gateway Traffic Report")
	t.AppendHeader(table.Row{"Endpoint", "Method", "Calls", "Avg Latency", "Errors"})

	for _, ep := range report.Endpoints {
		t.AppendRow(table.Row{
			ep.Endpoint,
			ep.Method,
			ep.TotalCalls,
			fmt.Sprintf("%.1f ms", ep.AvgLatencyMs),
			ep.ErrorCount,
		})
	}

	t.AppendFooter(table.Row{
		"total",
		"",
		report.TotalRequests,
		fmt.Sprintf("%.1f ms", report.AvgLatencyMs),
		fmt.Sprintf("%d (%.1f%%)", report.TotalErrors, report.ErrorRatePct),
	})

	return t.Render()
}

// getEnv reads an environment variable with a fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
