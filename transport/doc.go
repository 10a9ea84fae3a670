// Package transport serves the gateway's public HTTP surface.
//
// # Overview
//
// Server turns wire requests into gateway.Request values and pipeline
// responses back into JSON. Routing is a thin prefix match: everything
// under /api/ belongs to the pipeline, with the first path segment after
// the prefix naming the backing service. The transport rejects only what
// the pipeline cannot express — an unsupported method, an oversized or
// undecodable body — and leaves every admission decision (auth, rate
// limits, circuit state, unknown services) to the processor so that each
// of those produces its audit record.
//
// Every response carries an X-Request-ID header, either propagated from
// the client or generated here, and the same ID travels through the
// pipeline's structured logs.
//
// # Endpoints
//
//	/api/{service}/...  the request pipeline (GET, POST, PUT, DELETE, PATCH)
//	/health             aggregated component health as JSON
//	/                   service banner
//
// Prometheus metrics live on the separate metrics listener (see the
// metric package), keeping the public surface free of operational
// detail.
package transport
