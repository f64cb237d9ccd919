// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scans and /v1/scans/stop to start and stop the single scan.
//   - GET /v1/scans/status and the /v1/scans/stream websocket for live progress.
//   - GET /v1/scans, /v1/scans/{id} and /v1/scans/{id}/summary for history.
//   - GET /v1/mounts to pick a volume to scan.
package api
