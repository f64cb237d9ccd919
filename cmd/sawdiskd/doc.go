// Package main hosts the sawdisk scan service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics, mount listing, scan control, history and a
//     websocket status stream. Requests are validated and normalized by the scan manager before a scan is accepted.
//   - Scan manager: internal/manager holds the single scan slot. A second start while a scan runs is rejected with
//     409; stop is cooperative and the partial record is still finalized.
//   - Walk and classify: the walker feeds a bounded queue that a fixed worker pool (sized per request, clamped to
//     scan.max_threads) drains. Workers classify files by name, extension and a capped content sample. Files are
//     opened read-only and never modified.
//   - Persistence & fanout: finalized records are appended to the history store (SQLite by default, Postgres or
//     memory). Reports are rendered as HTML, JSON or Markdown and written to local disk or GCS; a compact summary
//     is published to Pub/Sub when notify.provider is set. Progress events are batched into log and Prometheus
//     sinks.
//
// Operational notes:
//   - Fragile volumes: scan.files_per_second enables a per-volume read limiter; throttle waits are exported as
//     sawdisk_throttle_delay_seconds.
//   - Shutdown: SIGINT/SIGTERM stops the running scan, waits up to scan.finalize_timeout for it to be finalized,
//     then closes the stores.
//   - Cloud Run: the server listens on PORT when it is set and keeps no state outside the history store.
//
// Quick checklist:
//   - Configure env vars: SAWDISK_SERVER_PORT or PORT, SAWDISK_HISTORY_DRIVER and its DSN/path,
//     SAWDISK_REPORTS_PROVIDER, SAWDISK_NOTIFY_PROVIDER, SAWDISK_AUTH_ENABLED with SAWDISK_AUTH_API_KEY.
//   - Run locally: go run ./cmd/sawdiskd -config sawdisk.yaml (or rely solely on env overrides).
package main
