// Package server implements the optional HTTP control panel started by
// `sitemirror serve`.
//
// Endpoints:
//   - GET  /                 single-page UI
//   - POST /api/clone        start a job
//   - GET  /api/status/:id   job state and live progress
//   - GET  /api/jobs         every job, newest first
//   - POST /api/cancel/:id   request a stop (400 when the job is not running)
//   - GET  /metrics          Prometheus metrics
//   - GET  /healthz          liveness
//
// Routing uses gin. Jobs run in goroutines owned by JobManager; cancelling
// sets the session stop flag so the pages crawled so far are still saved.
package server
