// Package http implements the HTTP handlers of the analyzer web service.
// Handlers stay thin: they parse and validate requests, call the services
// layer and render the result. Business logic lives in services.
//
// # Endpoints
//
//	POST /api/v1/runs              submit a run, 202 with its id
//	GET  /api/v1/runs              list submitted runs (?status=, ?limit=)
//	GET  /api/v1/runs/{id}         run record with live step progress
//	GET  /api/v1/runs/{id}/summary category summary (?format=json|csv)
//	GET  /api/health[/ready|/live] health probes
//	GET  /api/version              build information
//	GET  /api/metrics/websocket    websocket hub counters
//	GET  /metrics                  Prometheus scrape endpoint
//
// # Error Handling
//
// Errors are rendered through errors.ErrorHandler as
//
//	{"success": false, "error": {"status_code": 404, "error_code": "RUN_NOT_FOUND", "message": "..."}}
//
// Pipeline errors (schema, parse, sequence) map to 422, validation to 400.
package http
