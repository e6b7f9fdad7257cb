// Package app wires the analyzer web service together and manages its
// lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from eta.yaml and ETA_* environment variables
//  2. Initialize the global logger and OpenTelemetry providers
//  3. Start the websocket hub
//  4. Create the pipeline and health services
//  5. Build the chi router and HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run blocks until SIGINT or SIGTERM. Stop then drains HTTP requests,
// cancels submitted runs and waits for them, closes websocket clients and
// flushes telemetry, all bounded by server.shutdown_timeout.
//
// A background janitor forgets finished runs older than RunRetention.
package app
