// Package server provides the HTTP server for SMSHog.
//
// This package is internal to SMSHog and handles all HTTP concerns:
//
//   - Protocol: the emulated SNS endpoint at "/" (POST and GET) and "/sms"
//   - REST API: JSON endpoints under "/api/v1" used by the companion UI
//   - Server-Sent Events: live store changes at "/api/v1/events"
//   - Operations: "/health" and, when enabled, "/metrics"
//
// Every response carries CORS headers for the configured origins, and
// preflight OPTIONS requests are answered directly with 204.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the smshog package should not need to interact with this package
// directly. The server is started automatically by [smshog.SMSHog.Start].
package server
