// Package server provides the MCP server context, the bearer-token HTTP
// front, and the metrics server for the universal email MCP application.
//
// # Key Components
//
// ServerContext holds the shared dependencies for the MCP server: the
// auth token manager, the encrypted account store, and the IMAP/SMTP
// session factory. Tool handlers receive these through registration
// rather than globals, so tests can swap in fakes.
//
// AuthHTTPServer wraps an MCP server's SSE transport with bearer-token
// authentication:
//   - /health, /healthz, /readyz stay public for probes
//   - /get-token returns the auth token to deployment tooling that
//     presents the internal admin header
//   - /sse and /messages require a valid bearer token
//
// SessionTracker counts distinct authenticated clients for the
// active_sessions metric and expires idle sessions.
//
// MetricsServer serves Prometheus metrics on a dedicated port, isolated
// from application traffic.
package server
