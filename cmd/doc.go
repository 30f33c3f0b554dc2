// Package cmd implements the universal-email-mcp command line interface.
//
// The root command dispatches to serve (the MCP server over stdio or SSE),
// account (manage the encrypted account store), token (manage the server
// bearer token) and version.
package cmd
