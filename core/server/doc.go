// Package server holds the HTTP server configuration.
//
// The main application entry point handles the server startup; this package
// defines the settings it reads: the HTTP port, the API key, the request body
// limit and the graceful shutdown window.
package server
