// Package server provides the HTTP server for the PriceWatch dashboard and UI API.
//
// This package is internal to PriceWatch and handles all HTTP concerns:
//
//   - Pages: serves the embedded dashboard and settings pages at "/" and "/settings"
//   - UI API: JSON routes under "/ui" for models, price trends, job sessions
//     and notification toggles
//   - Server-Sent Events: real-time session updates at "/ui/sse"
//
// Price tracker operations are reached through the [Backend] interface, so
// that the package does not depend on the pricewatch types. Backend errors
// wrap one of the sentinel errors to select the HTTP status code.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
