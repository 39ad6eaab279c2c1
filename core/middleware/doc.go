// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation (X-API-Key) protecting every route except the
//     configured skip list.
//   - rayid: assigns a unique Request ID (RayID) to every incoming request,
//     stores it in the context locals and echoes it in the X-Ray-ID header.
//
// Both are registered globally in the start command.
package middleware
