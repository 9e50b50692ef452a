// Package middleware holds the HTTP middleware shared by the emulator's
// transports.
//
// # Middleware
//
//   - [Caller] resolves the Authorization header into a [CallerInfo].
//   - [RequestID] tags each request with an identifier that ends up in the
//     engine's events.
//   - [BaseURL] records the externally visible origin so generated OOB links
//     point back at this server.
//   - [Logging] writes one debug line per request.
//
// This package translates HTTP semantics into context values. It never calls
// the engine and makes no decision beyond classifying the caller.
package middleware
