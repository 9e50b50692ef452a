// Package authemu is an in-memory identity emulator: it implements account
// creation, password, phone, custom-token and federated sign-in, multi-factor
// authentication, out-of-band action codes, token issuance and tenant
// management with the same request and response shapes as a production
// identity platform.
//
// Tokens produced by the emulator are unsigned and are never verified. The
// emulator trades security for inspectability: every code it sends is
// delivered to a [notify.Notifier] and can be listed through the emulator
// operations.
//
// # Architecture boundaries
//
// authemu is the public surface. It exposes [Engine], [Builder], [Config],
// typed request and response values, and the [OperationID] dispatch table.
// Namespace storage lives in package state, the token codec in package jwt,
// and password hashing in package password.
//
// # Concurrency
//
// Engine methods are safe for concurrent use. Each operation runs to
// completion while holding the lock of its agent project, which also guards
// every tenant of that project.
package authemu
