// Package internal groups helpers that are private to the emulator.
//
// # Sub-packages
//
//   - ident: random identifiers and opaque tokens
//   - validate: email, phone number and test phone number validation
//
// # What this package must NOT do
//
//   - Export types that appear in the public authemu API.
//   - Be imported by any package outside the authemu module.
package internal
