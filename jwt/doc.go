// Package jwt encodes and decodes the unsigned JWT-shaped credentials used
// by the emulator: ID tokens, session cookies, custom tokens and fake
// identity-provider tokens. Signatures are never produced or verified.
package jwt
