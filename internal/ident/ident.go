// Package ident generates the random identifiers used by the emulator:
// local ids, tenant suffixes, MFA enrollment ids, SMS codes and opaque tokens.
package ident

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/segmentio/ksuid"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"

	// MaxAttempts bounds Unique before it gives up.
	MaxAttempts = 10
)

// ErrExhausted is returned by Unique when every attempt collided.
var ErrExhausted = errors.New("ident: unique id generation exhausted")

// Random is the default generator. It reads crypto/rand for fixed-length
// ids and codes and uses ksuid for opaque tokens.
type Random struct{}

// ID returns an alphanumeric id of the given length.
func (Random) ID(length int) string {
	return randomFrom(alphanumeric, length)
}

// Digits returns a numeric code of the given length.
func (Random) Digits(length int) string {
	return randomFrom(digits, length)
}

// Token returns an opaque, URL-safe token.
func (Random) Token() string {
	return ksuid.New().String() + randomFrom(alphanumeric, 16)
}

func randomFrom(alphabet string, length int) string {
	if length <= 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand never fails on supported platforms.
			panic("ident: crypto/rand: " + err.Error())
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String()
}

// Unique calls next until it produces a value that taken rejects, at most
// MaxAttempts times.
func Unique(next func() string, taken func(string) bool) (string, error) {
	for i := 0; i < MaxAttempts; i++ {
		id := next()
		if !taken(id) {
			return id, nil
		}
	}
	return "", ErrExhausted
}
