package password

import (
	"strings"

	"github.com/google/uuid"
)

const (
	saltPrefix     = "fakeSalt"
	saltRandomSize = 20

	// MinLength is the shortest password accepted for new credentials.
	MinLength = 6
)

// NewSalt returns a fresh salt for FakeHash.
func NewSalt() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return saltPrefix + raw[:saltRandomSize]
}

// FakeHash encodes password and salt in plain text.
func FakeHash(password, salt string) string {
	return "fakeHash:salt=" + salt + ":password=" + password
}

// Weak reports whether password is too short to be stored.
func Weak(password string) bool {
	return len(password) < MinLength
}
