package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Algorithm names the hash of an imported password.
type Algorithm string

const (
	AlgorithmFake           Algorithm = ""
	AlgorithmBcrypt         Algorithm = "BCRYPT"
	AlgorithmStandardScrypt Algorithm = "STANDARD_SCRYPT"
	AlgorithmPBKDF2SHA256   Algorithm = "PBKDF2_SHA256"
	AlgorithmHMACSHA256     Algorithm = "HMAC_SHA256"
	AlgorithmArgon2         Algorithm = "ARGON2"
)

var (
	ErrUnsupportedAlgorithm = errors.New("password: unsupported hash algorithm")
	ErrInvalidConfig        = errors.New("password: invalid hash configuration")
)

// Config describes how an imported hash was produced.
type Config struct {
	Algorithm        Algorithm
	SignerKey        []byte
	Rounds           int
	MemoryCost       int
	Parallelization  int
	BlockSize        int
	DerivedKeyLength int
}

// ParseAlgorithm maps an import request's hashAlgorithm to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToUpper(name)); a {
	case AlgorithmFake, AlgorithmBcrypt, AlgorithmStandardScrypt, AlgorithmPBKDF2SHA256, AlgorithmHMACSHA256, AlgorithmArgon2:
		return a, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, name)
}

// Validate checks that cfg carries the parameters its algorithm needs.
func (cfg Config) Validate() error {
	switch cfg.Algorithm {
	case AlgorithmFake, AlgorithmBcrypt:
		return nil
	case AlgorithmHMACSHA256:
		if len(cfg.SignerKey) == 0 {
			return fmt.Errorf("%w: HMAC_SHA256 requires signerKey", ErrInvalidConfig)
		}
	case AlgorithmPBKDF2SHA256:
		if cfg.Rounds <= 0 {
			return fmt.Errorf("%w: PBKDF2_SHA256 requires rounds", ErrInvalidConfig)
		}
	case AlgorithmStandardScrypt:
		if cfg.MemoryCost <= 0 || cfg.BlockSize <= 0 || cfg.Parallelization <= 0 {
			return fmt.Errorf("%w: STANDARD_SCRYPT requires memoryCost, blockSize and parallelization", ErrInvalidConfig)
		}
	case AlgorithmArgon2:
		if cfg.Rounds <= 0 || cfg.MemoryCost <= 0 {
			return fmt.Errorf("%w: ARGON2 requires rounds and memoryCost", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	return nil
}

// Verify reports whether password matches hash and salt. A nil cfg means
// the fake hash.
func Verify(password, hash, salt string, cfg *Config) (bool, error) {
	if cfg == nil || cfg.Algorithm == AlgorithmFake {
		return hash == FakeHash(password, salt), nil
	}

	want, err := decode(hash)
	if err != nil {
		return false, fmt.Errorf("decode password hash: %w", err)
	}
	saltBytes, err := decode(salt)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}

	var got []byte
	switch cfg.Algorithm {
	case AlgorithmBcrypt:
		return bcrypt.CompareHashAndPassword(want, []byte(password)) == nil, nil
	case AlgorithmHMACSHA256:
		mac := hmac.New(sha256.New, cfg.SignerKey)
		mac.Write([]byte(password))
		mac.Write(saltBytes)
		got = mac.Sum(nil)
	case AlgorithmPBKDF2SHA256:
		got = pbkdf2.Key([]byte(password), saltBytes, cfg.Rounds, len(want), sha256.New)
	case AlgorithmStandardScrypt:
		got, err = scrypt.Key([]byte(password), saltBytes, cfg.MemoryCost, cfg.BlockSize, cfg.Parallelization, keyLength(cfg, want))
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	case AlgorithmArgon2:
		parallelism := cfg.Parallelization
		if parallelism <= 0 {
			parallelism = 1
		}
		got = argon2.IDKey([]byte(password), saltBytes, uint32(cfg.Rounds), uint32(cfg.MemoryCost), uint8(parallelism), uint32(keyLength(cfg, want)))
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func keyLength(cfg *Config, want []byte) int {
	if cfg.DerivedKeyLength > 0 {
		return cfg.DerivedKeyLength
	}
	return len(want)
}

// decode accepts standard and URL-safe base64, padded or not.
func decode(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
