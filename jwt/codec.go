package jwt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned by Decode for input that is not a three-part JWT
// with JSON header and payload.
var ErrMalformed = errors.New("jwt: malformed token")

// Token is a decoded JWT. Signature is the raw third segment and is never
// checked.
type Token struct {
	Header    map[string]any
	Claims    map[string]any
	Signature string
}

// Encode returns claims as a JWT with alg "none" and an empty signature.
func Encode(claims map[string]any) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims(claims))
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return s, nil
}

// Decode parses raw without verifying its signature or time claims.
func Decode(raw string) (*Token, error) {
	claims := jwt.MapClaims{}
	tok, parts, err := jwt.NewParser(jwt.WithJSONNumber()).ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Token{Header: tok.Header, Claims: claims, Signature: parts[2]}, nil
}

// Algorithm returns the header alg.
func (t *Token) Algorithm() string {
	alg, _ := t.Header["alg"].(string)
	return alg
}

// Signed reports whether the token claims a real signature algorithm.
func (t *Token) Signed() bool {
	alg := t.Algorithm()
	return alg != "" && alg != "none"
}

// StringClaim returns the named claim when it is a string.
func (t *Token) StringClaim(name string) string {
	return StringClaim(t.Claims, name)
}

// Int64Claim returns the named claim when it is numeric.
func (t *Token) Int64Claim(name string) (int64, bool) {
	return Int64Claim(t.Claims, name)
}

// StringClaim returns claims[name] when it is a string.
func StringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// Int64Claim returns claims[name] as an integer. JSON numbers, floats and
// Go integers are accepted.
func Int64Claim(claims map[string]any, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
