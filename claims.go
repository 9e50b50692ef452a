package authemu

import (
	"bytes"
	"encoding/json"
)

const maxCustomClaimsLength = 1000

// reservedClaims may not be set through custom attributes or custom token
// claims.
var reservedClaims = []string{
	"iss", "aud", "sub", "iat", "exp", "nbf", "jti", "nonce", "azp", "acr",
	"amr", "cnf", "auth_time", "firebase", "at_hash", "c_hash",
}

// parseCustomAttributes validates a customAttributes JSON blob and returns
// the decoded object. An empty string decodes to nil.
func parseCustomAttributes(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) > maxCustomClaimsLength {
		return nil, badRequest(CodeClaimsTooLarge)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var claims map[string]any
	if err := dec.Decode(&claims); err != nil || claims == nil {
		return nil, badRequest(CodeInvalidClaims)
	}
	if err := checkReservedClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func checkReservedClaims(claims map[string]any) error {
	for _, key := range reservedClaims {
		if _, ok := claims[key]; ok {
			return badRequestDetail(CodeForbiddenClaim, key)
		}
	}
	return nil
}

// importClaimsMessage renders a claims error the way batchCreate reports it
// per user.
func importClaimsMessage(err error) string {
	switch CodeOf(err) {
	case CodeClaimsTooLarge:
		return "Custom claims provided are too large."
	case CodeForbiddenClaim:
		return "Custom claims provided include a reserved claim."
	default:
		return "Invalid custom claims provided."
	}
}
