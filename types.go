package authemu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/MrEthical07/authemu/state"
)

// Target routes an operation to a namespace and carries the caller's
// authorization.
type Target struct {
	// ProjectID selects the agent project. Empty means Config.DefaultProjectID.
	ProjectID string
	// TenantID selects a tenant of the project. Empty means the agent itself.
	TenantID string
	// Privileged marks callers authenticated with service credentials.
	Privileged bool
}

// EmailValidator validates and canonicalizes email addresses.
type EmailValidator interface {
	Valid(email string) bool
	Canonicalize(email string) string
}

// PhoneValidator validates phone numbers.
type PhoneValidator interface {
	Valid(phoneNumber string) bool
}

// Tokens is the credential set returned by token-issuing operations. It is
// embedded in their responses.
type Tokens struct {
	IDToken      string `json:"idToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    string `json:"expiresIn,omitempty"`
}

// MfaPending replaces Tokens when a sign-in needs a second factor.
type MfaPending struct {
	MfaPendingCredential string          `json:"mfaPendingCredential"`
	MfaInfo              []MfaEnrollment `json:"mfaInfo"`
}

// MfaEnrollment is the public view of a second factor. PhoneInfo is
// obfuscated when it is returned as part of an MFA challenge.
type MfaEnrollment struct {
	MfaEnrollmentID string `json:"mfaEnrollmentId"`
	DisplayName     string `json:"displayName,omitempty"`
	PhoneInfo       string `json:"phoneInfo,omitempty"`
	EnrolledAt      string `json:"enrolledAt,omitempty"`
}

// Int64 decodes from either a JSON number or a quoted decimal string, the
// two encodings clients use for int64 fields.
type Int64 int64

func (n *Int64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int64 %q", s)
		}
		*n = Int64(v)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	i, err := v.Int64()
	if err != nil {
		return fmt.Errorf("invalid int64 %s", v)
	}
	*n = Int64(i)
	return nil
}

func (n Int64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(n), 10))
}

func toPublicEnrollments(in []state.MfaEnrollment, obfuscate bool) []MfaEnrollment {
	if len(in) == 0 {
		return nil
	}
	out := make([]MfaEnrollment, 0, len(in))
	for _, e := range in {
		phone := e.PhoneInfo
		if obfuscate {
			phone = obfuscatePhone(phone)
		}
		out = append(out, MfaEnrollment{
			MfaEnrollmentID: e.MfaEnrollmentID,
			DisplayName:     e.DisplayName,
			PhoneInfo:       phone,
			EnrolledAt:      e.EnrolledAt,
		})
	}
	return out
}

// obfuscatePhone keeps the leading plus and the last four digits.
func obfuscatePhone(phone string) string {
	if len(phone) <= 5 {
		return phone
	}
	masked := make([]byte, 0, len(phone))
	masked = append(masked, '+')
	for i := 0; i < len(phone)-5; i++ {
		masked = append(masked, '*')
	}
	return string(masked) + phone[len(phone)-4:]
}
