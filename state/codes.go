package state

import (
	"github.com/MrEthical07/authemu/internal/ident"
)

const verificationCodeLength = 6

// OobRequestType names the action an out-of-band code performs.
type OobRequestType string

const (
	OobEmailSignin   OobRequestType = "EMAIL_SIGNIN"
	OobPasswordReset OobRequestType = "PASSWORD_RESET"
	OobVerifyEmail   OobRequestType = "VERIFY_EMAIL"
	OobRecoverEmail  OobRequestType = "RECOVER_EMAIL"
)

// OobRecord is a single-use action code.
type OobRecord struct {
	Email       string         `json:"email"`
	OobCode     string         `json:"oobCode"`
	OobLink     string         `json:"oobLink"`
	RequestType OobRequestType `json:"requestType"`
}

// PhoneVerificationRecord binds a session to the code sent to a phone.
type PhoneVerificationRecord struct {
	Code        string `json:"code"`
	PhoneNumber string `json:"phoneNumber"`
	SessionInfo string `json:"sessionInfo"`
}

// TemporaryProof proves control of a phone number that is already bound to
// another account.
type TemporaryProof struct {
	Proof       string
	PhoneNumber string
}

// SecondFactor records the factor used to complete an MFA sign-in.
type SecondFactor struct {
	Identifier string `json:"identifier"`
	Provider   string `json:"provider"`
}

// RefreshTokenRecord is the context a refresh token reissues ID tokens for.
type RefreshTokenRecord struct {
	LocalID      string
	Provider     string
	ExtraClaims  map[string]any
	SecondFactor *SecondFactor
	TenantID     string
}

// CreateOobCode stores a new action code. link builds the deep link for the
// generated code.
func (s *Store) CreateOobCode(email string, requestType OobRequestType, link func(code string) string) (OobRecord, error) {
	code, err := ident.Unique(s.ids.Token, func(c string) bool { _, ok := s.oobs[c]; return ok })
	if err != nil {
		return OobRecord{}, err
	}
	rec := OobRecord{Email: email, OobCode: code, RequestType: requestType}
	if link != nil {
		rec.OobLink = link(code)
	}
	s.oobs[code] = rec
	s.oobOrder = append(s.oobOrder, code)
	return rec, nil
}

// ValidateOobCode looks up a code without consuming it.
func (s *Store) ValidateOobCode(code string) (OobRecord, bool) {
	rec, ok := s.oobs[code]
	return rec, ok
}

// DeleteOobCode consumes a code.
func (s *Store) DeleteOobCode(code string) {
	if _, ok := s.oobs[code]; !ok {
		return
	}
	delete(s.oobs, code)
	s.oobOrder = removeString(s.oobOrder, code)
}

// ListOobCodes returns the outstanding codes in creation order.
func (s *Store) ListOobCodes() []OobRecord {
	out := make([]OobRecord, 0, len(s.oobOrder))
	for _, code := range s.oobOrder {
		out = append(out, s.oobs[code])
	}
	return out
}

// CreateVerificationCode opens a phone verification session. Numbers with a
// configured test code receive that code instead of a random one.
func (s *Store) CreateVerificationCode(phoneNumber string) (PhoneVerificationRecord, error) {
	sessionInfo, err := ident.Unique(s.ids.Token, func(v string) bool { _, ok := s.verifications[v]; return ok })
	if err != nil {
		return PhoneVerificationRecord{}, err
	}
	code, ok := s.policy.testPhoneCode(phoneNumber)
	if !ok {
		code = s.ids.Digits(verificationCodeLength)
	}
	rec := PhoneVerificationRecord{Code: code, PhoneNumber: phoneNumber, SessionInfo: sessionInfo}
	s.verifications[sessionInfo] = rec
	s.verificationOrder = append(s.verificationOrder, sessionInfo)
	return rec, nil
}

// GetVerificationCode looks up a session without consuming it.
func (s *Store) GetVerificationCode(sessionInfo string) (PhoneVerificationRecord, bool) {
	rec, ok := s.verifications[sessionInfo]
	return rec, ok
}

// DeleteVerificationCode consumes a session.
func (s *Store) DeleteVerificationCode(sessionInfo string) {
	if _, ok := s.verifications[sessionInfo]; !ok {
		return
	}
	delete(s.verifications, sessionInfo)
	s.verificationOrder = removeString(s.verificationOrder, sessionInfo)
}

// ListVerificationCodes returns the open sessions in creation order.
func (s *Store) ListVerificationCodes() []PhoneVerificationRecord {
	out := make([]PhoneVerificationRecord, 0, len(s.verificationOrder))
	for _, id := range s.verificationOrder {
		out = append(out, s.verifications[id])
	}
	return out
}

// CreateTemporaryProof issues a proof for phoneNumber.
func (s *Store) CreateTemporaryProof(phoneNumber string) (TemporaryProof, error) {
	proof, err := ident.Unique(s.ids.Token, func(p string) bool { _, ok := s.proofs[p]; return ok })
	if err != nil {
		return TemporaryProof{}, err
	}
	tp := TemporaryProof{Proof: proof, PhoneNumber: phoneNumber}
	s.proofs[proof] = tp
	return tp, nil
}

// ValidateTemporaryProof reports whether proof was issued for phoneNumber.
func (s *Store) ValidateTemporaryProof(proof, phoneNumber string) bool {
	tp, ok := s.proofs[proof]
	return ok && tp.PhoneNumber == phoneNumber
}

// DeleteTemporaryProof consumes a proof.
func (s *Store) DeleteTemporaryProof(proof string) {
	delete(s.proofs, proof)
}

// CreateRefreshToken stores rec under a new opaque token.
func (s *Store) CreateRefreshToken(rec RefreshTokenRecord) (string, error) {
	token, err := ident.Unique(s.ids.Token, func(t string) bool { _, ok := s.refreshTokens[t]; return ok })
	if err != nil {
		return "", err
	}
	rec.TenantID = s.tenantID
	s.refreshTokens[token] = rec
	set := s.refreshByLocalID[rec.LocalID]
	if set == nil {
		set = make(map[string]struct{})
		s.refreshByLocalID[rec.LocalID] = set
	}
	set[token] = struct{}{}
	return token, nil
}

// GetRefreshToken returns the record for token and the user it refers to.
// ok is false when the token is unknown or its user no longer exists.
func (s *Store) GetRefreshToken(token string) (RefreshTokenRecord, *UserInfo, bool) {
	rec, ok := s.refreshTokens[token]
	if !ok {
		return RefreshTokenRecord{}, nil, false
	}
	u, ok := s.users[rec.LocalID]
	if !ok {
		return RefreshTokenRecord{}, nil, false
	}
	return rec, u.Clone(), true
}

func removeString(list []string, v string) []string {
	for i, s := range list {
		if s == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
