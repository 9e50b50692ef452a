package state

import (
	"github.com/MrEthical07/authemu/password"
)

// Well-known provider ids.
const (
	ProviderPassword   = "password"
	ProviderPhone      = "phone"
	ProviderAnonymous  = "anonymous"
	ProviderCustom     = "custom"
	ProviderGoogle     = "google.com"
	ProviderGameCenter = "gc.apple.com"
)

// ProviderUserInfo is one identity edge of a user. Federated entries are
// unique per (ProviderID, RawID) within a namespace.
type ProviderUserInfo struct {
	ProviderID  string `json:"providerId"`
	RawID       string `json:"rawId,omitempty"`
	FederatedID string `json:"federatedId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	ScreenName  string `json:"screenName,omitempty"`
}

// MfaEnrollment is a phone second factor owned by a single user.
type MfaEnrollment struct {
	MfaEnrollmentID       string `json:"mfaEnrollmentId"`
	DisplayName           string `json:"displayName,omitempty"`
	PhoneInfo             string `json:"phoneInfo,omitempty"`
	UnobfuscatedPhoneInfo string `json:"unobfuscatedPhoneInfo,omitempty"`
	EnrolledAt            string `json:"enrolledAt,omitempty"`
}

// UserInfo is the stored identity record. The JSON form matches the account
// representation returned by lookup and batch endpoints.
type UserInfo struct {
	LocalID           string             `json:"localId"`
	Email             string             `json:"email,omitempty"`
	EmailVerified     bool               `json:"emailVerified,omitempty"`
	EmailLinkSignin   bool               `json:"emailLinkSignin,omitempty"`
	DisplayName       string             `json:"displayName,omitempty"`
	PhotoURL          string             `json:"photoUrl,omitempty"`
	PhoneNumber       string             `json:"phoneNumber,omitempty"`
	PasswordHash      string             `json:"passwordHash,omitempty"`
	Salt              string             `json:"salt,omitempty"`
	PasswordUpdatedAt int64              `json:"passwordUpdatedAt,omitempty"`
	HashConfig        *password.Config   `json:"-"`
	ValidSince        int64              `json:"validSince,omitempty,string"`
	Disabled          bool               `json:"disabled,omitempty"`
	CustomAttributes  string             `json:"customAttributes,omitempty"`
	CustomAuth        bool               `json:"customAuth,omitempty"`
	ProviderUserInfo  []ProviderUserInfo `json:"providerUserInfo,omitempty"`
	MfaInfo           []MfaEnrollment    `json:"mfaInfo,omitempty"`
	InitialEmail      string             `json:"initialEmail,omitempty"`
	CreatedAt         int64              `json:"createdAt,omitempty,string"`
	LastLoginAt       int64              `json:"lastLoginAt,omitempty,string"`
	LastRefreshAt     string             `json:"lastRefreshAt,omitempty"`
	TenantID          string             `json:"tenantId,omitempty"`
}

// Clone returns a deep copy of u.
func (u *UserInfo) Clone() *UserInfo {
	if u == nil {
		return nil
	}
	c := *u
	if u.ProviderUserInfo != nil {
		c.ProviderUserInfo = append([]ProviderUserInfo(nil), u.ProviderUserInfo...)
	}
	if u.MfaInfo != nil {
		c.MfaInfo = append([]MfaEnrollment(nil), u.MfaInfo...)
	}
	if u.HashConfig != nil {
		cfg := *u.HashConfig
		c.HashConfig = &cfg
	}
	return &c
}

// Provider returns the provider entry with the given id, if any.
func (u *UserInfo) Provider(providerID string) (ProviderUserInfo, bool) {
	for _, p := range u.ProviderUserInfo {
		if p.ProviderID == providerID {
			return p, true
		}
	}
	return ProviderUserInfo{}, false
}

// HasPassword reports whether the user can sign in with a password.
func (u *UserInfo) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether providerID names an external identity
// provider rather than one of the built-in first factors.
func IsFederated(providerID string) bool {
	switch providerID {
	case ProviderPassword, ProviderPhone, ProviderAnonymous, ProviderCustom, "":
		return false
	}
	return true
}

// UpdateOptions adjusts the provider list while updating a user. Deletions
// run before upserts; an upsert replaces the entry with the same provider id.
type UpdateOptions struct {
	DeleteProviders []string
	UpsertProviders []ProviderUserInfo
}

func applyProviderOptions(u *UserInfo, opts UpdateOptions) {
	if len(opts.DeleteProviders) > 0 {
		kept := u.ProviderUserInfo[:0:0]
		for _, p := range u.ProviderUserInfo {
			if !contains(opts.DeleteProviders, p.ProviderID) {
				kept = append(kept, p)
			}
		}
		u.ProviderUserInfo = kept
	}
	for _, up := range opts.UpsertProviders {
		u.ProviderUserInfo = upsertProvider(u.ProviderUserInfo, up)
	}
}

func upsertProvider(list []ProviderUserInfo, p ProviderUserInfo) []ProviderUserInfo {
	for i := range list {
		if list[i].ProviderID == p.ProviderID {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func removeProvider(list []ProviderUserInfo, providerID string) []ProviderUserInfo {
	out := list[:0:0]
	for _, p := range list {
		if p.ProviderID != providerID {
			out = append(out, p)
		}
	}
	return out
}

// syncBuiltinProviders keeps the password and phone entries in step with the
// user's email, password and phone fields.
func syncBuiltinProviders(u *UserInfo) {
	if u.Email != "" && (u.PasswordHash != "" || u.EmailLinkSignin) {
		u.ProviderUserInfo = upsertProvider(u.ProviderUserInfo, ProviderUserInfo{
			ProviderID:  ProviderPassword,
			RawID:       u.Email,
			FederatedID: u.Email,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			PhotoURL:    u.PhotoURL,
		})
	} else {
		u.ProviderUserInfo = removeProvider(u.ProviderUserInfo, ProviderPassword)
	}

	if u.PhoneNumber != "" {
		u.ProviderUserInfo = upsertProvider(u.ProviderUserInfo, ProviderUserInfo{
			ProviderID:  ProviderPhone,
			RawID:       u.PhoneNumber,
			PhoneNumber: u.PhoneNumber,
		})
	} else {
		u.ProviderUserInfo = removeProvider(u.ProviderUserInfo, ProviderPhone)
	}

	if len(u.ProviderUserInfo) == 0 {
		u.ProviderUserInfo = nil
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
