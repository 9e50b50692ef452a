package authemu

import (
	"context"

	"github.com/MrEthical07/authemu/password"
	"github.com/MrEthical07/authemu/state"
)

// SignUpRequest creates an account, or upgrades the account of IDToken.
type SignUpRequest struct {
	Email         string               `json:"email,omitempty"`
	Password      string               `json:"password,omitempty"`
	DisplayName   string               `json:"displayName,omitempty"`
	PhotoURL      string               `json:"photoUrl,omitempty"`
	IDToken       string               `json:"idToken,omitempty"`
	TenantID      string               `json:"tenantId,omitempty"`
	LocalID       string               `json:"localId,omitempty"`
	PhoneNumber   string               `json:"phoneNumber,omitempty"`
	EmailVerified bool                 `json:"emailVerified,omitempty"`
	Disabled      bool                 `json:"disabled,omitempty"`
	MfaInfo       []MfaEnrollmentInput `json:"mfaInfo,omitempty"`
}

// MfaEnrollmentInput is a second factor supplied by a privileged caller.
type MfaEnrollmentInput struct {
	MfaEnrollmentID string `json:"mfaEnrollmentId,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	PhoneInfo       string `json:"phoneInfo,omitempty"`
	EnrolledAt      string `json:"enrolledAt,omitempty"`
}

// SignUpResponse carries the new account id and its tokens.
type SignUpResponse struct {
	Kind        string `json:"kind"`
	LocalID     string `json:"localId"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Tokens
}

// SignUp creates a password, anonymous or (for privileged callers) fully
// specified account.
//
// Unprivileged callers always receive tokens; privileged callers only get
// the new local id back.
func (e *Engine) SignUp(ctx context.Context, t Target, req *SignUpRequest) (*SignUpResponse, error) {
	if req == nil {
		req = &SignUpRequest{}
	}
	return run(e, ctx, OpSignUp, t, req.TenantID, func(c *call) (*SignUpResponse, error) {
		return c.signUp(req)
	})
}

func (c *call) signUp(req *SignUpRequest) (*SignUpResponse, error) {
	privileged := c.target.Privileged
	if !privileged {
		if c.st.DisableAuth() {
			return nil, badRequest(CodeProjectDisabled)
		}
		if req.LocalID != "" {
			return nil, badRequestDetail(CodeUnexpectedParameter, "User ID")
		}
		if req.Email != "" || req.Password != "" {
			if !c.st.AllowPasswordSignup() {
				return nil, badRequest(CodeOperationNotAllowed)
			}
			if req.Email == "" {
				return nil, badRequest(CodeMissingEmail)
			}
			if req.Password == "" {
				return nil, badRequest(CodeMissingPassword)
			}
		} else if req.IDToken == "" && !c.st.EnableAnonymousUser() {
			return nil, badRequest(CodeAdminOnlyOperation)
		}
	}

	email := ""
	if req.Email != "" {
		if !c.e.emails.Valid(req.Email) {
			return nil, badRequest(CodeInvalidEmail)
		}
		email = c.canonicalEmail(req.Email)
	}
	if req.Password != "" && password.Weak(req.Password) {
		return nil, badRequestDetail(CodeWeakPassword, "Password should be at least 6 characters")
	}
	phone := ""
	if privileged && req.PhoneNumber != "" {
		if !c.e.phones.Valid(req.PhoneNumber) {
			return nil, badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.")
		}
		if c.st.GetUserByPhoneNumber(req.PhoneNumber) != nil {
			return nil, badRequest(CodePhoneNumberExists)
		}
		phone = req.PhoneNumber
	}

	var (
		existing *idTokenInfo
		err      error
	)
	if req.IDToken != "" {
		if existing, err = c.parseIDToken(req.IDToken); err != nil {
			return nil, err
		}
	}
	if email != "" && c.st.OneAccountPerEmail() {
		if other := c.st.GetUserByEmail(email); other != nil && (existing == nil || other.LocalID != existing.user.LocalID) {
			return nil, badRequest(CodeEmailExists)
		}
	}

	var mfa []state.MfaEnrollment
	if privileged && len(req.MfaInfo) > 0 {
		if mfa, err = c.buildEnrollments(req.MfaInfo); err != nil {
			return nil, err
		}
	}

	apply := func(u *state.UserInfo) {
		if email != "" {
			u.Email = email
		}
		if req.DisplayName != "" {
			u.DisplayName = req.DisplayName
		}
		if req.PhotoURL != "" {
			u.PhotoURL = req.PhotoURL
		}
		if req.Password != "" {
			u.Salt = password.NewSalt()
			u.PasswordHash = password.FakeHash(req.Password, u.Salt)
			u.HashConfig = nil
			u.PasswordUpdatedAt = c.nowMillis()
			u.ValidSince = c.nowSeconds()
		}
		if privileged {
			u.EmailVerified = req.EmailVerified
			u.Disabled = req.Disabled
			if phone != "" {
				u.PhoneNumber = phone
			}
			if mfa != nil {
				u.MfaInfo = mfa
			}
		}
	}

	var user *state.UserInfo
	provider := ""
	if existing != nil {
		user, err = c.st.UpdateUser(existing.user.LocalID, state.UpdateOptions{}, apply)
		if err != nil {
			return nil, storeError(err)
		}
		provider = existing.signInProvider
		if req.Password != "" {
			provider = state.ProviderPassword
		}
	} else {
		u := state.UserInfo{CreatedAt: c.nowMillis()}
		apply(&u)
		if !privileged {
			u.LastLoginAt = c.nowMillis()
		}
		if privileged && req.LocalID != "" {
			user, err = c.st.CreateUserWithLocalID(req.LocalID, u)
		} else {
			user, err = c.st.CreateUser(u)
		}
		if err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricSignUp)
		c.e.metrics.Inc(MetricUserCreated)
		if req.Password != "" {
			provider = state.ProviderPassword
		} else if !privileged {
			provider = state.ProviderAnonymous
		}
	}

	resp := &SignUpResponse{
		Kind:        "identitytoolkit#SignupNewUserResponse",
		LocalID:     user.LocalID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
	if !privileged && provider != "" {
		if resp.Tokens, err = c.issueTokens(user, tokenContext{provider: provider}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// buildEnrollments validates privileged MFA input and fills in missing ids.
func (c *call) buildEnrollments(in []MfaEnrollmentInput) ([]state.MfaEnrollment, error) {
	out := make([]state.MfaEnrollment, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	explicit := make(map[string]struct{}, len(in))
	for _, e := range in {
		if e.MfaEnrollmentID != "" {
			explicit[e.MfaEnrollmentID] = struct{}{}
		}
	}
	for _, e := range in {
		if e.PhoneInfo == "" || !c.e.phones.Valid(e.PhoneInfo) {
			return nil, badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.")
		}
		id := e.MfaEnrollmentID
		if id == "" {
			var err error
			id, err = c.newEnrollmentID(func(v string) bool {
				_, used := seen[v]
				_, reserved := explicit[v]
				return used || reserved
			})
			if err != nil {
				return nil, storeError(err)
			}
		}
		if _, dup := seen[id]; dup {
			return nil, badRequestDetail(CodeInvalidArgument, "Duplicate MFA enrollment ID.")
		}
		seen[id] = struct{}{}
		enrolledAt := e.EnrolledAt
		if enrolledAt == "" {
			enrolledAt = c.now.UTC().Format(lastRefreshLayout)
		}
		out = append(out, state.MfaEnrollment{
			MfaEnrollmentID:       id,
			DisplayName:           e.DisplayName,
			PhoneInfo:             e.PhoneInfo,
			UnobfuscatedPhoneInfo: e.PhoneInfo,
			EnrolledAt:            enrolledAt,
		})
	}
	return out, nil
}
