package authemu

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/MrEthical07/authemu/jwt"
	"github.com/MrEthical07/authemu/password"
	"github.com/MrEthical07/authemu/state"
	"go.uber.org/zap"
)

// SignInWithPasswordRequest signs in with an email and password.
type SignInWithPasswordRequest struct {
	Email             string `json:"email,omitempty"`
	Password          string `json:"password,omitempty"`
	ReturnSecureToken bool   `json:"returnSecureToken,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
}

// SignInWithPasswordResponse carries tokens, or a pending second factor.
type SignInWithPasswordResponse struct {
	Kind           string `json:"kind"`
	LocalID        string `json:"localId"`
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Registered     bool   `json:"registered"`
	Tokens
	*MfaPending
}

// SignInWithPassword checks an email and password. Accounts with second
// factors receive an MfaPending instead of tokens.
func (e *Engine) SignInWithPassword(ctx context.Context, t Target, req *SignInWithPasswordRequest) (*SignInWithPasswordResponse, error) {
	if req == nil {
		req = &SignInWithPasswordRequest{}
	}
	return run(e, ctx, OpSignInWithPassword, t, req.TenantID, func(c *call) (*SignInWithPasswordResponse, error) {
		return c.signInWithPassword(req)
	})
}

func (c *call) signInWithPassword(req *SignInWithPasswordRequest) (*SignInWithPasswordResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	if !c.st.AllowPasswordSignup() {
		return nil, badRequest(CodePasswordLoginDisabled)
	}
	if req.Email == "" {
		return nil, badRequest(CodeMissingEmail)
	}
	if !c.e.emails.Valid(req.Email) {
		return nil, badRequest(CodeInvalidEmail)
	}
	if req.Password == "" {
		return nil, badRequest(CodeMissingPassword)
	}

	user := c.st.GetUserByEmail(c.canonicalEmail(req.Email))
	if user == nil {
		return nil, badRequest(CodeEmailNotFound)
	}
	if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}
	if !user.HasPassword() {
		return nil, badRequest(CodeInvalidPassword)
	}
	ok, err := password.Verify(req.Password, user.PasswordHash, user.Salt, user.HashConfig)
	if err != nil {
		c.e.logger.Warn("stored password hash could not be checked",
			zap.String("localId", user.LocalID), zap.Error(err))
	}
	if !ok {
		return nil, badRequest(CodeInvalidPassword)
	}

	tokens, pending, user, err := c.signIn(user, tokenContext{provider: state.ProviderPassword})
	if err != nil {
		return nil, err
	}
	return &SignInWithPasswordResponse{
		Kind:           "identitytoolkit#VerifyPasswordResponse",
		LocalID:        user.LocalID,
		Email:          user.Email,
		DisplayName:    user.DisplayName,
		ProfilePicture: user.PhotoURL,
		Registered:     true,
		Tokens:         tokens,
		MfaPending:     pending,
	}, nil
}

// SignInWithCustomTokenRequest signs in with a custom token.
type SignInWithCustomTokenRequest struct {
	Token             string `json:"token,omitempty"`
	ReturnSecureToken bool   `json:"returnSecureToken,omitempty"`
	TenantID          string `json:"tenantId,omitempty"`
}

// SignInWithCustomTokenResponse carries tokens for the token subject.
type SignInWithCustomTokenResponse struct {
	Kind      string `json:"kind"`
	IsNewUser bool   `json:"isNewUser"`
	Tokens
}

// SignInWithCustomToken accepts either a JSON object or an unverified JWT
// minted for the IdentityToolkit audience.
func (e *Engine) SignInWithCustomToken(ctx context.Context, t Target, req *SignInWithCustomTokenRequest) (*SignInWithCustomTokenResponse, error) {
	if req == nil {
		req = &SignInWithCustomTokenRequest{}
	}
	return run(e, ctx, OpSignInWithCustomToken, t, req.TenantID, func(c *call) (*SignInWithCustomTokenResponse, error) {
		return c.signInWithCustomToken(req)
	})
}

func (c *call) signInWithCustomToken(req *SignInWithCustomTokenRequest) (*SignInWithCustomTokenResponse, error) {
	if req.Token == "" {
		return nil, badRequest(CodeMissingCustomToken)
	}
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}

	payload, err := c.decodeCustomToken(req.Token)
	if err != nil {
		return nil, err
	}
	uid := jwt.StringClaim(payload, "uid")
	if uid == "" {
		uid = jwt.StringClaim(payload, "user_id")
	}
	if uid == "" {
		return nil, badRequest(CodeMissingIdentifier)
	}
	if tid := jwt.StringClaim(payload, "tenant_id"); tid != "" && tid != c.st.TenantID() {
		return nil, badRequest(CodeTenantIDMismatch)
	}
	var extra map[string]any
	if raw, ok := payload["claims"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, badRequestDetail(CodeInvalidCustomToken, "claims must be an object")
		}
		if err := checkReservedClaims(m); err != nil {
			return nil, err
		}
		extra = m
	}

	tc := tokenContext{provider: state.ProviderCustom, extraClaims: extra}
	resp := &SignInWithCustomTokenResponse{Kind: "identitytoolkit#VerifyCustomTokenResponse"}

	if c.passthrough() {
		transient := &state.UserInfo{LocalID: uid, TenantID: c.st.TenantID(), CustomAuth: true}
		if resp.Tokens, err = c.issueTokens(transient, tc); err != nil {
			return nil, err
		}
		resp.IsNewUser = true
		return resp, nil
	}

	user := c.st.GetUserByLocalID(uid)
	if user == nil {
		user, err = c.st.CreateUserWithLocalID(uid, state.UserInfo{
			CustomAuth: true,
			CreatedAt:  c.nowMillis(),
		})
		if err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricUserCreated)
		resp.IsNewUser = true
	} else if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}

	tokens, _, _, err := c.signIn(user, tc)
	if err != nil {
		return nil, err
	}
	resp.Tokens = tokens
	return resp, nil
}

func (c *call) decodeCustomToken(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
		dec.UseNumber()
		var payload map[string]any
		if err := dec.Decode(&payload); err != nil || payload == nil {
			return nil, badRequestDetail(CodeInvalidCustomToken, "((Invalid JSON payload.))")
		}
		return payload, nil
	}

	tok, err := jwt.Decode(trimmed)
	if err != nil {
		return nil, badRequestDetail(CodeInvalidCustomToken, "((Invalid assertion format. 3 dot separated segments required.))")
	}
	if tok.Signed() {
		c.e.logger.Warn("received a signed custom token; the emulator does not verify signatures",
			zap.String("alg", tok.Algorithm()))
	}
	if !audienceMatches(tok.Claims["aud"], customTokenAudience) {
		return nil, badRequestDetail(CodeInvalidCustomToken, "((The custom token corresponds to a different audience.))")
	}
	return tok.Claims, nil
}

func audienceMatches(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, a := range v {
			if s, _ := a.(string); s == want {
				return true
			}
		}
	}
	return false
}

// SignInWithEmailLinkRequest redeems an EMAIL_SIGNIN code.
type SignInWithEmailLinkRequest struct {
	Email    string `json:"email,omitempty"`
	OobCode  string `json:"oobCode,omitempty"`
	IDToken  string `json:"idToken,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// SignInWithEmailLinkResponse carries tokens for the email account.
type SignInWithEmailLinkResponse struct {
	Kind      string `json:"kind"`
	LocalID   string `json:"localId"`
	Email     string `json:"email"`
	IsNewUser bool   `json:"isNewUser"`
	Tokens
	*MfaPending
}

// SignInWithEmailLink redeems an EMAIL_SIGNIN code for the email it was
// sent to, creating the account on first use.
func (e *Engine) SignInWithEmailLink(ctx context.Context, t Target, req *SignInWithEmailLinkRequest) (*SignInWithEmailLinkResponse, error) {
	if req == nil {
		req = &SignInWithEmailLinkRequest{}
	}
	return run(e, ctx, OpSignInWithEmailLink, t, req.TenantID, func(c *call) (*SignInWithEmailLinkResponse, error) {
		return c.signInWithEmailLink(req)
	})
}

func (c *call) signInWithEmailLink(req *SignInWithEmailLinkRequest) (*SignInWithEmailLinkResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	if !c.st.EnableEmailLinkSignin() {
		return nil, badRequest(CodeOperationNotAllowed)
	}
	if req.OobCode == "" {
		return nil, badRequest(CodeMissingOobCode)
	}
	rec, ok := c.st.ValidateOobCode(req.OobCode)
	if !ok || rec.RequestType != state.OobEmailSignin {
		return nil, badRequest(CodeInvalidOobCode)
	}
	if req.Email == "" {
		return nil, badRequest(CodeMissingEmail)
	}
	email := c.canonicalEmail(req.Email)
	if email != rec.Email {
		return nil, badRequest(CodeInvalidEmail)
	}

	markVerified := func(u *state.UserInfo) {
		u.Email = email
		u.EmailVerified = true
		u.EmailLinkSignin = true
	}

	var (
		user  *state.UserInfo
		isNew bool
		err   error
	)
	if req.IDToken != "" {
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		if c.st.OneAccountPerEmail() {
			if other := c.st.GetUserByEmail(email); other != nil && other.LocalID != info.user.LocalID {
				return nil, badRequest(CodeEmailExists)
			}
		}
		if user, err = c.st.UpdateUser(info.user.LocalID, state.UpdateOptions{}, markVerified); err != nil {
			return nil, storeError(err)
		}
	} else if user = c.st.GetUserByEmail(email); user != nil {
		if user.Disabled {
			return nil, badRequest(CodeUserDisabled)
		}
		if user, err = c.st.UpdateUser(user.LocalID, state.UpdateOptions{}, markVerified); err != nil {
			return nil, storeError(err)
		}
	} else {
		u := state.UserInfo{CreatedAt: c.nowMillis()}
		markVerified(&u)
		if user, err = c.st.CreateUser(u); err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricUserCreated)
		isNew = true
	}

	c.st.DeleteOobCode(req.OobCode)
	c.e.metrics.Inc(MetricOobCodeRedeemed)

	tokens, pending, user, err := c.signIn(user, tokenContext{provider: state.ProviderPassword})
	if err != nil {
		return nil, err
	}
	return &SignInWithEmailLinkResponse{
		Kind:       "identitytoolkit#EmailLinkSigninResponse",
		LocalID:    user.LocalID,
		Email:      user.Email,
		IsNewUser:  isNew,
		Tokens:     tokens,
		MfaPending: pending,
	}, nil
}
