package authemu

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/MrEthical07/authemu/jwt"
	"github.com/MrEthical07/authemu/state"
	"go.uber.org/zap"
)

const (
	idTokenIssuerPrefix       = "https://securetoken.google.com/"
	sessionCookieIssuerPrefix = "https://session.firebase.google.com/"
	customTokenAudience       = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"
	lastRefreshLayout         = "2006-01-02T15:04:05.000Z"
	mfaPendingMarker          = "DO NOT MODIFY"
)

// tokenContext is what an ID token is minted for besides the user itself.
// Refresh tokens store the same values.
type tokenContext struct {
	provider     string
	extraClaims  map[string]any
	secondFactor *state.SecondFactor
}

// idTokenInfo is a validated inbound ID token.
type idTokenInfo struct {
	user           *state.UserInfo
	claims         map[string]any
	signInProvider string
	secondFactor   *state.SecondFactor
}

// issueTokens mints an ID token and, outside PASSTHROUGH mode, records
// lastRefreshAt and a new refresh token.
func (c *call) issueTokens(u *state.UserInfo, tc tokenContext) (Tokens, error) {
	passthrough := c.passthrough()
	if !passthrough {
		updated, err := c.st.UpdateUser(u.LocalID, state.UpdateOptions{}, func(x *state.UserInfo) {
			x.LastRefreshAt = c.now.UTC().Format(lastRefreshLayout)
		})
		if err != nil {
			return Tokens{}, storeError(err)
		}
		u = updated
	}

	idToken, err := c.mintIDToken(u, tc)
	if err != nil {
		return Tokens{}, err
	}
	out := Tokens{
		IDToken:   idToken,
		ExpiresIn: strconv.FormatInt(int64(c.e.config.IDToken.TTL/time.Second), 10),
	}
	if !passthrough {
		refresh, err := c.st.CreateRefreshToken(state.RefreshTokenRecord{
			LocalID:      u.LocalID,
			Provider:     tc.provider,
			ExtraClaims:  tc.extraClaims,
			SecondFactor: tc.secondFactor,
		})
		if err != nil {
			return Tokens{}, storeError(err)
		}
		out.RefreshToken = refresh
	}
	return out, nil
}

func (c *call) mintIDToken(u *state.UserInfo, tc tokenContext) (string, error) {
	claims := map[string]any{}
	custom, err := parseCustomAttributes(u.CustomAttributes)
	if err != nil {
		c.e.logger.Warn("ignoring invalid stored custom attributes", zap.String("localId", u.LocalID))
	}
	for k, v := range custom {
		claims[k] = v
	}
	for k, v := range tc.extraClaims {
		claims[k] = v
	}

	projectID := c.st.ProjectID()
	now := c.nowSeconds()
	authTime := now
	if u.LastLoginAt > 0 {
		authTime = u.LastLoginAt / 1000
	}
	claims["iss"] = idTokenIssuerPrefix + projectID
	claims["aud"] = projectID
	claims["auth_time"] = authTime
	claims["user_id"] = u.LocalID
	claims["sub"] = u.LocalID
	claims["iat"] = now
	claims["exp"] = now + int64(c.e.config.IDToken.TTL/time.Second)
	if u.Email != "" {
		claims["email"] = u.Email
		claims["email_verified"] = u.EmailVerified
	}
	if u.PhoneNumber != "" {
		claims["phone_number"] = u.PhoneNumber
	}
	if u.DisplayName != "" {
		claims["name"] = u.DisplayName
	}
	if u.PhotoURL != "" {
		claims["picture"] = u.PhotoURL
	}
	if tc.provider == state.ProviderAnonymous {
		claims["provider_id"] = state.ProviderAnonymous
	}

	firebase := map[string]any{
		"identities":       identities(u),
		"sign_in_provider": tc.provider,
	}
	if tc.secondFactor != nil {
		firebase["second_factor_identifier"] = tc.secondFactor.Identifier
		firebase["sign_in_second_factor"] = tc.secondFactor.Provider
	}
	if tid := c.st.TenantID(); tid != "" {
		firebase["tenant"] = tid
	}
	if c.passthrough() {
		firebase["usage_mode"] = "passthrough"
	}
	claims["firebase"] = firebase

	token, err := jwt.Encode(claims)
	if err != nil {
		return "", internalError(err)
	}
	c.e.metrics.Inc(MetricIDTokenIssued)
	return token, nil
}

func identities(u *state.UserInfo) map[string][]string {
	out := map[string][]string{}
	for _, p := range u.ProviderUserInfo {
		if p.ProviderID == state.ProviderPassword || p.RawID == "" {
			continue
		}
		out[p.ProviderID] = append(out[p.ProviderID], p.RawID)
	}
	if u.Email != "" {
		out["email"] = []string{u.Email}
	}
	if u.PhoneNumber != "" {
		out[state.ProviderPhone] = []string{u.PhoneNumber}
	}
	return out
}

// parseIDToken decodes an ID token issued by the emulator and checks that
// its user still exists, is enabled, and has not been revoked since.
func (c *call) parseIDToken(raw string) (*idTokenInfo, error) {
	if raw == "" {
		return nil, badRequest(CodeMissingIDToken)
	}
	tok, err := jwt.Decode(raw)
	if err != nil {
		return nil, badRequest(CodeInvalidIDToken)
	}
	if tok.Signed() {
		c.e.logger.Warn("received a signed JWT; the emulator does not verify signatures",
			zap.String("alg", tok.Algorithm()))
	}

	firebase, _ := tok.Claims["firebase"].(map[string]any)
	if jwt.StringClaim(firebase, "tenant") != c.st.TenantID() {
		return nil, badRequest(CodeTenantIDMismatch)
	}

	localID := tok.StringClaim("user_id")
	if localID == "" {
		localID = tok.StringClaim("sub")
	}
	if localID == "" {
		return nil, badRequest(CodeInvalidIDToken)
	}
	user := c.st.GetUserByLocalID(localID)
	if user == nil {
		return nil, badRequest(CodeUserNotFound)
	}
	if iat, ok := tok.Int64Claim("iat"); user.ValidSince > 0 && (!ok || iat < user.ValidSince) {
		return nil, badRequest(CodeTokenExpired)
	}
	if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}

	info := &idTokenInfo{
		user:           user,
		claims:         tok.Claims,
		signInProvider: jwt.StringClaim(firebase, "sign_in_provider"),
	}
	if id := jwt.StringClaim(firebase, "second_factor_identifier"); id != "" {
		info.secondFactor = &state.SecondFactor{
			Identifier: id,
			Provider:   jwt.StringClaim(firebase, "sign_in_second_factor"),
		}
	}
	return info, nil
}

type mfaPendingCredential struct {
	Marker         string `json:"_AuthEmulatorMfaPendingCredential"`
	LocalID        string `json:"localId"`
	SignInProvider string `json:"signInProvider"`
	ProjectID      string `json:"projectId"`
	TenantID       string `json:"tenantId,omitempty"`
}

func (c *call) encodePendingCredential(u *state.UserInfo, provider string) (string, error) {
	data, err := json.Marshal(mfaPendingCredential{
		Marker:         mfaPendingMarker,
		LocalID:        u.LocalID,
		SignInProvider: provider,
		ProjectID:      c.st.ProjectID(),
		TenantID:       c.st.TenantID(),
	})
	if err != nil {
		return "", internalError(err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodePendingCredential trusts the credential content and only checks
// that it belongs to this project and tenant.
func (c *call) decodePendingCredential(raw string) (*mfaPendingCredential, error) {
	if raw == "" {
		return nil, badRequest(CodeMissingMfaPendingCredential)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, badRequest(CodeInvalidMfaPendingCredential)
	}
	var cred mfaPendingCredential
	if err := json.Unmarshal(data, &cred); err != nil || cred.LocalID == "" {
		return nil, badRequest(CodeInvalidMfaPendingCredential)
	}
	if cred.ProjectID != c.st.ProjectID() {
		return nil, badRequestDetail(CodeInvalidProjectID, "Project ID does not match MFA pending credential.")
	}
	if cred.TenantID != c.st.TenantID() {
		return nil, badRequestDetail(CodeTenantIDMismatch, "Tenant ID does not match MFA pending credential.")
	}
	return &cred, nil
}

// mfaEligible reports whether a first factor may be followed by an SMS
// second factor.
func mfaEligible(provider string) bool {
	switch provider {
	case state.ProviderAnonymous, state.ProviderPhone, state.ProviderCustom, state.ProviderGameCenter:
		return false
	}
	return true
}

// signIn completes a first-factor sign-in. Users with second factors get a
// pending credential instead of tokens and keep their lastLoginAt.
func (c *call) signIn(u *state.UserInfo, tc tokenContext) (Tokens, *MfaPending, *state.UserInfo, error) {
	if len(u.MfaInfo) > 0 && mfaEligible(tc.provider) && c.st.MfaConfig().PhoneEnabled() {
		cred, err := c.encodePendingCredential(u, tc.provider)
		if err != nil {
			return Tokens{}, nil, nil, err
		}
		c.e.metrics.Inc(MetricMfaPending)
		return Tokens{}, &MfaPending{
			MfaPendingCredential: cred,
			MfaInfo:              toPublicEnrollments(u.MfaInfo, true),
		}, u, nil
	}

	if !c.passthrough() {
		updated, err := c.st.UpdateUser(u.LocalID, state.UpdateOptions{}, func(x *state.UserInfo) {
			x.LastLoginAt = c.nowMillis()
		})
		if err != nil {
			return Tokens{}, nil, nil, storeError(err)
		}
		u = updated
	} else {
		u.LastLoginAt = c.nowMillis()
	}
	tokens, err := c.issueTokens(u, tc)
	if err != nil {
		return Tokens{}, nil, nil, err
	}
	c.e.metrics.Inc(MetricSignInSuccess)
	return tokens, nil, u, nil
}
