package authemu

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/MrEthical07/authemu/jwt"
	"github.com/MrEthical07/authemu/state"
)

// SignInWithIdpRequest signs in with a federated identity.
type SignInWithIdpRequest struct {
	RequestURI          string `json:"requestUri,omitempty"`
	PostBody            string `json:"postBody,omitempty"`
	IDToken             string `json:"idToken,omitempty"`
	ReturnIdpCredential bool   `json:"returnIdpCredential,omitempty"`
	ReturnSecureToken   bool   `json:"returnSecureToken,omitempty"`
	TenantID            string `json:"tenantId,omitempty"`
}

// SignInWithIdpResponse carries the IdP profile and, unless confirmation is needed, tokens.
type SignInWithIdpResponse struct {
	Kind             string `json:"kind"`
	ProviderID       string `json:"providerId"`
	LocalID          string `json:"localId,omitempty"`
	FederatedID      string `json:"federatedId"`
	Email            string `json:"email,omitempty"`
	EmailVerified    bool   `json:"emailVerified,omitempty"`
	DisplayName      string `json:"displayName,omitempty"`
	PhotoURL         string `json:"photoUrl,omitempty"`
	ScreenName       string `json:"screenName,omitempty"`
	RawUserInfo      string `json:"rawUserInfo,omitempty"`
	OauthIDToken     string `json:"oauthIdToken,omitempty"`
	IsNewUser        bool   `json:"isNewUser,omitempty"`
	NeedConfirmation bool   `json:"needConfirmation,omitempty"`
	EmailRecycled    bool   `json:"emailRecycled,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	Tokens
	*MfaPending
}

// idpClaims is the identity asserted by the fake IdP id_token.
type idpClaims struct {
	providerID    string
	rawID         string
	email         string
	emailVerified bool
	displayName   string
	photoURL      string
	screenName    string
	rawUserInfo   string
	idToken       string
}

func (p idpClaims) providerInfo() state.ProviderUserInfo {
	return state.ProviderUserInfo{
		ProviderID:  p.providerID,
		RawID:       p.rawID,
		FederatedID: p.rawID,
		DisplayName: p.displayName,
		PhotoURL:    p.photoURL,
		Email:       p.email,
		ScreenName:  p.screenName,
	}
}

// SignInWithIdp signs in with, links, or creates an account for a
// federated identity. The identity comes from an unsigned id_token in
// PostBody.
func (e *Engine) SignInWithIdp(ctx context.Context, t Target, req *SignInWithIdpRequest) (*SignInWithIdpResponse, error) {
	if req == nil {
		req = &SignInWithIdpRequest{}
	}
	return run(e, ctx, OpSignInWithIdp, t, req.TenantID, func(c *call) (*SignInWithIdpResponse, error) {
		return c.signInWithIdp(req)
	})
}

func (c *call) parseIdpPostBody(req *SignInWithIdpRequest) (idpClaims, error) {
	if req.RequestURI == "" {
		return idpClaims{}, badRequest(CodeMissingRequestURI)
	}
	form, err := url.ParseQuery(req.PostBody)
	if err != nil {
		return idpClaims{}, badRequestDetail(CodeInvalidIdpResponse, "Unable to parse postBody.")
	}
	providerID := form.Get("providerId")
	if providerID == "" || !state.IsFederated(providerID) {
		return idpClaims{}, badRequestDetail(CodeInvalidCredentialOrProvider, "Invalid IdP response/credential: "+req.PostBody)
	}
	if strings.HasPrefix(providerID, "saml.") {
		return idpClaims{}, notImplemented("SAML providers are not supported.")
	}
	idToken := form.Get("id_token")
	if idToken == "" {
		if form.Get("access_token") != "" || form.Get("oauth_token") != "" || form.Get("code") != "" {
			return idpClaims{}, notImplemented("The Auth Emulator only support sign-in with " + providerID + " using id_token, not access_token or code. Please update your code to use id_token.")
		}
		return idpClaims{}, badRequestDetail(CodeInvalidIdpResponse, "id_token is missing from postBody.")
	}

	tok, err := jwt.Decode(idToken)
	if err != nil {
		return idpClaims{}, badRequestDetail(CodeInvalidIdpResponse, "Unable to parse id_token: "+idToken)
	}
	sub := tok.StringClaim("sub")
	if sub == "" {
		return idpClaims{}, badRequestDetail(CodeInvalidIdpResponse, "Invalid Idp Response: id_token missing \"sub\" field.")
	}

	out := idpClaims{
		providerID:  providerID,
		rawID:       sub,
		displayName: tok.StringClaim("name"),
		photoURL:    tok.StringClaim("picture"),
		screenName:  tok.StringClaim("screen_name"),
		idToken:     idToken,
	}
	if email := tok.StringClaim("email"); email != "" {
		if !c.e.emails.Valid(email) {
			return idpClaims{}, badRequestDetail(CodeInvalidIdpResponse, "Invalid Idp Response: id_token contains an invalid email.")
		}
		out.email = c.canonicalEmail(email)
	}
	switch v := tok.Claims["email_verified"].(type) {
	case bool:
		out.emailVerified = v
	case string:
		out.emailVerified = v == "true"
	}
	if raw, err := json.Marshal(tok.Claims); err == nil {
		out.rawUserInfo = string(raw)
	}
	return out, nil
}

func (c *call) signInWithIdp(req *SignInWithIdpRequest) (*SignInWithIdpResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	idp, err := c.parseIdpPostBody(req)
	if err != nil {
		return nil, err
	}

	resp := &SignInWithIdpResponse{
		Kind:          "identitytoolkit#VerifyAssertionResponse",
		ProviderID:    idp.providerID,
		FederatedID:   idp.rawID,
		Email:         idp.email,
		EmailVerified: idp.emailVerified,
		DisplayName:   idp.displayName,
		PhotoURL:      idp.photoURL,
		ScreenName:    idp.screenName,
		RawUserInfo:   idp.rawUserInfo,
		TenantID:      c.st.TenantID(),
	}
	if req.ReturnIdpCredential {
		resp.OauthIDToken = idp.idToken
	}
	tc := tokenContext{provider: idp.providerID}

	if c.passthrough() {
		localID, err := c.st.GenerateLocalID()
		if err != nil {
			return nil, storeError(err)
		}
		transient := &state.UserInfo{
			LocalID:          localID,
			TenantID:         c.st.TenantID(),
			Email:            idp.email,
			EmailVerified:    idp.emailVerified,
			DisplayName:      idp.displayName,
			PhotoURL:         idp.photoURL,
			ProviderUserInfo: []state.ProviderUserInfo{idp.providerInfo()},
		}
		if resp.Tokens, err = c.issueTokens(transient, tc); err != nil {
			return nil, err
		}
		resp.LocalID = localID
		resp.IsNewUser = true
		return resp, nil
	}

	var user *state.UserInfo
	if req.IDToken != "" {
		user, err = c.linkIdp(idp, req.IDToken)
	} else if c.st.OneAccountPerEmail() {
		user, err = c.idpSignInEmailRequired(idp, resp)
	} else {
		user, err = c.idpSignInEmailNotRequired(idp, resp)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return resp, nil
	}

	tokens, pending, user, err := c.signIn(user, tc)
	if err != nil {
		return nil, err
	}
	resp.LocalID = user.LocalID
	resp.Tokens = tokens
	resp.MfaPending = pending
	return resp, nil
}

// linkIdp attaches the identity to the account of idToken.
func (c *call) linkIdp(idp idpClaims, idToken string) (*state.UserInfo, error) {
	info, err := c.parseIDToken(idToken)
	if err != nil {
		return nil, err
	}
	if other := c.st.GetUserByProviderRawID(idp.providerID, idp.rawID); other != nil && other.LocalID != info.user.LocalID {
		return nil, badRequest(CodeFederatedUserIDAlreadyLinked)
	}
	if idp.email != "" && c.st.OneAccountPerEmail() {
		if other := c.st.GetUserByEmail(idp.email); other != nil && other.LocalID != info.user.LocalID {
			return nil, badRequest(CodeEmailExists)
		}
	}
	user, err := c.st.UpdateUser(info.user.LocalID, state.UpdateOptions{
		UpsertProviders: []state.ProviderUserInfo{idp.providerInfo()},
	}, func(u *state.UserInfo) {
		if u.Email == "" && idp.email != "" {
			u.Email = idp.email
			u.EmailVerified = idp.emailVerified
		}
	})
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// idpSignInEmailRequired matches by provider identity, then by email. A nil
// user with no error means the response asks for confirmation.
func (c *call) idpSignInEmailRequired(idp idpClaims, resp *SignInWithIdpResponse) (*state.UserInfo, error) {
	upsert := state.UpdateOptions{UpsertProviders: []state.ProviderUserInfo{idp.providerInfo()}}

	if user := c.st.GetUserByProviderRawID(idp.providerID, idp.rawID); user != nil {
		return c.idpExisting(user, upsert, nil)
	}
	if idp.email == "" {
		return c.idpCreate(idp, resp, true)
	}

	match := c.st.GetUserByEmail(idp.email)
	if match == nil {
		return c.idpCreate(idp, resp, true)
	}
	if !idp.emailVerified {
		resp.NeedConfirmation = true
		resp.LocalID = match.LocalID
		return nil, nil
	}

	for _, p := range match.ProviderUserInfo {
		if p.ProviderID == idp.providerID && p.RawID != idp.rawID {
			resp.EmailRecycled = true
			break
		}
	}
	if !match.EmailVerified {
		// The unverified account is taken over by the verified identity.
		for _, p := range match.ProviderUserInfo {
			upsert.DeleteProviders = append(upsert.DeleteProviders, p.ProviderID)
		}
	}
	wipe := !match.EmailVerified
	return c.idpExisting(match, upsert, func(u *state.UserInfo) {
		u.EmailVerified = true
		if wipe {
			u.PasswordHash = ""
			u.Salt = ""
			u.HashConfig = nil
			u.PhoneNumber = ""
			u.EmailLinkSignin = false
			u.ValidSince = c.nowSeconds()
			if idp.displayName != "" {
				u.DisplayName = idp.displayName
			}
			if idp.photoURL != "" {
				u.PhotoURL = idp.photoURL
			}
		}
	})
}

// idpSignInEmailNotRequired matches by provider identity only and never
// copies the IdP email onto a new account.
func (c *call) idpSignInEmailNotRequired(idp idpClaims, resp *SignInWithIdpResponse) (*state.UserInfo, error) {
	if user := c.st.GetUserByProviderRawID(idp.providerID, idp.rawID); user != nil {
		return c.idpExisting(user, state.UpdateOptions{UpsertProviders: []state.ProviderUserInfo{idp.providerInfo()}}, nil)
	}
	return c.idpCreate(idp, resp, false)
}

func (c *call) idpExisting(user *state.UserInfo, opts state.UpdateOptions, mutate func(u *state.UserInfo)) (*state.UserInfo, error) {
	if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}
	updated, err := c.st.UpdateUser(user.LocalID, opts, mutate)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

func (c *call) idpCreate(idp idpClaims, resp *SignInWithIdpResponse, copyEmail bool) (*state.UserInfo, error) {
	u := state.UserInfo{
		DisplayName:      idp.displayName,
		PhotoURL:         idp.photoURL,
		CreatedAt:        c.nowMillis(),
		ProviderUserInfo: []state.ProviderUserInfo{idp.providerInfo()},
	}
	if copyEmail {
		u.Email = idp.email
		u.EmailVerified = idp.emailVerified
	}
	user, err := c.st.CreateUser(u)
	if err != nil {
		return nil, storeError(err)
	}
	c.e.metrics.Inc(MetricUserCreated)
	resp.IsNewUser = true
	return user, nil
}
