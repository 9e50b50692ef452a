package authemu

import (
	"context"

	"github.com/MrEthical07/authemu/password"
	"github.com/MrEthical07/authemu/state"
)

// Attributes accepted by UpdateRequest.DeleteAttribute.
const (
	AttributeDisplayName = "DISPLAY_NAME"
	AttributePhotoURL    = "PHOTO_URL"
)

// UpdateRequest changes an account. The account is selected by OobCode, by
// LocalID (privileged callers) or by IDToken.
type UpdateRequest struct {
	IDToken              string                  `json:"idToken,omitempty"`
	LocalID              string                  `json:"localId,omitempty"`
	OobCode              string                  `json:"oobCode,omitempty"`
	Email                string                  `json:"email,omitempty"`
	Password             string                  `json:"password,omitempty"`
	DisplayName          string                  `json:"displayName,omitempty"`
	PhotoURL             string                  `json:"photoUrl,omitempty"`
	PhoneNumber          string                  `json:"phoneNumber,omitempty"`
	EmailVerified        *bool                   `json:"emailVerified,omitempty"`
	DisableUser          *bool                   `json:"disableUser,omitempty"`
	DeleteAttribute      []string                `json:"deleteAttribute,omitempty"`
	DeleteProvider       []string                `json:"deleteProvider,omitempty"`
	CustomAttributes     string                  `json:"customAttributes,omitempty"`
	ValidSince           *Int64                  `json:"validSince,omitempty"`
	LinkProviderUserInfo *state.ProviderUserInfo `json:"linkProviderUserInfo,omitempty"`
	Mfa                  *MfaUpdate              `json:"mfa,omitempty"`
	ReturnSecureToken    bool                    `json:"returnSecureToken,omitempty"`
	TenantID             string                  `json:"tenantId,omitempty"`
}

// MfaUpdate replaces every second factor of an account. An empty list
// removes them all.
type MfaUpdate struct {
	Enrollments []MfaEnrollmentInput `json:"enrollments"`
}

// UpdateResponse reports the updated profile and, for end users, fresh tokens.
type UpdateResponse struct {
	Kind             string                   `json:"kind"`
	LocalID          string                   `json:"localId,omitempty"`
	Email            string                   `json:"email,omitempty"`
	EmailVerified    bool                     `json:"emailVerified,omitempty"`
	DisplayName      string                   `json:"displayName,omitempty"`
	PhotoURL         string                   `json:"photoUrl,omitempty"`
	ProviderUserInfo []state.ProviderUserInfo `json:"providerUserInfo,omitempty"`
	Tokens
}

// Update redeems an email action code when OobCode is set and otherwise
// changes the account.
func (e *Engine) Update(ctx context.Context, t Target, req *UpdateRequest) (*UpdateResponse, error) {
	if req == nil {
		req = &UpdateRequest{}
	}
	return run(e, ctx, OpUpdate, t, req.TenantID, func(c *call) (*UpdateResponse, error) {
		if req.OobCode != "" {
			return c.applyOobCode(req.OobCode)
		}
		return c.update(req)
	})
}

// applyOobCode redeems a VERIFY_EMAIL or RECOVER_EMAIL code.
func (c *call) applyOobCode(code string) (*UpdateResponse, error) {
	rec, ok := c.st.ValidateOobCode(code)
	if !ok {
		return nil, badRequest(CodeInvalidOobCode)
	}

	var (
		user *state.UserInfo
		err  error
	)
	switch rec.RequestType {
	case state.OobVerifyEmail:
		target := c.st.GetUserByEmail(rec.Email)
		if target == nil {
			return nil, badRequest(CodeUserNotFound)
		}
		user, err = c.st.UpdateUser(target.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			u.EmailVerified = true
		})
	case state.OobRecoverEmail:
		target := c.st.GetUserByInitialEmail(rec.Email)
		if target == nil {
			return nil, badRequest(CodeUserNotFound)
		}
		user, err = c.st.UpdateUser(target.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			u.Email = rec.Email
			u.EmailVerified = true
		})
	default:
		return nil, badRequest(CodeInvalidOobCode)
	}
	if err != nil {
		return nil, storeError(err)
	}
	c.st.DeleteOobCode(code)
	c.e.metrics.Inc(MetricOobCodeRedeemed)
	return &UpdateResponse{
		Kind:          "identitytoolkit#SetAccountInfoResponse",
		LocalID:       user.LocalID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
	}, nil
}

func (c *call) update(req *UpdateRequest) (*UpdateResponse, error) {
	privileged := c.target.Privileged

	var (
		user     *state.UserInfo
		provider string
		factor   *state.SecondFactor
	)
	switch {
	case privileged && req.LocalID != "":
		if user = c.st.GetUserByLocalID(req.LocalID); user == nil {
			return nil, badRequest(CodeUserNotFound)
		}
	case req.IDToken != "":
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		user, provider, factor = info.user, info.signInProvider, info.secondFactor
	case privileged:
		return nil, badRequest(CodeMissingLocalID)
	default:
		return nil, badRequest(CodeMissingIDToken)
	}

	if !privileged {
		if req.DisableUser != nil || req.EmailVerified != nil || req.CustomAttributes != "" ||
			req.ValidSince != nil || req.LinkProviderUserInfo != nil || req.Mfa != nil || req.PhoneNumber != "" {
			return nil, badRequest(CodeInsufficientPermission)
		}
		if c.st.DisableAuth() {
			return nil, badRequest(CodeProjectDisabled)
		}
	}

	email := ""
	if req.Email != "" {
		if !c.e.emails.Valid(req.Email) {
			return nil, badRequest(CodeInvalidEmail)
		}
		email = c.canonicalEmail(req.Email)
		if c.st.OneAccountPerEmail() {
			if other := c.st.GetUserByEmail(email); other != nil && other.LocalID != user.LocalID {
				return nil, badRequest(CodeEmailExists)
			}
		}
	}
	if req.Password != "" && password.Weak(req.Password) {
		return nil, badRequestDetail(CodeWeakPassword, "Password should be at least 6 characters")
	}
	if req.PhoneNumber != "" {
		if !c.e.phones.Valid(req.PhoneNumber) {
			return nil, badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.")
		}
		if other := c.st.GetUserByPhoneNumber(req.PhoneNumber); other != nil && other.LocalID != user.LocalID {
			return nil, badRequest(CodePhoneNumberExists)
		}
	}
	if req.CustomAttributes != "" {
		if _, err := parseCustomAttributes(req.CustomAttributes); err != nil {
			return nil, err
		}
	}
	for _, attr := range req.DeleteAttribute {
		if attr != AttributeDisplayName && attr != AttributePhotoURL {
			return nil, badRequestDetail(CodeInvalidArgument, "Invalid deleteAttribute: "+attr)
		}
	}

	var opts state.UpdateOptions
	if link := req.LinkProviderUserInfo; link != nil {
		if !state.IsFederated(link.ProviderID) {
			return nil, badRequestDetail(CodeInvalidArgument, "linkProviderUserInfo.providerId")
		}
		if link.RawID == "" {
			return nil, badRequestDetail(CodeInvalidArgument, "linkProviderUserInfo.rawId")
		}
		if other := c.st.GetUserByProviderRawID(link.ProviderID, link.RawID); other != nil && other.LocalID != user.LocalID {
			return nil, badRequest(CodeFederatedUserIDAlreadyLinked)
		}
		p := *link
		if p.FederatedID == "" {
			p.FederatedID = p.RawID
		}
		opts.UpsertProviders = append(opts.UpsertProviders, p)
	}
	opts.DeleteProviders = req.DeleteProvider

	var mfa []state.MfaEnrollment
	if req.Mfa != nil {
		var err error
		if mfa, err = c.buildEnrollments(req.Mfa.Enrollments); err != nil {
			return nil, err
		}
	}

	emailChanged := email != "" && email != user.Email
	recoverTo := ""
	if emailChanged && user.Email != "" && user.InitialEmail == "" && provider != state.ProviderAnonymous {
		recoverTo = user.Email
	}
	// The recovery code is reserved before the account changes so a failure
	// leaves both untouched.
	var recovery state.OobRecord
	if recoverTo != "" {
		var err error
		if recovery, err = c.createOobCode(recoverTo, state.OobRecoverEmail, ""); err != nil {
			return nil, storeError(err)
		}
	}

	updated, err := c.st.UpdateUser(user.LocalID, opts, func(u *state.UserInfo) {
		if emailChanged {
			if recoverTo != "" {
				u.InitialEmail = recoverTo
			}
			u.Email = email
			u.EmailVerified = false
		}
		if req.Password != "" {
			u.Salt = password.NewSalt()
			u.PasswordHash = password.FakeHash(req.Password, u.Salt)
			u.HashConfig = nil
			u.PasswordUpdatedAt = c.nowMillis()
			u.ValidSince = c.nowSeconds()
		}
		if req.DisplayName != "" {
			u.DisplayName = req.DisplayName
		}
		if req.PhotoURL != "" {
			u.PhotoURL = req.PhotoURL
		}
		for _, attr := range req.DeleteAttribute {
			switch attr {
			case AttributeDisplayName:
				u.DisplayName = ""
			case AttributePhotoURL:
				u.PhotoURL = ""
			}
		}
		for _, p := range req.DeleteProvider {
			switch p {
			case state.ProviderPhone:
				u.PhoneNumber = ""
			case state.ProviderPassword:
				u.PasswordHash = ""
				u.Salt = ""
				u.HashConfig = nil
				u.EmailLinkSignin = false
			}
		}
		if req.PhoneNumber != "" {
			u.PhoneNumber = req.PhoneNumber
		}
		if req.EmailVerified != nil {
			u.EmailVerified = *req.EmailVerified
		}
		if req.DisableUser != nil {
			u.Disabled = *req.DisableUser
		}
		if req.CustomAttributes != "" {
			u.CustomAttributes = req.CustomAttributes
		}
		if req.ValidSince != nil {
			u.ValidSince = int64(*req.ValidSince)
		}
		if req.Mfa != nil {
			u.MfaInfo = mfa
		}
	})
	if err != nil {
		if recoverTo != "" {
			c.st.DeleteOobCode(recovery.OobCode)
		}
		return nil, storeError(err)
	}
	if recoverTo != "" {
		c.deliverOobCode(recovery)
	}

	resp := &UpdateResponse{
		Kind:             "identitytoolkit#SetAccountInfoResponse",
		LocalID:          updated.LocalID,
		Email:            updated.Email,
		EmailVerified:    updated.EmailVerified,
		DisplayName:      updated.DisplayName,
		PhotoURL:         updated.PhotoURL,
		ProviderUserInfo: updated.ProviderUserInfo,
	}
	if !privileged && (req.Password != "" || emailChanged || req.ReturnSecureToken) {
		if req.Password != "" {
			provider = state.ProviderPassword
		}
		if resp.Tokens, err = c.issueTokens(updated, tokenContext{provider: provider, secondFactor: factor}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// FederatedUserID identifies a federated identity in a lookup.
type FederatedUserID struct {
	ProviderID string `json:"providerId"`
	RawID      string `json:"rawId"`
}

// LookupRequest selects accounts by any of its identifiers.
type LookupRequest struct {
	IDToken         string            `json:"idToken,omitempty"`
	LocalID         []string          `json:"localId,omitempty"`
	Email           []string          `json:"email,omitempty"`
	PhoneNumber     []string          `json:"phoneNumber,omitempty"`
	FederatedUserID []FederatedUserID `json:"federatedUserId,omitempty"`
	TenantID        string            `json:"tenantId,omitempty"`
}

// LookupResponse carries the matched accounts.
type LookupResponse struct {
	Kind  string            `json:"kind"`
	Users []*state.UserInfo `json:"users,omitempty"`
}

// Lookup returns accounts. Privileged callers may select any number of
// accounts by id, email, phone or federated identity; end users only see
// the account of their ID token.
func (e *Engine) Lookup(ctx context.Context, t Target, req *LookupRequest) (*LookupResponse, error) {
	if req == nil {
		req = &LookupRequest{}
	}
	return run(e, ctx, OpLookup, t, req.TenantID, func(c *call) (*LookupResponse, error) {
		return c.lookup(req)
	})
}

func (c *call) lookup(req *LookupRequest) (*LookupResponse, error) {
	resp := &LookupResponse{Kind: "identitytoolkit#GetAccountInfoResponse"}
	seen := make(map[string]struct{})
	add := func(u *state.UserInfo) {
		if u == nil {
			return
		}
		if _, dup := seen[u.LocalID]; dup {
			return
		}
		seen[u.LocalID] = struct{}{}
		resp.Users = append(resp.Users, u)
	}

	if !c.target.Privileged {
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		add(info.user)
		return resp, nil
	}

	if req.IDToken != "" {
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		add(info.user)
	}
	for _, id := range req.LocalID {
		add(c.st.GetUserByLocalID(id))
	}
	for _, email := range req.Email {
		add(c.st.GetUserByEmail(c.canonicalEmail(email)))
	}
	for _, phone := range req.PhoneNumber {
		add(c.st.GetUserByPhoneNumber(phone))
	}
	for _, fed := range req.FederatedUserID {
		if fed.ProviderID == "" || fed.RawID == "" {
			return nil, badRequestDetail(CodeInvalidArgument, "federatedUserId requires providerId and rawId")
		}
		add(c.st.GetUserByProviderRawID(fed.ProviderID, fed.RawID))
	}
	return resp, nil
}

// DeleteRequest names the account to delete.
type DeleteRequest struct {
	IDToken  string `json:"idToken,omitempty"`
	LocalID  string `json:"localId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// DeleteResponse is the reply of Delete.
type DeleteResponse struct {
	Kind string `json:"kind"`
}

// Delete removes the account of IDToken, or the account LocalID when the
// caller is privileged.
func (e *Engine) Delete(ctx context.Context, t Target, req *DeleteRequest) (*DeleteResponse, error) {
	if req == nil {
		req = &DeleteRequest{}
	}
	return run(e, ctx, OpDelete, t, req.TenantID, func(c *call) (*DeleteResponse, error) {
		localID := ""
		if c.target.Privileged && req.LocalID != "" {
			localID = req.LocalID
		} else {
			if req.LocalID != "" {
				return nil, badRequest(CodeInsufficientPermission)
			}
			info, err := c.parseIDToken(req.IDToken)
			if err != nil {
				return nil, err
			}
			localID = info.user.LocalID
		}
		if err := c.st.DeleteUser(localID); err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricUserDeleted)
		return &DeleteResponse{Kind: "identitytoolkit#DeleteAccountResponse"}, nil
	})
}
