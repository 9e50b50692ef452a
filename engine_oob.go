package authemu

import (
	"context"
	"net/url"

	"github.com/MrEthical07/authemu/password"
	"github.com/MrEthical07/authemu/state"
)

// CreateAuthURIRequest asks which sign-in methods an identifier can use.
type CreateAuthURIRequest struct {
	Identifier  string `json:"identifier,omitempty"`
	ContinueURI string `json:"continueUri,omitempty"`
	ProviderID  string `json:"providerId,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
}

// CreateAuthURIResponse lists the sign-in methods of an identifier.
type CreateAuthURIResponse struct {
	Kind          string   `json:"kind"`
	Registered    bool     `json:"registered"`
	AllProviders  []string `json:"allProviders,omitempty"`
	SigninMethods []string `json:"signinMethods,omitempty"`
	SessionID     string   `json:"sessionId"`
}

// CreateAuthURI reports which sign-in methods exist for an email.
func (e *Engine) CreateAuthURI(ctx context.Context, t Target, req *CreateAuthURIRequest) (*CreateAuthURIResponse, error) {
	if req == nil {
		req = &CreateAuthURIRequest{}
	}
	return run(e, ctx, OpCreateAuthURI, t, req.TenantID, func(c *call) (*CreateAuthURIResponse, error) {
		return c.createAuthURI(req)
	})
}

func (c *call) createAuthURI(req *CreateAuthURIRequest) (*CreateAuthURIResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	if req.Identifier == "" {
		return nil, badRequest(CodeMissingIdentifier)
	}
	if !c.e.emails.Valid(req.Identifier) {
		return nil, badRequest(CodeInvalidIdentifier)
	}
	if req.ContinueURI == "" {
		return nil, badRequest(CodeMissingContinueURI)
	}
	if !validContinueURL(req.ContinueURI) {
		return nil, badRequest(CodeInvalidContinueURI)
	}
	email := c.canonicalEmail(req.Identifier)

	var users []*state.UserInfo
	if c.st.OneAccountPerEmail() {
		if u := c.st.GetUserByEmail(email); u != nil {
			users = append(users, u)
		}
	} else {
		users = c.st.GetUsersByEmailOrProviderEmail(email)
	}

	var providers, methods orderedSet
	for _, u := range users {
		if u.Email == email {
			if u.HasPassword() {
				providers.add(state.ProviderPassword)
				methods.add("password")
			}
			if u.EmailLinkSignin {
				providers.add(state.ProviderPassword)
				methods.add("emailLink")
			}
		}
		for _, p := range u.ProviderUserInfo {
			if !state.IsFederated(p.ProviderID) {
				continue
			}
			if c.st.OneAccountPerEmail() || p.Email == email {
				providers.add(p.ProviderID)
				methods.add(p.ProviderID)
			}
		}
	}

	return &CreateAuthURIResponse{
		Kind:          "identitytoolkit#CreateAuthUriResponse",
		Registered:    len(users) > 0,
		AllProviders:  providers,
		SigninMethods: methods,
		SessionID:     c.st.IDs().Token(),
	}, nil
}

type orderedSet []string

func (s *orderedSet) add(v string) {
	for _, x := range *s {
		if x == v {
			return
		}
	}
	*s = append(*s, v)
}

func validContinueURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// SendOobCodeRequest asks for an email action code.
type SendOobCodeRequest struct {
	RequestType        string `json:"requestType,omitempty"`
	Email              string `json:"email,omitempty"`
	IDToken            string `json:"idToken,omitempty"`
	ContinueURL        string `json:"continueUrl,omitempty"`
	CanHandleCodeInApp bool   `json:"canHandleCodeInApp,omitempty"`
	ReturnOobLink      bool   `json:"returnOobLink,omitempty"`
	TenantID           string `json:"tenantId,omitempty"`
}

// SendOobCodeResponse echoes the email and, when requested, the code and link.
type SendOobCodeResponse struct {
	Kind    string `json:"kind"`
	Email   string `json:"email,omitempty"`
	OobCode string `json:"oobCode,omitempty"`
	OobLink string `json:"oobLink,omitempty"`
}

// SendOobCode issues an action code of the requested type and delivers
// its link. Privileged callers may ask for the link in the response.
func (e *Engine) SendOobCode(ctx context.Context, t Target, req *SendOobCodeRequest) (*SendOobCodeResponse, error) {
	if req == nil {
		req = &SendOobCodeRequest{}
	}
	return run(e, ctx, OpSendOobCode, t, req.TenantID, func(c *call) (*SendOobCodeResponse, error) {
		return c.sendOobCode(req)
	})
}

func (c *call) sendOobCode(req *SendOobCodeRequest) (*SendOobCodeResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	if req.RequestType == "" {
		return nil, badRequest(CodeMissingReqType)
	}
	if req.ReturnOobLink && !c.target.Privileged {
		return nil, badRequest(CodeInsufficientPermission)
	}
	if req.ContinueURL != "" && !validContinueURL(req.ContinueURL) {
		return nil, badRequest(CodeInvalidContinueURI)
	}

	requestType := state.OobRequestType(req.RequestType)
	var email string
	switch requestType {
	case state.OobEmailSignin:
		if !c.st.EnableEmailLinkSignin() {
			return nil, badRequest(CodeOperationNotAllowed)
		}
		if req.ContinueURL == "" {
			return nil, badRequest(CodeMissingContinueURI)
		}
		var err error
		if email, err = c.requireEmail(req.Email); err != nil {
			return nil, err
		}
	case state.OobPasswordReset:
		var err error
		if email, err = c.requireEmail(req.Email); err != nil {
			return nil, err
		}
		if c.st.GetUserByEmail(email) == nil {
			return nil, badRequest(CodeEmailNotFound)
		}
	case state.OobVerifyEmail:
		if req.ReturnOobLink && req.IDToken == "" {
			var err error
			if email, err = c.requireEmail(req.Email); err != nil {
				return nil, err
			}
			if c.st.GetUserByEmail(email) == nil {
				return nil, badRequest(CodeUserNotFound)
			}
		} else {
			info, err := c.parseIDToken(req.IDToken)
			if err != nil {
				return nil, err
			}
			if info.user.Email == "" {
				return nil, badRequest(CodeMissingEmail)
			}
			email = info.user.Email
		}
	default:
		return nil, badRequestDetail(CodeInvalidReqType, req.RequestType+" is not supported")
	}

	rec, err := c.issueOobCode(email, requestType, req.ContinueURL)
	if err != nil {
		return nil, storeError(err)
	}
	resp := &SendOobCodeResponse{
		Kind:  "identitytoolkit#GetOobConfirmationCodeResponse",
		Email: email,
	}
	if req.ReturnOobLink {
		resp.OobCode = rec.OobCode
		resp.OobLink = rec.OobLink
	}
	return resp, nil
}

func (c *call) requireEmail(email string) (string, error) {
	if email == "" {
		return "", badRequest(CodeMissingEmail)
	}
	if !c.e.emails.Valid(email) {
		return "", badRequest(CodeInvalidEmail)
	}
	return c.canonicalEmail(email), nil
}

// ResetPasswordRequest redeems a PASSWORD_RESET code.
type ResetPasswordRequest struct {
	OobCode     string `json:"oobCode,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
}

// ResetPasswordResponse reports the email and type of the redeemed code.
type ResetPasswordResponse struct {
	Kind        string `json:"kind"`
	Email       string `json:"email"`
	RequestType string `json:"requestType"`
}

// ResetPassword checks a PASSWORD_RESET code and, when NewPassword is set,
// redeems it. Without NewPassword the code is left in place.
func (e *Engine) ResetPassword(ctx context.Context, t Target, req *ResetPasswordRequest) (*ResetPasswordResponse, error) {
	if req == nil {
		req = &ResetPasswordRequest{}
	}
	return run(e, ctx, OpResetPassword, t, req.TenantID, func(c *call) (*ResetPasswordResponse, error) {
		return c.resetPassword(req)
	})
}

func (c *call) resetPassword(req *ResetPasswordRequest) (*ResetPasswordResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	if !c.st.AllowPasswordSignup() {
		return nil, badRequest(CodePasswordLoginDisabled)
	}
	if req.OobCode == "" {
		return nil, badRequest(CodeMissingOobCode)
	}
	rec, ok := c.st.ValidateOobCode(req.OobCode)
	if !ok || rec.RequestType != state.OobPasswordReset {
		return nil, badRequest(CodeInvalidOobCode)
	}
	resp := &ResetPasswordResponse{
		Kind:        "identitytoolkit#ResetPasswordResponse",
		Email:       rec.Email,
		RequestType: string(rec.RequestType),
	}
	if req.NewPassword == "" {
		return resp, nil
	}
	if password.Weak(req.NewPassword) {
		return nil, badRequestDetail(CodeWeakPassword, "Password should be at least 6 characters")
	}
	user := c.st.GetUserByEmail(rec.Email)
	if user == nil {
		return nil, badRequest(CodeInvalidOobCode)
	}
	if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}
	if _, err := c.st.UpdateUser(user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
		u.Salt = password.NewSalt()
		u.PasswordHash = password.FakeHash(req.NewPassword, u.Salt)
		u.HashConfig = nil
		u.PasswordUpdatedAt = c.nowMillis()
		u.ValidSince = c.nowSeconds()
		u.EmailVerified = true
	}); err != nil {
		return nil, storeError(err)
	}
	c.st.DeleteOobCode(req.OobCode)
	c.e.metrics.Inc(MetricOobCodeRedeemed)
	return resp, nil
}
