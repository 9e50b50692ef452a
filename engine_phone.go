package authemu

import (
	"context"

	"github.com/MrEthical07/authemu/state"
)

const temporaryProofExpiresIn = "3600"

// SendVerificationCodeRequest opens an SMS verification session.
type SendVerificationCodeRequest struct {
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
}

// SendVerificationCodeResponse returns the session to redeem the code against.
type SendVerificationCodeResponse struct {
	SessionInfo string `json:"sessionInfo"`
}

// SendVerificationCode opens a phone verification session and delivers its
// code through the notifier.
func (e *Engine) SendVerificationCode(ctx context.Context, t Target, req *SendVerificationCodeRequest) (*SendVerificationCodeResponse, error) {
	if req == nil {
		req = &SendVerificationCodeRequest{}
	}
	return run(e, ctx, OpSendVerificationCode, t, req.TenantID, func(c *call) (*SendVerificationCodeResponse, error) {
		if c.st.DisableAuth() {
			return nil, badRequest(CodeProjectDisabled)
		}
		if req.PhoneNumber == "" {
			return nil, badRequest(CodeMissingPhoneNumber)
		}
		if !c.e.phones.Valid(req.PhoneNumber) {
			return nil, badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.")
		}
		if u := c.st.GetUserByPhoneNumber(req.PhoneNumber); u != nil && len(u.MfaInfo) > 0 && c.st.MfaConfig().PhoneEnabled() {
			return nil, badRequestDetail(CodeUnsupportedFirstFactor, "A phone number cannot be set as a first factor on an SMS based MFA user.")
		}
		rec, err := c.issueVerificationCode(req.PhoneNumber)
		if err != nil {
			return nil, storeError(err)
		}
		return &SendVerificationCodeResponse{SessionInfo: rec.SessionInfo}, nil
	})
}

// SignInWithPhoneNumberRequest redeems an SMS code or temporary proof.
type SignInWithPhoneNumberRequest struct {
	SessionInfo    string `json:"sessionInfo,omitempty"`
	Code           string `json:"code,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	TemporaryProof string `json:"temporaryProof,omitempty"`
	IDToken        string `json:"idToken,omitempty"`
	TenantID       string `json:"tenantId,omitempty"`
}

// SignInWithPhoneNumberResponse carries tokens for the phone account.
type SignInWithPhoneNumberResponse struct {
	LocalID                 string `json:"localId,omitempty"`
	PhoneNumber             string `json:"phoneNumber"`
	IsNewUser               bool   `json:"isNewUser"`
	TemporaryProof          string `json:"temporaryProof,omitempty"`
	TemporaryProofExpiresIn string `json:"temporaryProofExpiresIn,omitempty"`
	Tokens
}

// SignInWithPhoneNumber redeems a verification session or a temporary
// proof. With IDToken it links the phone to that account; when the phone
// belongs to another account a temporary proof is returned instead.
func (e *Engine) SignInWithPhoneNumber(ctx context.Context, t Target, req *SignInWithPhoneNumberRequest) (*SignInWithPhoneNumberResponse, error) {
	if req == nil {
		req = &SignInWithPhoneNumberRequest{}
	}
	return run(e, ctx, OpSignInWithPhoneNumber, t, req.TenantID, func(c *call) (*SignInWithPhoneNumberResponse, error) {
		return c.signInWithPhoneNumber(req)
	})
}

func (c *call) signInWithPhoneNumber(req *SignInWithPhoneNumberRequest) (*SignInWithPhoneNumberResponse, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}

	var phone string
	usingProof := req.TemporaryProof != ""
	if usingProof {
		if req.PhoneNumber == "" {
			return nil, badRequest(CodeMissingPhoneNumber)
		}
		if !c.st.ValidateTemporaryProof(req.TemporaryProof, req.PhoneNumber) {
			return nil, badRequest(CodeInvalidTemporaryProof)
		}
		phone = req.PhoneNumber
	} else {
		if req.SessionInfo == "" {
			return nil, badRequest(CodeMissingSessionInfo)
		}
		if req.Code == "" {
			return nil, badRequest(CodeMissingCode)
		}
		rec, ok := c.st.GetVerificationCode(req.SessionInfo)
		if !ok {
			return nil, badRequest(CodeInvalidSessionInfo)
		}
		if rec.Code != req.Code {
			return nil, badRequest(CodeInvalidCode)
		}
		phone = rec.PhoneNumber
	}
	consume := func() {
		if usingProof {
			c.st.DeleteTemporaryProof(req.TemporaryProof)
		} else {
			c.st.DeleteVerificationCode(req.SessionInfo)
		}
	}
	mfaUser := func(u *state.UserInfo) bool {
		return len(u.MfaInfo) > 0 && c.st.MfaConfig().PhoneEnabled()
	}

	resp := &SignInWithPhoneNumberResponse{PhoneNumber: phone}
	tc := tokenContext{provider: state.ProviderPhone}

	if req.IDToken != "" {
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		if owner := c.st.GetUserByPhoneNumber(phone); owner != nil && owner.LocalID != info.user.LocalID {
			if usingProof {
				return nil, badRequest(CodePhoneNumberExists)
			}
			proof, err := c.st.CreateTemporaryProof(phone)
			if err != nil {
				return nil, storeError(err)
			}
			consume()
			resp.TemporaryProof = proof.Proof
			resp.TemporaryProofExpiresIn = temporaryProofExpiresIn
			return resp, nil
		}
		if mfaUser(info.user) {
			return nil, badRequestDetail(CodeUnsupportedFirstFactor, "A phone number cannot be set as a first factor on an SMS based MFA user.")
		}
		user, err := c.st.UpdateUser(info.user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			u.PhoneNumber = phone
			u.LastLoginAt = c.nowMillis()
		})
		if err != nil {
			return nil, storeError(err)
		}
		consume()
		if resp.Tokens, err = c.issueTokens(user, tc); err != nil {
			return nil, err
		}
		resp.LocalID = user.LocalID
		return resp, nil
	}

	user := c.st.GetUserByPhoneNumber(phone)
	if user == nil {
		var err error
		user, err = c.st.CreateUser(state.UserInfo{PhoneNumber: phone, CreatedAt: c.nowMillis()})
		if err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricUserCreated)
		resp.IsNewUser = true
	} else {
		if user.Disabled {
			return nil, badRequest(CodeUserDisabled)
		}
		if mfaUser(user) {
			return nil, badRequestDetail(CodeUnsupportedFirstFactor, "A phone number cannot be set as a first factor on an SMS based MFA user.")
		}
	}
	consume()

	tokens, _, user, err := c.signIn(user, tc)
	if err != nil {
		return nil, err
	}
	resp.LocalID = user.LocalID
	resp.Tokens = tokens
	return resp, nil
}
