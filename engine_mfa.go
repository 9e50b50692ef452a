package authemu

import (
	"context"

	"github.com/MrEthical07/authemu/internal/ident"
	"github.com/MrEthical07/authemu/state"
)

const mfaEnrollmentIDLength = 28

// PhoneEnrollmentInfo names the phone to enroll as a second factor.
type PhoneEnrollmentInfo struct {
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

// PhoneVerificationInfo redeems an SMS code against its session.
type PhoneVerificationInfo struct {
	SessionInfo string `json:"sessionInfo,omitempty"`
	Code        string `json:"code,omitempty"`
}

// PhoneSessionInfo identifies an open SMS session.
type PhoneSessionInfo struct {
	SessionInfo string `json:"sessionInfo"`
}

// MfaEnrollmentStartRequest begins enrolling a phone second factor.
type MfaEnrollmentStartRequest struct {
	IDToken             string               `json:"idToken,omitempty"`
	PhoneEnrollmentInfo *PhoneEnrollmentInfo `json:"phoneEnrollmentInfo,omitempty"`
	TenantID            string               `json:"tenantId,omitempty"`
}

// MfaEnrollmentStartResponse returns the session the SMS code belongs to.
type MfaEnrollmentStartResponse struct {
	PhoneSessionInfo PhoneSessionInfo `json:"phoneSessionInfo"`
}

// MfaEnrollmentStart sends a verification code to the phone that is about
// to become a second factor.
func (e *Engine) MfaEnrollmentStart(ctx context.Context, t Target, req *MfaEnrollmentStartRequest) (*MfaEnrollmentStartResponse, error) {
	if req == nil {
		req = &MfaEnrollmentStartRequest{}
	}
	return run(e, ctx, OpMfaEnrollmentStart, t, req.TenantID, func(c *call) (*MfaEnrollmentStartResponse, error) {
		info, err := c.enrollingUser(req.IDToken)
		if err != nil {
			return nil, err
		}
		if req.PhoneEnrollmentInfo == nil {
			return nil, badRequestDetail(CodeInvalidArgument, "phoneEnrollmentInfo is required")
		}
		phone := req.PhoneEnrollmentInfo.PhoneNumber
		if phone == "" {
			return nil, badRequest(CodeMissingPhoneNumber)
		}
		if !c.e.phones.Valid(phone) {
			return nil, badRequestDetail(CodeInvalidPhoneNumber, "Invalid format.")
		}
		if enrolledPhone(info.user, phone) {
			return nil, badRequest(CodeSecondFactorExists)
		}
		rec, err := c.issueVerificationCode(phone)
		if err != nil {
			return nil, storeError(err)
		}
		return &MfaEnrollmentStartResponse{PhoneSessionInfo: PhoneSessionInfo{SessionInfo: rec.SessionInfo}}, nil
	})
}

// enrollingUser validates the ID token of a user managing second factors.
func (c *call) enrollingUser(idToken string) (*idTokenInfo, error) {
	if c.st.DisableAuth() {
		return nil, badRequest(CodeProjectDisabled)
	}
	info, err := c.parseIDToken(idToken)
	if err != nil {
		return nil, err
	}
	if !c.st.MfaConfig().PhoneEnabled() {
		return nil, badRequestDetail(CodeOperationNotAllowed, "SMS based MFA not enabled.")
	}
	if !mfaEligible(info.signInProvider) {
		return nil, badRequestDetail(CodeUnsupportedFirstFactor, "MFA is not available for the given first factor.")
	}
	if info.user.Email == "" || !info.user.EmailVerified {
		return nil, badRequestDetail(CodeUnverifiedEmail, "Need to verify email first before enrolling second factors.")
	}
	return info, nil
}

func enrolledPhone(u *state.UserInfo, phone string) bool {
	for _, e := range u.MfaInfo {
		if e.UnobfuscatedPhoneInfo == phone {
			return true
		}
	}
	return false
}

// verifyPhoneCode checks a verification session without consuming it.
func (c *call) verifyPhoneCode(info *PhoneVerificationInfo) (state.PhoneVerificationRecord, error) {
	if info == nil {
		return state.PhoneVerificationRecord{}, badRequestDetail(CodeInvalidArgument, "phoneVerificationInfo is required")
	}
	if info.SessionInfo == "" {
		return state.PhoneVerificationRecord{}, badRequest(CodeMissingSessionInfo)
	}
	if info.Code == "" {
		return state.PhoneVerificationRecord{}, badRequest(CodeMissingCode)
	}
	rec, ok := c.st.GetVerificationCode(info.SessionInfo)
	if !ok {
		return state.PhoneVerificationRecord{}, badRequest(CodeInvalidSessionInfo)
	}
	if rec.Code != info.Code {
		return state.PhoneVerificationRecord{}, badRequest(CodeInvalidCode)
	}
	return rec, nil
}

// MfaEnrollmentFinalizeRequest completes an enrollment with the SMS code.
type MfaEnrollmentFinalizeRequest struct {
	IDToken               string                 `json:"idToken,omitempty"`
	DisplayName           string                 `json:"displayName,omitempty"`
	PhoneVerificationInfo *PhoneVerificationInfo `json:"phoneVerificationInfo,omitempty"`
	TenantID              string                 `json:"tenantId,omitempty"`
}

// MfaEnrollmentFinalizeResponse carries tokens that include the new factor.
type MfaEnrollmentFinalizeResponse struct {
	Tokens
}

// MfaEnrollmentFinalize redeems the enrollment code, stores the second
// factor and returns tokens that carry it.
func (e *Engine) MfaEnrollmentFinalize(ctx context.Context, t Target, req *MfaEnrollmentFinalizeRequest) (*MfaEnrollmentFinalizeResponse, error) {
	if req == nil {
		req = &MfaEnrollmentFinalizeRequest{}
	}
	return run(e, ctx, OpMfaEnrollmentFinalize, t, req.TenantID, func(c *call) (*MfaEnrollmentFinalizeResponse, error) {
		info, err := c.enrollingUser(req.IDToken)
		if err != nil {
			return nil, err
		}
		rec, err := c.verifyPhoneCode(req.PhoneVerificationInfo)
		if err != nil {
			return nil, err
		}
		if enrolledPhone(info.user, rec.PhoneNumber) {
			return nil, badRequest(CodeSecondFactorExists)
		}

		enrollmentID, err := c.newEnrollmentID(func(id string) bool {
			_, ok := findEnrollment(info.user, id)
			return ok
		})
		if err != nil {
			return nil, storeError(err)
		}
		enrollment := state.MfaEnrollment{
			MfaEnrollmentID:       enrollmentID,
			DisplayName:           req.DisplayName,
			PhoneInfo:             rec.PhoneNumber,
			UnobfuscatedPhoneInfo: rec.PhoneNumber,
			EnrolledAt:            c.now.UTC().Format(lastRefreshLayout),
		}
		user, err := c.st.UpdateUser(info.user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			u.MfaInfo = append(u.MfaInfo, enrollment)
		})
		if err != nil {
			return nil, storeError(err)
		}
		c.st.DeleteVerificationCode(rec.SessionInfo)

		tokens, err := c.issueTokens(user, tokenContext{
			provider: info.signInProvider,
			secondFactor: &state.SecondFactor{
				Identifier: enrollment.MfaEnrollmentID,
				Provider:   state.ProviderPhone,
			},
		})
		if err != nil {
			return nil, err
		}
		c.e.metrics.Inc(MetricMfaEnrolled)
		return &MfaEnrollmentFinalizeResponse{Tokens: tokens}, nil
	})
}

// MfaEnrollmentWithdrawRequest removes one second factor.
type MfaEnrollmentWithdrawRequest struct {
	IDToken         string `json:"idToken,omitempty"`
	MfaEnrollmentID string `json:"mfaEnrollmentId,omitempty"`
	TenantID        string `json:"tenantId,omitempty"`
}

// MfaEnrollmentWithdrawResponse carries reissued tokens.
type MfaEnrollmentWithdrawResponse struct {
	Tokens
}

// MfaEnrollmentWithdraw removes one second factor and reissues tokens
// without second factor claims.
func (e *Engine) MfaEnrollmentWithdraw(ctx context.Context, t Target, req *MfaEnrollmentWithdrawRequest) (*MfaEnrollmentWithdrawResponse, error) {
	if req == nil {
		req = &MfaEnrollmentWithdrawRequest{}
	}
	return run(e, ctx, OpMfaEnrollmentWithdraw, t, req.TenantID, func(c *call) (*MfaEnrollmentWithdrawResponse, error) {
		if c.st.DisableAuth() {
			return nil, badRequest(CodeProjectDisabled)
		}
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		if req.MfaEnrollmentID == "" {
			return nil, badRequest(CodeMissingMfaEnrollmentID)
		}
		if _, ok := findEnrollment(info.user, req.MfaEnrollmentID); !ok {
			return nil, badRequest(CodeMfaEnrollmentNotFound)
		}
		user, err := c.st.UpdateUser(info.user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			kept := u.MfaInfo[:0:0]
			for _, e := range u.MfaInfo {
				if e.MfaEnrollmentID != req.MfaEnrollmentID {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				kept = nil
			}
			u.MfaInfo = kept
		})
		if err != nil {
			return nil, storeError(err)
		}
		tokens, err := c.issueTokens(user, tokenContext{provider: info.signInProvider})
		if err != nil {
			return nil, err
		}
		return &MfaEnrollmentWithdrawResponse{Tokens: tokens}, nil
	})
}

// newEnrollmentID returns an enrollment id that taken does not reject.
func (c *call) newEnrollmentID(taken func(string) bool) (string, error) {
	return ident.Unique(func() string { return c.st.IDs().ID(mfaEnrollmentIDLength) }, taken)
}

func findEnrollment(u *state.UserInfo, id string) (state.MfaEnrollment, bool) {
	for _, e := range u.MfaInfo {
		if e.MfaEnrollmentID == id {
			return e, true
		}
	}
	return state.MfaEnrollment{}, false
}

// PhoneSignInInfo is unused by the emulator and accepted for compatibility.
type PhoneSignInInfo struct {
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

// MfaSignInStartRequest sends an SMS code to an enrolled factor.
type MfaSignInStartRequest struct {
	MfaPendingCredential string           `json:"mfaPendingCredential,omitempty"`
	MfaEnrollmentID      string           `json:"mfaEnrollmentId,omitempty"`
	PhoneSignInInfo      *PhoneSignInInfo `json:"phoneSignInInfo,omitempty"`
	TenantID             string           `json:"tenantId,omitempty"`
}

// MfaSignInStartResponse returns the session the SMS code belongs to.
type MfaSignInStartResponse struct {
	PhoneResponseInfo PhoneSessionInfo `json:"phoneResponseInfo"`
}

// MfaSignInStart sends a code to the enrolled phone of a pending sign-in.
func (e *Engine) MfaSignInStart(ctx context.Context, t Target, req *MfaSignInStartRequest) (*MfaSignInStartResponse, error) {
	if req == nil {
		req = &MfaSignInStartRequest{}
	}
	return run(e, ctx, OpMfaSignInStart, t, req.TenantID, func(c *call) (*MfaSignInStartResponse, error) {
		user, _, err := c.pendingUser(req.MfaPendingCredential)
		if err != nil {
			return nil, err
		}
		if req.MfaEnrollmentID == "" {
			return nil, badRequest(CodeMissingMfaEnrollmentID)
		}
		enrollment, ok := findEnrollment(user, req.MfaEnrollmentID)
		if !ok {
			return nil, badRequestDetail(CodeMfaEnrollmentNotFound, "No second factor with ID "+req.MfaEnrollmentID)
		}
		rec, err := c.issueVerificationCode(enrollment.UnobfuscatedPhoneInfo)
		if err != nil {
			return nil, storeError(err)
		}
		return &MfaSignInStartResponse{PhoneResponseInfo: PhoneSessionInfo{SessionInfo: rec.SessionInfo}}, nil
	})
}

// pendingUser resolves the user a pending credential was issued for.
func (c *call) pendingUser(raw string) (*state.UserInfo, *mfaPendingCredential, error) {
	if c.st.DisableAuth() {
		return nil, nil, badRequest(CodeProjectDisabled)
	}
	cred, err := c.decodePendingCredential(raw)
	if err != nil {
		return nil, nil, err
	}
	if !c.st.MfaConfig().PhoneEnabled() {
		return nil, nil, badRequestDetail(CodeOperationNotAllowed, "SMS based MFA not enabled.")
	}
	user := c.st.GetUserByLocalID(cred.LocalID)
	if user == nil {
		return nil, nil, badRequest(CodeUserNotFound)
	}
	if user.Disabled {
		return nil, nil, badRequest(CodeUserDisabled)
	}
	return user, cred, nil
}

// MfaSignInFinalizeRequest completes a pending sign-in with the SMS code.
type MfaSignInFinalizeRequest struct {
	MfaPendingCredential  string                 `json:"mfaPendingCredential,omitempty"`
	PhoneVerificationInfo *PhoneVerificationInfo `json:"phoneVerificationInfo,omitempty"`
	TenantID              string                 `json:"tenantId,omitempty"`
}

// MfaSignInFinalizeResponse carries tokens that include the second factor.
type MfaSignInFinalizeResponse struct {
	Tokens
}

// MfaSignInFinalize completes a pending sign-in with the SMS code.
func (e *Engine) MfaSignInFinalize(ctx context.Context, t Target, req *MfaSignInFinalizeRequest) (*MfaSignInFinalizeResponse, error) {
	if req == nil {
		req = &MfaSignInFinalizeRequest{}
	}
	return run(e, ctx, OpMfaSignInFinalize, t, req.TenantID, func(c *call) (*MfaSignInFinalizeResponse, error) {
		user, cred, err := c.pendingUser(req.MfaPendingCredential)
		if err != nil {
			return nil, err
		}
		rec, err := c.verifyPhoneCode(req.PhoneVerificationInfo)
		if err != nil {
			return nil, err
		}
		var enrollment state.MfaEnrollment
		found := false
		for _, e := range user.MfaInfo {
			if e.UnobfuscatedPhoneInfo == rec.PhoneNumber {
				enrollment, found = e, true
				break
			}
		}
		if !found {
			return nil, badRequest(CodeMfaEnrollmentNotFound)
		}
		user, err = c.st.UpdateUser(user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
			u.LastLoginAt = c.nowMillis()
		})
		if err != nil {
			return nil, storeError(err)
		}
		c.st.DeleteVerificationCode(rec.SessionInfo)
		tokens, err := c.issueTokens(user, tokenContext{
			provider: cred.SignInProvider,
			secondFactor: &state.SecondFactor{
				Identifier: enrollment.MfaEnrollmentID,
				Provider:   state.ProviderPhone,
			},
		})
		if err != nil {
			return nil, err
		}
		c.e.metrics.Inc(MetricMfaSignIn)
		c.e.metrics.Inc(MetricSignInSuccess)
		return &MfaSignInFinalizeResponse{Tokens: tokens}, nil
	})
}
