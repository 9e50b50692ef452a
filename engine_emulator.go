package authemu

import (
	"context"
	"errors"

	"github.com/MrEthical07/authemu/state"
)

// EmulatorRequest selects the namespace of an emulator-only call.
type EmulatorRequest struct {
	TenantID string `json:"tenantId,omitempty"`
}

// DeleteAllAccountsResponse is the empty reply of DeleteAllAccounts.
type DeleteAllAccountsResponse struct{}

// DeleteAllAccounts drops every account, code and refresh token of the
// namespace.
func (e *Engine) DeleteAllAccounts(ctx context.Context, t Target, req *EmulatorRequest) (*DeleteAllAccountsResponse, error) {
	if req == nil {
		req = &EmulatorRequest{}
	}
	return run(e, ctx, OpEmulatorDeleteAccounts, t, req.TenantID, func(c *call) (*DeleteAllAccountsResponse, error) {
		c.st.DeleteAllAccounts()
		return &DeleteAllAccountsResponse{}, nil
	})
}

// SignInConfig holds the project-wide sign-in switches.
type SignInConfig struct {
	AllowDuplicateEmails *bool `json:"allowDuplicateEmails,omitempty"`
}

// EmulatorConfig is the project-wide emulator configuration.
type EmulatorConfig struct {
	SignIn    SignInConfig    `json:"signIn"`
	UsageMode state.UsageMode `json:"usageMode"`
}

func (c *call) emulatorConfig() *EmulatorConfig {
	dup := !c.agent.OneAccountPerEmail()
	return &EmulatorConfig{
		SignIn:    SignInConfig{AllowDuplicateEmails: &dup},
		UsageMode: c.agent.UsageMode(),
	}
}

// GetEmulatorConfig returns the project-wide settings.
func (e *Engine) GetEmulatorConfig(ctx context.Context, t Target, _ *EmulatorRequest) (*EmulatorConfig, error) {
	return run(e, ctx, OpEmulatorGetConfig, t, "", func(c *call) (*EmulatorConfig, error) {
		return c.emulatorConfig(), nil
	})
}

// UpdateEmulatorConfigRequest changes the settings that are set.
type UpdateEmulatorConfigRequest struct {
	SignIn    *SignInConfig   `json:"signIn,omitempty"`
	UsageMode state.UsageMode `json:"usageMode,omitempty"`
}

// UpdateEmulatorConfig changes project-wide settings. PASSTHROUGH can only
// be selected while the project and its tenants have no accounts, and
// duplicate emails can only be disallowed again once no two accounts share
// an email. A rejected update leaves both settings unchanged.
func (e *Engine) UpdateEmulatorConfig(ctx context.Context, t Target, req *UpdateEmulatorConfigRequest) (*EmulatorConfig, error) {
	if req == nil {
		req = &UpdateEmulatorConfigRequest{}
	}
	return run(e, ctx, OpEmulatorUpdateConfig, t, "", func(c *call) (*EmulatorConfig, error) {
		prevOneAccount := c.agent.OneAccountPerEmail()
		if req.SignIn != nil && req.SignIn.AllowDuplicateEmails != nil {
			if err := c.agent.SetOneAccountPerEmail(!*req.SignIn.AllowDuplicateEmails); err != nil {
				if errors.Is(err, state.ErrDuplicateEmails) {
					return nil, badRequestDetail(CodeInvalidArgument, "Unable to disallow duplicate emails while accounts share an email.")
				}
				return nil, internalError(err)
			}
		}
		switch req.UsageMode {
		case "":
		case state.UsageModeDefault, state.UsageModePassthrough:
			if err := c.agent.SetUsageMode(req.UsageMode); err != nil {
				_ = c.agent.SetOneAccountPerEmail(prevOneAccount)
				if errors.Is(err, state.ErrUsersPresent) {
					return nil, badRequestDetail(CodeUsersPresent, "Unable to set usageMode to PASSTHROUGH while users are present.")
				}
				return nil, internalError(err)
			}
		default:
			_ = c.agent.SetOneAccountPerEmail(prevOneAccount)
			return nil, badRequestDetail(CodeInvalidArgument, "Invalid usageMode: "+string(req.UsageMode))
		}
		return c.emulatorConfig(), nil
	})
}

// ListOobCodesResponse lists outstanding action codes.
type ListOobCodesResponse struct {
	OobCodes []state.OobRecord `json:"oobCodes"`
}

// ListOobCodes returns the unredeemed action codes of the namespace in
// issue order.
func (e *Engine) ListOobCodes(ctx context.Context, t Target, req *EmulatorRequest) (*ListOobCodesResponse, error) {
	if req == nil {
		req = &EmulatorRequest{}
	}
	return run(e, ctx, OpEmulatorListOobCodes, t, req.TenantID, func(c *call) (*ListOobCodesResponse, error) {
		codes := c.st.ListOobCodes()
		if codes == nil {
			codes = []state.OobRecord{}
		}
		return &ListOobCodesResponse{OobCodes: codes}, nil
	})
}

// ListVerificationCodesResponse lists open SMS sessions.
type ListVerificationCodesResponse struct {
	VerificationCodes []state.PhoneVerificationRecord `json:"verificationCodes"`
}

// ListVerificationCodes returns the open SMS sessions in issue order.
func (e *Engine) ListVerificationCodes(ctx context.Context, t Target, req *EmulatorRequest) (*ListVerificationCodesResponse, error) {
	if req == nil {
		req = &EmulatorRequest{}
	}
	return run(e, ctx, OpEmulatorListVerifCodes, t, req.TenantID, func(c *call) (*ListVerificationCodesResponse, error) {
		codes := c.st.ListVerificationCodes()
		if codes == nil {
			codes = []state.PhoneVerificationRecord{}
		}
		return &ListVerificationCodesResponse{VerificationCodes: codes}, nil
	})
}
