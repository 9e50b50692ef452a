package authemu

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authemu/internal/validate"
	"github.com/MrEthical07/authemu/state"
)

const (
	defaultTenantPageSize = 20
	maxTenantPageSize     = 1000
)

// TenantConfig is the mutable part of a tenant. Nil fields are left alone
// on create (false) and on patch without an update mask.
type TenantConfig struct {
	DisplayName           string            `json:"displayName,omitempty"`
	AllowPasswordSignup   *bool             `json:"allowPasswordSignup,omitempty"`
	EnableEmailLinkSignin *bool             `json:"enableEmailLinkSignin,omitempty"`
	EnableAnonymousUser   *bool             `json:"enableAnonymousUser,omitempty"`
	DisableAuth           *bool             `json:"disableAuth,omitempty"`
	MfaConfig             *state.MfaConfig  `json:"mfaConfig,omitempty"`
	TestPhoneNumbers      map[string]string `json:"testPhoneNumbers,omitempty"`
}

// normalize validates c and rewrites its test phone numbers to E.164.
func (c *TenantConfig) normalize() error {
	if c.MfaConfig != nil {
		switch c.MfaConfig.State {
		case "", state.MfaStateEnabled, state.MfaStateDisabled:
		default:
			return badRequestDetail(CodeInvalidArgument, "mfaConfig.state must be ENABLED or DISABLED")
		}
		for _, p := range c.MfaConfig.EnabledProviders {
			if p != state.MfaProviderPhone {
				return badRequestDetail(CodeInvalidArgument, "mfaConfig.enabledProviders only supports PHONE_SMS")
			}
		}
	}
	numbers, err := validate.TestPhoneNumbers(c.TestPhoneNumbers)
	switch {
	case errors.Is(err, validate.ErrInvalidTestCode):
		return badRequestDetail(CodeInvalidTestPhoneNumber, "Test phone codes must be 6 digits.")
	case err != nil:
		return badRequestDetail(CodeInvalidTestPhoneNumber, "Invalid test phone number.")
	}
	c.TestPhoneNumbers = numbers
	return nil
}

// CreateTenantRequest carries the settings of a new tenant.
type CreateTenantRequest struct {
	TenantConfig
}

// CreateTenant adds a tenant to the project.
func (e *Engine) CreateTenant(ctx context.Context, t Target, req *CreateTenantRequest) (*state.Tenant, error) {
	if req == nil {
		req = &CreateTenantRequest{}
	}
	return run(e, ctx, OpTenantsCreate, t, "", func(c *call) (*state.Tenant, error) {
		if err := req.normalize(); err != nil {
			return nil, err
		}
		cfg := state.Tenant{
			DisplayName:           req.DisplayName,
			AllowPasswordSignup:   boolValue(req.AllowPasswordSignup),
			EnableEmailLinkSignin: boolValue(req.EnableEmailLinkSignin),
			EnableAnonymousUser:   boolValue(req.EnableAnonymousUser),
			DisableAuth:           boolValue(req.DisableAuth),
			TestPhoneNumbers:      req.TestPhoneNumbers,
		}
		if req.MfaConfig != nil {
			cfg.MfaConfig = *req.MfaConfig
		}
		ts, err := c.agent.CreateTenant(cfg)
		if err != nil {
			return nil, storeError(err)
		}
		c.e.metrics.Inc(MetricTenantCreated)
		out := ts.Tenant()
		return &out, nil
	})
}

func boolValue(b *bool) bool { return b != nil && *b }

// TenantRequest names the tenant to read or delete.
type TenantRequest struct {
	TenantID string `json:"tenantId,omitempty"`
}

// requireTenant returns the tenant the call resolved to.
func (c *call) requireTenant() (*state.TenantProjectState, error) {
	ts := c.tenant()
	if ts == nil {
		return nil, badRequest(CodeMissingTenantID)
	}
	return ts, nil
}

// GetTenant returns the settings of one tenant.
func (e *Engine) GetTenant(ctx context.Context, t Target, req *TenantRequest) (*state.Tenant, error) {
	if req == nil {
		req = &TenantRequest{}
	}
	return run(e, ctx, OpTenantsGet, t, req.TenantID, func(c *call) (*state.Tenant, error) {
		ts, err := c.requireTenant()
		if err != nil {
			return nil, err
		}
		out := ts.Tenant()
		return &out, nil
	})
}

// DeleteTenantResponse is the empty reply of DeleteTenant.
type DeleteTenantResponse struct{}

// DeleteTenant removes a tenant together with its accounts and codes.
func (e *Engine) DeleteTenant(ctx context.Context, t Target, req *TenantRequest) (*DeleteTenantResponse, error) {
	if req == nil {
		req = &TenantRequest{}
	}
	return run(e, ctx, OpTenantsDelete, t, req.TenantID, func(c *call) (*DeleteTenantResponse, error) {
		ts, err := c.requireTenant()
		if err != nil {
			return nil, err
		}
		ts.Delete()
		c.e.metrics.Inc(MetricTenantDeleted)
		return &DeleteTenantResponse{}, nil
	})
}

// ListTenantsRequest pages through tenants in id order.
type ListTenantsRequest struct {
	// PageSize defaults to 20 and is clamped to [1, 1000]. A negative size
	// returns every tenant.
	PageSize  *Int64 `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

// ListTenantsResponse is one page of tenants.
type ListTenantsResponse struct {
	Tenants       []state.Tenant `json:"tenants"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// ListTenants returns up to PageSize tenants after PageToken.
func (e *Engine) ListTenants(ctx context.Context, t Target, req *ListTenantsRequest) (*ListTenantsResponse, error) {
	if req == nil {
		req = &ListTenantsRequest{}
	}
	return run(e, ctx, OpTenantsList, t, "", func(c *call) (*ListTenantsResponse, error) {
		size := defaultTenantPageSize
		if req.PageSize != nil {
			size = int(*req.PageSize)
			switch {
			case size < 0:
				size = -1
			case size == 0:
				size = 1
			case size > maxTenantPageSize:
				size = maxTenantPageSize
			}
		}

		fetch := size
		if size >= 0 {
			fetch = size + 1
		}
		tenants := c.agent.ListTenants(req.PageToken, fetch)
		resp := &ListTenantsResponse{Tenants: tenants}
		if size >= 0 && len(tenants) > size {
			resp.Tenants = tenants[:size]
			resp.NextPageToken = tenants[size-1].TenantID
		}
		return resp, nil
	})
}

// UpdateTenantRequest changes the fields named in UpdateMask.
type UpdateTenantRequest struct {
	TenantID   string `json:"tenantId,omitempty"`
	UpdateMask string `json:"updateMask,omitempty"`
	TenantConfig
}

var tenantMaskFields = map[string]bool{
	"displayName":                true,
	"allowPasswordSignup":        true,
	"enableEmailLinkSignin":      true,
	"enableAnonymousUser":        true,
	"disableAuth":                true,
	"mfaConfig":                  true,
	"mfaConfig.state":            true,
	"mfaConfig.enabledProviders": true,
	"testPhoneNumbers":           true,
}

// UpdateTenant patches a tenant. With an update mask only the named fields
// change, and named fields missing from the request are cleared. Without
// one every field present in the request is applied.
func (e *Engine) UpdateTenant(ctx context.Context, t Target, req *UpdateTenantRequest) (*state.Tenant, error) {
	if req == nil {
		req = &UpdateTenantRequest{}
	}
	return run(e, ctx, OpTenantsPatch, t, req.TenantID, func(c *call) (*state.Tenant, error) {
		ts, err := c.requireTenant()
		if err != nil {
			return nil, err
		}
		if err := req.normalize(); err != nil {
			return nil, err
		}

		mask := map[string]bool{}
		if req.UpdateMask != "" {
			for _, f := range strings.Split(req.UpdateMask, ",") {
				f = strings.TrimSpace(f)
				if !tenantMaskFields[f] {
					return nil, badRequestDetail(CodeInvalidArgument, "Invalid update mask field: "+f)
				}
				mask[f] = true
			}
		}
		has := func(field string, present bool) bool {
			if len(mask) == 0 {
				return present
			}
			return mask[field]
		}

		out := ts.UpdateTenant(func(cfg *state.Tenant) {
			if has("displayName", req.DisplayName != "") {
				cfg.DisplayName = req.DisplayName
			}
			if has("allowPasswordSignup", req.AllowPasswordSignup != nil) {
				cfg.AllowPasswordSignup = boolValue(req.AllowPasswordSignup)
			}
			if has("enableEmailLinkSignin", req.EnableEmailLinkSignin != nil) {
				cfg.EnableEmailLinkSignin = boolValue(req.EnableEmailLinkSignin)
			}
			if has("enableAnonymousUser", req.EnableAnonymousUser != nil) {
				cfg.EnableAnonymousUser = boolValue(req.EnableAnonymousUser)
			}
			if has("disableAuth", req.DisableAuth != nil) {
				cfg.DisableAuth = boolValue(req.DisableAuth)
			}
			var mfa state.MfaConfig
			if req.MfaConfig != nil {
				mfa = *req.MfaConfig
			}
			if has("mfaConfig", req.MfaConfig != nil) {
				cfg.MfaConfig = mfa
			} else {
				if mask["mfaConfig.state"] {
					cfg.MfaConfig.State = mfa.State
				}
				if mask["mfaConfig.enabledProviders"] {
					cfg.MfaConfig.EnabledProviders = mfa.EnabledProviders
				}
			}
			if has("testPhoneNumbers", req.TestPhoneNumbers != nil) {
				cfg.TestPhoneNumbers = req.TestPhoneNumbers
			}
		})
		return &out, nil
	})
}
