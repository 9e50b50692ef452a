package authemu

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/authemu/jwt"
	"github.com/MrEthical07/authemu/state"
)

const grantTypeRefreshToken = "refresh_token"

// GrantTokenRequest is the securetoken exchange. Field names follow the
// OAuth form encoding.
type GrantTokenRequest struct {
	GrantType    string `json:"grant_type,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// GrantTokenResponse is the securetoken reply to a refresh.
type GrantTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    string `json:"expires_in"`
	IDToken      string `json:"id_token"`
	ProjectID    string `json:"project_id"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	UserID       string `json:"user_id"`
}

// GrantToken exchanges a refresh token for a new ID token. The refresh
// token itself is returned unchanged.
func (e *Engine) GrantToken(ctx context.Context, t Target, req *GrantTokenRequest) (*GrantTokenResponse, error) {
	if req == nil {
		req = &GrantTokenRequest{}
	}
	return run(e, ctx, OpGrantToken, t, "", func(c *call) (*GrantTokenResponse, error) {
		return c.grantToken(req)
	})
}

func (c *call) grantToken(req *GrantTokenRequest) (*GrantTokenResponse, error) {
	switch {
	case req.GrantType == "":
		return nil, badRequest(CodeMissingGrantType)
	case req.GrantType != grantTypeRefreshToken:
		return nil, badRequest(CodeInvalidGrantType)
	case req.RefreshToken == "":
		return nil, badRequest(CodeMissingRefreshToken)
	}

	rec, user, ok := c.findRefreshToken(req.RefreshToken)
	if !ok {
		return nil, badRequest(CodeInvalidRefreshToken)
	}
	if user.Disabled {
		return nil, badRequest(CodeUserDisabled)
	}

	user, err := c.st.UpdateUser(user.LocalID, state.UpdateOptions{}, func(u *state.UserInfo) {
		u.LastRefreshAt = c.now.UTC().Format(lastRefreshLayout)
	})
	if err != nil {
		return nil, storeError(err)
	}
	idToken, err := c.mintIDToken(user, tokenContext{
		provider:     rec.Provider,
		extraClaims:  rec.ExtraClaims,
		secondFactor: rec.SecondFactor,
	})
	if err != nil {
		return nil, err
	}
	c.e.metrics.Inc(MetricRefreshGranted)
	return &GrantTokenResponse{
		AccessToken:  idToken,
		ExpiresIn:    strconv.FormatInt(int64(c.e.config.IDToken.TTL/time.Second), 10),
		IDToken:      idToken,
		ProjectID:    c.st.ProjectID(),
		RefreshToken: req.RefreshToken,
		TokenType:    "Bearer",
		UserID:       user.LocalID,
	}, nil
}

// findRefreshToken looks the token up in the call's namespace or, for
// agent-level calls, in the agent and every tenant. On success c.st is the
// namespace that issued it.
func (c *call) findRefreshToken(token string) (state.RefreshTokenRecord, *state.UserInfo, bool) {
	if c.tenant() != nil {
		return c.st.GetRefreshToken(token)
	}
	if rec, u, ok := c.agent.GetRefreshToken(token); ok {
		return rec, u, true
	}
	for _, ts := range c.agent.Tenants() {
		if rec, u, ok := ts.GetRefreshToken(token); ok {
			c.st = ts
			c.target.TenantID = ts.TenantID()
			return rec, u, true
		}
	}
	return state.RefreshTokenRecord{}, nil, false
}

// CreateSessionCookieRequest exchanges an ID token for a session cookie.
type CreateSessionCookieRequest struct {
	IDToken string `json:"idToken,omitempty"`
	// ValidDuration is in seconds. Zero means the longest allowed duration.
	ValidDuration Int64  `json:"validDuration,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
}

// CreateSessionCookieResponse carries the session cookie.
type CreateSessionCookieResponse struct {
	SessionCookie string `json:"sessionCookie"`
}

// CreateSessionCookie turns an ID token into a longer lived session cookie.
func (e *Engine) CreateSessionCookie(ctx context.Context, t Target, req *CreateSessionCookieRequest) (*CreateSessionCookieResponse, error) {
	if req == nil {
		req = &CreateSessionCookieRequest{}
	}
	return run(e, ctx, OpCreateSessionCookie, t, req.TenantID, func(c *call) (*CreateSessionCookieResponse, error) {
		info, err := c.parseIDToken(req.IDToken)
		if err != nil {
			return nil, err
		}
		validFor := c.sessionCookieDuration(time.Duration(req.ValidDuration) * time.Second)

		claims := make(map[string]any, len(info.claims))
		for k, v := range info.claims {
			claims[k] = v
		}
		now := c.nowSeconds()
		claims["iss"] = sessionCookieIssuerPrefix + c.st.ProjectID()
		claims["iat"] = now
		claims["exp"] = now + int64(validFor/time.Second)

		cookie, err := jwt.Encode(claims)
		if err != nil {
			return nil, internalError(err)
		}
		return &CreateSessionCookieResponse{SessionCookie: cookie}, nil
	})
}

func (c *call) sessionCookieDuration(d time.Duration) time.Duration {
	bounds := c.e.config.SessionCookie
	switch {
	case d <= 0:
		return bounds.MaxDuration
	case d < bounds.MinDuration:
		return bounds.MinDuration
	case d > bounds.MaxDuration:
		return bounds.MaxDuration
	}
	return d
}
