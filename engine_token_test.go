package authemu

import (
	"testing"
	"time"

	"github.com/MrEthical07/authemu/jwt"
)

func TestGrantTokenKeepsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	created := env.signUp(t, "alice@example.com", "secret1")

	env.clock.Advance(10 * time.Minute)
	resp, err := env.engine.GrantToken(env.ctx, userTarget, &GrantTokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: created.RefreshToken,
	})
	if err != nil {
		t.Fatalf("grant token: %v", err)
	}
	if resp.RefreshToken != created.RefreshToken {
		t.Fatalf("expected refresh token to be returned unchanged, got %q", resp.RefreshToken)
	}
	if resp.UserID != created.LocalID || resp.ProjectID != "test-project" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.AccessToken != resp.IDToken || resp.ExpiresIn != "3600" {
		t.Fatalf("unexpected token fields %+v", resp)
	}
	claims := decodeClaims(t, resp.IDToken)
	if got := intClaim(t, claims, "iat"); got != env.clock.Now().Unix() {
		t.Fatalf("expected a freshly minted token, iat=%d", got)
	}
	if env.lookup(t, created.LocalID).LastRefreshAt == "" {
		t.Fatal("expected lastRefreshAt to be recorded")
	}
}

func TestGrantTokenErrors(t *testing.T) {
	env := newTestEnv(t)
	created := env.signUp(t, "alice@example.com", "secret1")

	cases := []struct {
		name string
		req  *GrantTokenRequest
		code string
	}{
		{"missing grant type", &GrantTokenRequest{RefreshToken: created.RefreshToken}, CodeMissingGrantType},
		{"wrong grant type", &GrantTokenRequest{GrantType: "password", RefreshToken: created.RefreshToken}, CodeInvalidGrantType},
		{"missing token", &GrantTokenRequest{GrantType: "refresh_token"}, CodeMissingRefreshToken},
		{"unknown token", &GrantTokenRequest{GrantType: "refresh_token", RefreshToken: "nope"}, CodeInvalidRefreshToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.GrantToken(env.ctx, userTarget, tc.req)
			expectCode(t, err, tc.code)
		})
	}

	disabled := true
	if _, err := env.engine.Update(env.ctx, adminTarget, &UpdateRequest{LocalID: created.LocalID, DisableUser: &disabled}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	_, err := env.engine.GrantToken(env.ctx, userTarget, &GrantTokenRequest{GrantType: "refresh_token", RefreshToken: created.RefreshToken})
	expectCode(t, err, CodeUserDisabled)
}

func TestGrantTokenFindsTenantRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	allow := true
	tenant, err := env.engine.CreateTenant(env.ctx, adminTarget, &CreateTenantRequest{TenantConfig{DisplayName: "Acme", AllowPasswordSignup: &allow}})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	created, err := env.engine.SignUp(env.ctx, userTarget, &SignUpRequest{Email: "a@acme.com", Password: "secret1", TenantID: tenant.TenantID})
	if err != nil {
		t.Fatalf("tenant sign-up: %v", err)
	}

	resp, err := env.engine.GrantToken(env.ctx, userTarget, &GrantTokenRequest{GrantType: "refresh_token", RefreshToken: created.RefreshToken})
	if err != nil {
		t.Fatalf("grant token: %v", err)
	}
	if got := firebaseClaim(t, decodeClaims(t, resp.IDToken), "tenant"); got != tenant.TenantID {
		t.Fatalf("expected tenant claim %s, got %q", tenant.TenantID, got)
	}
}

func TestCreateSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	created := env.signUp(t, "alice@example.com", "secret1")

	_, err := env.engine.CreateSessionCookie(env.ctx, userTarget, &CreateSessionCookieRequest{IDToken: created.IDToken})
	expectCode(t, err, CodeInsufficientPermission)

	now := env.clock.Now().Unix()
	cases := []struct {
		name    string
		seconds Int64
		want    time.Duration
	}{
		{"default", 0, 14 * 24 * time.Hour},
		{"within bounds", 3600, time.Hour},
		{"below minimum", 60, 5 * time.Minute},
		{"above maximum", Int64(30 * 24 * 3600), 14 * 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := env.engine.CreateSessionCookie(env.ctx, adminTarget, &CreateSessionCookieRequest{
				IDToken:       created.IDToken,
				ValidDuration: tc.seconds,
			})
			if err != nil {
				t.Fatalf("create session cookie: %v", err)
			}
			claims := decodeClaims(t, resp.SessionCookie)
			if got := intClaim(t, claims, "exp") - now; got != int64(tc.want/time.Second) {
				t.Fatalf("expected lifetime %v, got %ds", tc.want, got)
			}
			if iss := jwt.StringClaim(claims, "iss"); iss != "https://session.firebase.google.com/test-project" {
				t.Fatalf("unexpected issuer %q", iss)
			}
			if sub := jwt.StringClaim(claims, "sub"); sub != created.LocalID {
				t.Fatalf("expected subject %s, got %q", created.LocalID, sub)
			}
		})
	}
}
