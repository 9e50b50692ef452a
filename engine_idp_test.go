package authemu

import (
	"net/url"
	"testing"
)

func idpPostBody(t *testing.T, providerID string, claims map[string]any) string {
	t.Helper()
	form := url.Values{}
	form.Set("providerId", providerID)
	form.Set("id_token", mustEncode(t, claims))
	return form.Encode()
}

func TestSignInWithIdpCreatesAndReusesAccount(t *testing.T) {
	env := newTestEnv(t)
	body := idpPostBody(t, "google.com", map[string]any{
		"sub":            "g-123",
		"email":          "Alice@Example.com",
		"email_verified": true,
		"name":           "Alice",
	})

	first, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: body})
	if err != nil {
		t.Fatalf("idp sign-in: %v", err)
	}
	if !first.IsNewUser || first.Email != "alice@example.com" || first.IDToken == "" {
		t.Fatalf("unexpected first response %+v", first)
	}
	if got := firebaseClaim(t, decodeClaims(t, first.IDToken), "sign_in_provider"); got != "google.com" {
		t.Fatalf("expected google.com sign-in provider, got %q", got)
	}

	second, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: body})
	if err != nil {
		t.Fatalf("idp sign-in: %v", err)
	}
	if second.IsNewUser || second.LocalID != first.LocalID {
		t.Fatalf("expected the same account, got %+v", second)
	}
}

func TestSignInWithIdpValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		req  *SignInWithIdpRequest
		code string
	}{
		{"missing request uri", &SignInWithIdpRequest{PostBody: "providerId=google.com"}, CodeMissingRequestURI},
		{"password provider", &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: "providerId=password&id_token=x"}, CodeInvalidCredentialOrProvider},
		{"missing id_token", &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: "providerId=google.com"}, CodeInvalidIdpResponse},
		{"missing sub", &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: idpPostBody(t, "google.com", map[string]any{"email": "a@example.com"})}, CodeInvalidIdpResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.SignInWithIdp(env.ctx, userTarget, tc.req)
			expectCode(t, err, tc.code)
		})
	}

	_, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: "providerId=google.com&access_token=abc"})
	if KindOf(err) != KindNotImplemented {
		t.Fatalf("expected access_token sign-in to be not implemented, got %v", err)
	}
}

func TestSignInWithIdpUnverifiedEmailNeedsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	existing := env.signUp(t, "alice@example.com", "secret1")

	resp, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{
		RequestURI: "http://localhost",
		PostBody: idpPostBody(t, "facebook.com", map[string]any{
			"sub":   "fb-1",
			"email": "alice@example.com",
		}),
	})
	if err != nil {
		t.Fatalf("idp sign-in: %v", err)
	}
	if !resp.NeedConfirmation || resp.LocalID != existing.LocalID || resp.IDToken != "" {
		t.Fatalf("expected needConfirmation without tokens, got %+v", resp)
	}
}

func TestSignInWithIdpVerifiedEmailTakesOverUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	existing := env.signUp(t, "alice@example.com", "secret1")

	resp, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{
		RequestURI: "http://localhost",
		PostBody: idpPostBody(t, "google.com", map[string]any{
			"sub":            "g-1",
			"email":          "alice@example.com",
			"email_verified": true,
		}),
	})
	if err != nil {
		t.Fatalf("idp sign-in: %v", err)
	}
	if resp.LocalID != existing.LocalID || resp.IsNewUser {
		t.Fatalf("expected the existing account, got %+v", resp)
	}
	user := env.lookup(t, existing.LocalID)
	if !user.EmailVerified || user.PasswordHash != "" {
		t.Fatalf("expected the password to be removed and email verified, got %+v", user)
	}
	_, err = env.engine.SignInWithPassword(env.ctx, userTarget, &SignInWithPasswordRequest{Email: "alice@example.com", Password: "secret1"})
	expectCode(t, err, CodeInvalidPassword)
}

func TestSignInWithIdpLinksToCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	a := env.signUp(t, "a@example.com", "secret1")
	b := env.signUp(t, "b@example.com", "secret1")
	body := idpPostBody(t, "github.com", map[string]any{"sub": "gh-1"})

	linked, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: body, IDToken: a.IDToken})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked.LocalID != a.LocalID {
		t.Fatalf("expected link to %s, got %s", a.LocalID, linked.LocalID)
	}

	_, err = env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: body, IDToken: b.IDToken})
	expectCode(t, err, CodeFederatedUserIDAlreadyLinked)
}

func TestSignInWithIdpAccountMatching(t *testing.T) {
	cases := []struct {
		name         string
		allowDup     bool
		setup        func(t *testing.T, env *testEnv) string
		claims       map[string]any
		wantNew      bool
		wantRecycled bool
		wantEmail    string
		wantSameAs   bool
	}{
		{
			name:     "duplicates allowed creates account without email",
			allowDup: true,
			setup: func(t *testing.T, env *testEnv) string {
				return env.signUp(t, "alice@example.com", "secret1").LocalID
			},
			claims:  map[string]any{"sub": "fb-1", "email": "alice@example.com"},
			wantNew: true,
		},
		{
			name: "verified email previously held by another identity",
			setup: func(t *testing.T, env *testEnv) string {
				resp, err := env.engine.SignInWithIdp(env.ctx, userTarget, &SignInWithIdpRequest{
					RequestURI: "http://localhost",
					PostBody:   idpPostBody(t, "google.com", map[string]any{"sub": "g-old", "email": "alice@example.com", "email_verified": true}),
				})
				if err != nil {
					t.Fatalf("seed idp sign-in: %v", err)
				}
				return resp.LocalID
			},
			claims:       map[string]any{"sub": "g-new", "email": "alice@example.com", "email_verified": true},
			wantRecycled: true,
			wantEmail:    "alice@example.com",
			wantSameAs:   true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tc.allowDup {
				allow := true
				if _, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{SignIn: &SignInConfig{AllowDuplicateEmails: &allow}}); err != nil {
					t.Fatalf("allow duplicates: %v", err)
				}
			}
			existing := tc.setup(t, env)
			providerID := "google.com"
			if tc.allowDup {
				providerID = "facebook.com"
			}
			req := &SignInWithIdpRequest{RequestURI: "http://localhost", PostBody: idpPostBody(t, providerID, tc.claims)}

			resp, err := env.engine.SignInWithIdp(env.ctx, userTarget, req)
			if err != nil {
				t.Fatalf("idp sign-in: %v", err)
			}
			if resp.IsNewUser != tc.wantNew || resp.EmailRecycled != tc.wantRecycled || resp.NeedConfirmation {
				t.Fatalf("unexpected response %+v", resp)
			}
			if (resp.LocalID == existing) != tc.wantSameAs {
				t.Fatalf("existing %s, got %s", existing, resp.LocalID)
			}
			if got := env.lookup(t, resp.LocalID).Email; got != tc.wantEmail {
				t.Fatalf("expected stored email %q, got %q", tc.wantEmail, got)
			}

			again, err := env.engine.SignInWithIdp(env.ctx, userTarget, req)
			if err != nil {
				t.Fatalf("repeat idp sign-in: %v", err)
			}
			if again.IsNewUser || again.LocalID != resp.LocalID {
				t.Fatalf("expected repeat sign-in to match by provider identity, got %+v", again)
			}
		})
	}
}
