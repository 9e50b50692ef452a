package authemu

import (
	"testing"

	"github.com/MrEthical07/authemu/state"
)

func createTenant(t *testing.T, env *testEnv, cfg TenantConfig) *state.Tenant {
	t.Helper()
	tenant, err := env.engine.CreateTenant(env.ctx, adminTarget, &CreateTenantRequest{cfg})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func TestTenantLifecycle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CreateTenant(env.ctx, userTarget, &CreateTenantRequest{})
	expectCode(t, err, CodeInsufficientPermission)

	tenant := createTenant(t, env, TenantConfig{DisplayName: "Acme Corp"})
	if tenant.AllowPasswordSignup || tenant.EnableAnonymousUser || tenant.DisableAuth {
		t.Fatalf("expected sign-in toggles to default to false, got %+v", tenant)
	}
	if tenant.Name != "projects/test-project/tenants/"+tenant.TenantID {
		t.Fatalf("unexpected tenant name %q", tenant.Name)
	}

	got, err := env.engine.GetTenant(env.ctx, adminTarget, &TenantRequest{TenantID: tenant.TenantID})
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.DisplayName != "Acme Corp" {
		t.Fatalf("unexpected tenant %+v", got)
	}

	_, err = env.engine.GetTenant(env.ctx, adminTarget, &TenantRequest{})
	expectCode(t, err, CodeMissingTenantID)

	if _, err := env.engine.DeleteTenant(env.ctx, adminTarget, &TenantRequest{TenantID: tenant.TenantID}); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}
	_, err = env.engine.GetTenant(env.ctx, adminTarget, &TenantRequest{TenantID: tenant.TenantID})
	expectCode(t, err, CodeTenantNotFound)
}

func TestListTenantsPagination(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"one", "two", "three"} {
		createTenant(t, env, TenantConfig{DisplayName: name})
	}

	size := Int64(2)
	first, err := env.engine.ListTenants(env.ctx, adminTarget, &ListTenantsRequest{PageSize: &size})
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(first.Tenants) != 2 || first.NextPageToken == "" {
		t.Fatalf("expected a full first page with a token, got %+v", first)
	}
	second, err := env.engine.ListTenants(env.ctx, adminTarget, &ListTenantsRequest{PageSize: &size, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(second.Tenants) != 1 || second.NextPageToken != "" {
		t.Fatalf("expected the last tenant without a token, got %+v", second)
	}

	all := Int64(-1)
	everything, err := env.engine.ListTenants(env.ctx, adminTarget, &ListTenantsRequest{PageSize: &all})
	if err != nil {
		t.Fatalf("list tenants: %v", err)
	}
	if len(everything.Tenants) != 3 {
		t.Fatalf("expected 3 tenants, got %d", len(everything.Tenants))
	}
}

func TestUpdateTenantMask(t *testing.T) {
	env := newTestEnv(t)
	yes := true
	tenant := createTenant(t, env, TenantConfig{
		DisplayName:         "Acme",
		AllowPasswordSignup: &yes,
		EnableAnonymousUser: &yes,
	})

	// Without a mask only present fields change.
	updated, err := env.engine.UpdateTenant(env.ctx, adminTarget, &UpdateTenantRequest{
		TenantID:     tenant.TenantID,
		TenantConfig: TenantConfig{DisplayName: "Acme 2"},
	})
	if err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	if updated.DisplayName != "Acme 2" || !updated.AllowPasswordSignup || !updated.EnableAnonymousUser {
		t.Fatalf("unexpected tenant after patch %+v", updated)
	}

	// A masked field missing from the request is cleared.
	updated, err = env.engine.UpdateTenant(env.ctx, adminTarget, &UpdateTenantRequest{
		TenantID:   tenant.TenantID,
		UpdateMask: "enableAnonymousUser,mfaConfig.state",
		TenantConfig: TenantConfig{
			MfaConfig: &state.MfaConfig{State: state.MfaStateEnabled},
		},
	})
	if err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	if updated.EnableAnonymousUser || !updated.AllowPasswordSignup {
		t.Fatalf("expected only enableAnonymousUser to be cleared, got %+v", updated)
	}
	if updated.MfaConfig.State != state.MfaStateEnabled || len(updated.MfaConfig.EnabledProviders) != 0 {
		t.Fatalf("unexpected mfa config %+v", updated.MfaConfig)
	}

	_, err = env.engine.UpdateTenant(env.ctx, adminTarget, &UpdateTenantRequest{TenantID: tenant.TenantID, UpdateMask: "name"})
	expectCode(t, err, CodeInvalidArgument)
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	yes := true
	tenant := createTenant(t, env, TenantConfig{DisplayName: "Acme", AllowPasswordSignup: &yes})
	tenantTarget := Target{ProjectID: userTarget.ProjectID, TenantID: tenant.TenantID}

	inTenant, err := env.engine.SignUp(env.ctx, tenantTarget, &SignUpRequest{Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("tenant sign-up: %v", err)
	}
	// The same email is free in the agent namespace.
	inAgent := env.signUp(t, "alice@example.com", "secret1")
	if inAgent.LocalID == inTenant.LocalID {
		t.Fatal("expected distinct accounts per namespace")
	}

	_, err = env.engine.SignInWithPassword(env.ctx, tenantTarget, &SignInWithPasswordRequest{Email: "alice@example.com", Password: "secret1", TenantID: "other"})
	expectCode(t, err, CodeTenantIDMismatch)

	// A tenant ID token is rejected by the agent namespace.
	_, err = env.engine.Lookup(env.ctx, userTarget, &LookupRequest{IDToken: inTenant.IDToken})
	expectCode(t, err, CodeTenantIDMismatch)

	closed := createTenant(t, env, TenantConfig{DisplayName: "Closed"})
	_, err = env.engine.SignUp(env.ctx, Target{ProjectID: userTarget.ProjectID, TenantID: closed.TenantID}, &SignUpRequest{Email: "bob@example.com", Password: "secret1"})
	expectCode(t, err, CodeOperationNotAllowed)

	_, err = env.engine.SignUp(env.ctx, Target{TenantID: "missing"}, &SignUpRequest{})
	expectCode(t, err, CodeTenantNotFound)
}

func TestTenantTestPhoneNumbers(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.CreateTenant(env.ctx, adminTarget, &CreateTenantRequest{TenantConfig{
		TestPhoneNumbers: map[string]string{"+15555550100": "12ab"},
	}})
	expectCode(t, err, CodeInvalidTestPhoneNumber)

	tenant := createTenant(t, env, TenantConfig{
		DisplayName:      "Phones",
		TestPhoneNumbers: map[string]string{"+15555550100": "123456"},
	})
	target := Target{ProjectID: userTarget.ProjectID, TenantID: tenant.TenantID}
	sent, err := env.engine.SendVerificationCode(env.ctx, target, &SendVerificationCodeRequest{PhoneNumber: "+15555550100"})
	if err != nil {
		t.Fatalf("send verification code: %v", err)
	}
	if code := env.verificationCode(t, target, sent.SessionInfo); code != "123456" {
		t.Fatalf("expected the configured test code, got %q", code)
	}
}
