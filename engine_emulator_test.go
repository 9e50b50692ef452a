package authemu

import (
	"testing"

	"github.com/MrEthical07/authemu/state"
)

func TestPassthroughRequiresEmptyProject(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice@example.com", "secret1")

	_, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{UsageMode: state.UsageModePassthrough})
	expectCode(t, err, CodeUsersPresent)

	if _, err := env.engine.DeleteAllAccounts(env.ctx, userTarget, nil); err != nil {
		t.Fatalf("delete all accounts: %v", err)
	}
	cfg, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{UsageMode: state.UsageModePassthrough})
	if err != nil {
		t.Fatalf("switch to passthrough: %v", err)
	}
	if cfg.UsageMode != state.UsageModePassthrough {
		t.Fatalf("expected passthrough, got %s", cfg.UsageMode)
	}

	_, err = env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{UsageMode: "TURBO"})
	expectCode(t, err, CodeInvalidArgument)
}

func TestPassthroughMode(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{UsageMode: state.UsageModePassthrough}); err != nil {
		t.Fatalf("switch to passthrough: %v", err)
	}

	_, err := env.engine.SignUp(env.ctx, userTarget, &SignUpRequest{Email: "alice@example.com", Password: "secret1"})
	expectCode(t, err, CodeUnsupportedPassthroughOp)

	resp, err := env.engine.SignInWithCustomToken(env.ctx, userTarget, &SignInWithCustomTokenRequest{Token: `{"uid":"someone"}`})
	if err != nil {
		t.Fatalf("custom token sign-in: %v", err)
	}
	claims := decodeClaims(t, resp.IDToken)
	if got := firebaseClaim(t, claims, "usage_mode"); got != "passthrough" {
		t.Fatalf("expected usage_mode claim, got %q", got)
	}
	count, err := env.engine.Query(env.ctx, adminTarget, &QueryRequest{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count.RecordsCount != "0" {
		t.Fatalf("passthrough sign-in must not store accounts, got %s", count.RecordsCount)
	}
}

func TestAllowDuplicateEmails(t *testing.T) {
	env := newTestEnv(t)
	allow := true
	cfg, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{SignIn: &SignInConfig{AllowDuplicateEmails: &allow}})
	if err != nil {
		t.Fatalf("update config: %v", err)
	}
	if cfg.SignIn.AllowDuplicateEmails == nil || !*cfg.SignIn.AllowDuplicateEmails {
		t.Fatalf("expected duplicate emails to be allowed, got %+v", cfg.SignIn)
	}

	first := env.signUp(t, "alice@example.com", "secret1")
	second := env.signUp(t, "alice@example.com", "secret2")
	if first.LocalID == second.LocalID {
		t.Fatal("expected two accounts sharing an email")
	}

	got, err := env.engine.GetEmulatorConfig(env.ctx, userTarget, nil)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.UsageMode != state.UsageModeDefault || !*got.SignIn.AllowDuplicateEmails {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestEmulatorCodeListsAreNeverNil(t *testing.T) {
	env := newTestEnv(t)
	oob, err := env.engine.ListOobCodes(env.ctx, userTarget, nil)
	if err != nil {
		t.Fatalf("list oob codes: %v", err)
	}
	verif, err := env.engine.ListVerificationCodes(env.ctx, userTarget, nil)
	if err != nil {
		t.Fatalf("list verification codes: %v", err)
	}
	if oob.OobCodes == nil || verif.VerificationCodes == nil {
		t.Fatal("expected empty lists rather than nil")
	}
}

func TestDisallowDuplicateEmailsRejectedWhileShared(t *testing.T) {
	env := newTestEnv(t)
	allow, deny := true, false
	if _, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{SignIn: &SignInConfig{AllowDuplicateEmails: &allow}}); err != nil {
		t.Fatalf("allow duplicates: %v", err)
	}
	first := env.signUp(t, "alice@example.com", "secret1")
	env.signUp(t, "alice@example.com", "secret2")

	_, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{SignIn: &SignInConfig{AllowDuplicateEmails: &deny}})
	expectCode(t, err, CodeInvalidArgument)

	cfg, err := env.engine.GetEmulatorConfig(env.ctx, userTarget, nil)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if !*cfg.SignIn.AllowDuplicateEmails {
		t.Fatal("rejected update must keep duplicates allowed")
	}

	resp := env.signIn(t, "alice@example.com", "secret1")
	if resp.LocalID != first.LocalID {
		t.Fatalf("expected earliest account %s, got %s", first.LocalID, resp.LocalID)
	}
}

func TestRejectedUsageModeKeepsEmailPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "alice@example.com", "secret1")
	allow := true
	_, err := env.engine.UpdateEmulatorConfig(env.ctx, userTarget, &UpdateEmulatorConfigRequest{
		SignIn:    &SignInConfig{AllowDuplicateEmails: &allow},
		UsageMode: state.UsageModePassthrough,
	})
	expectCode(t, err, CodeUsersPresent)

	cfg, err := env.engine.GetEmulatorConfig(env.ctx, userTarget, nil)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if *cfg.SignIn.AllowDuplicateEmails || cfg.UsageMode != state.UsageModeDefault {
		t.Fatalf("rejected update must not change settings, got %+v", cfg)
	}
}
