package state

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type seqIDs struct{ n int }

func (s *seqIDs) ID(length int) string {
	s.n++
	return fmt.Sprintf("%0*d", length, s.n)
}

func (s *seqIDs) Digits(length int) string { return strings.Repeat("7", length) }

func (s *seqIDs) Token() string {
	s.n++
	return fmt.Sprintf("tok%d", s.n)
}

type constIDs struct{}

func (constIDs) ID(length int) string     { return strings.Repeat("a", length) }
func (constIDs) Digits(length int) string { return strings.Repeat("1", length) }
func (constIDs) Token() string            { return "same" }

func newTestAgent(t *testing.T) *AgentProjectState {
	t.Helper()
	return NewAgentProjectState("demo", &seqIDs{}, AgentOptions{OneAccountPerEmail: true})
}

func TestCreateUserGeneratesLocalID(t *testing.T) {
	a := newTestAgent(t)
	u, err := a.CreateUser(UserInfo{Email: "a@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if len(u.LocalID) != localIDLength {
		t.Fatalf("unexpected local id %q", u.LocalID)
	}
	got := a.GetUserByEmail("a@example.com")
	if got == nil || got.LocalID != u.LocalID {
		t.Fatalf("expected lookup by email to find %s, got %+v", u.LocalID, got)
	}
	if _, ok := got.Provider(ProviderPassword); !ok {
		t.Fatal("expected synthesized password provider")
	}
}

func TestCreateUserWithLocalIDRejectsExisting(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.CreateUserWithLocalID("u1", UserInfo{}); err != nil {
		t.Fatalf("CreateUserWithLocalID failed: %v", err)
	}
	_, err := a.CreateUserWithLocalID("u1", UserInfo{DisplayName: "other"})
	if !errors.Is(err, ErrLocalIDExists) {
		t.Fatalf("expected ErrLocalIDExists, got %v", err)
	}
	if a.GetUserByLocalID("u1").DisplayName != "" {
		t.Fatal("existing user must not be overwritten")
	}
}

func TestUniqueEmailEnforcedOnlyWhenOneAccountPerEmail(t *testing.T) {
	a := newTestAgent(t)
	if _, err := a.CreateUserWithLocalID("u1", UserInfo{Email: "x@example.com"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := a.CreateUserWithLocalID("u2", UserInfo{Email: "x@example.com"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if a.GetUserByLocalID("u2") != nil {
		t.Fatal("failed create must leave no user behind")
	}

	if err := a.SetOneAccountPerEmail(false); err != nil {
		t.Fatalf("SetOneAccountPerEmail failed: %v", err)
	}
	if _, err := a.CreateUserWithLocalID("u2", UserInfo{Email: "x@example.com"}); err != nil {
		t.Fatalf("expected duplicate email to be allowed, got %v", err)
	}
	if got := a.GetUserByEmail("x@example.com"); got.LocalID != "u1" {
		t.Fatalf("expected earliest user u1, got %s", got.LocalID)
	}
}

func TestUniqueEmailCheckedOnlyWhenEmailChanges(t *testing.T) {
	a := newTestAgent(t)
	// Duplicates created while allowed stay editable after the policy flips.
	a.oneAccountPerEmail = false
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{Email: "x@example.com"})
	_, _ = a.CreateUserWithLocalID("u2", UserInfo{Email: "x@example.com"})
	a.oneAccountPerEmail = true

	if _, err := a.UpdateUser("u2", UpdateOptions{}, func(u *UserInfo) { u.DisplayName = "two" }); err != nil {
		t.Fatalf("unchanged email must not be rechecked, got %v", err)
	}
	_, _ = a.CreateUserWithLocalID("u3", UserInfo{Email: "y@example.com"})
	_, err := a.UpdateUser("u3", UpdateOptions{}, func(u *UserInfo) { u.Email = "x@example.com" })
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists on email change, got %v", err)
	}
}

func TestUpdateUserRejectsPhoneConflictAndKeepsState(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{PhoneNumber: "+15555550100"})
	_, _ = a.CreateUserWithLocalID("u2", UserInfo{DisplayName: "two"})

	_, err := a.UpdateUser("u2", UpdateOptions{}, func(u *UserInfo) {
		u.DisplayName = "changed"
		u.PhoneNumber = "+15555550100"
	})
	if !errors.Is(err, ErrPhoneExists) {
		t.Fatalf("expected ErrPhoneExists, got %v", err)
	}
	if got := a.GetUserByLocalID("u2"); got.DisplayName != "two" || got.PhoneNumber != "" {
		t.Fatalf("state changed after failed update: %+v", got)
	}
	if got := a.GetUserByPhoneNumber("+15555550100"); got.LocalID != "u1" {
		t.Fatalf("phone index corrupted: %+v", got)
	}
}

func TestUpdateUserProviderLinkConflict(t *testing.T) {
	a := newTestAgent(t)
	google := ProviderUserInfo{ProviderID: ProviderGoogle, RawID: "g-1"}
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{ProviderUserInfo: []ProviderUserInfo{google}})
	_, _ = a.CreateUserWithLocalID("u2", UserInfo{})

	_, err := a.UpdateUser("u2", UpdateOptions{UpsertProviders: []ProviderUserInfo{google}}, nil)
	if !errors.Is(err, ErrProviderLinked) {
		t.Fatalf("expected ErrProviderLinked, got %v", err)
	}
	if got := a.GetUserByProviderRawID(ProviderGoogle, "g-1"); got.LocalID != "u1" {
		t.Fatalf("expected u1 to keep the link, got %+v", got)
	}

	if _, err := a.UpdateUser("u1", UpdateOptions{DeleteProviders: []string{ProviderGoogle}}, nil); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	if a.GetUserByProviderRawID(ProviderGoogle, "g-1") != nil {
		t.Fatal("expected provider index entry to be removed")
	}
	if _, err := a.UpdateUser("u2", UpdateOptions{UpsertProviders: []ProviderUserInfo{google}}, nil); err != nil {
		t.Fatalf("link after unlink failed: %v", err)
	}
}

func TestUpdateUserRejectsDuplicateEnrollmentAndValidSinceRegression(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{ValidSince: 100})

	_, err := a.UpdateUser("u1", UpdateOptions{}, func(u *UserInfo) {
		u.MfaInfo = []MfaEnrollment{{MfaEnrollmentID: "e1"}, {MfaEnrollmentID: "e1"}}
	})
	if !errors.Is(err, ErrDuplicateEnrollmentID) {
		t.Fatalf("expected ErrDuplicateEnrollmentID, got %v", err)
	}

	_, err = a.UpdateUser("u1", UpdateOptions{}, func(u *UserInfo) { u.ValidSince = 99 })
	if !errors.Is(err, ErrValidSinceRegressed) {
		t.Fatalf("expected ErrValidSinceRegressed, got %v", err)
	}
}

func TestEnrollmentIDsOnlyUniquePerUser(t *testing.T) {
	a := newTestAgent(t)
	e := []MfaEnrollment{{MfaEnrollmentID: "shared"}}
	if _, err := a.CreateUserWithLocalID("u1", UserInfo{MfaInfo: e}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := a.CreateUserWithLocalID("u2", UserInfo{MfaInfo: e}); err != nil {
		t.Fatalf("enrollment ids are scoped to their owner, got %v", err)
	}
}

func TestSyncBuiltinProviders(t *testing.T) {
	a := newTestAgent(t)
	u, _ := a.CreateUserWithLocalID("u1", UserInfo{Email: "p@example.com", PasswordHash: "h", PhoneNumber: "+15555550101"})
	if len(u.ProviderUserInfo) != 2 {
		t.Fatalf("expected password and phone providers, got %+v", u.ProviderUserInfo)
	}

	u, err := a.UpdateUser("u1", UpdateOptions{}, func(u *UserInfo) {
		u.PasswordHash = ""
		u.PhoneNumber = ""
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(u.ProviderUserInfo) != 0 {
		t.Fatalf("expected providers to be removed, got %+v", u.ProviderUserInfo)
	}
}

func TestOverwriteUserWithLocalID(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{Email: "old@example.com", ValidSince: 50})
	u, err := a.OverwriteUserWithLocalID("u1", UserInfo{Email: "new@example.com"})
	if err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if u.ValidSince != 50 {
		t.Fatalf("expected validSince to be kept at 50, got %d", u.ValidSince)
	}
	if a.GetUserByEmail("old@example.com") != nil {
		t.Fatal("old email still indexed")
	}
	if a.GetUserByEmail("new@example.com") == nil {
		t.Fatal("new email not indexed")
	}
}

func TestDeleteUserDropsRefreshTokens(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{})
	token, err := a.CreateRefreshToken(RefreshTokenRecord{LocalID: "u1", Provider: ProviderAnonymous})
	if err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}
	if err := a.DeleteUser("u1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, _, ok := a.GetRefreshToken(token); ok {
		t.Fatal("refresh token survived user deletion")
	}
	if err := a.DeleteUser("u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGenerateLocalIDExhaustion(t *testing.T) {
	a := NewAgentProjectState("demo", constIDs{}, AgentOptions{})
	if _, err := a.CreateUser(UserInfo{}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := a.CreateUser(UserInfo{}); err == nil {
		t.Fatal("expected exhaustion error on colliding generator")
	}
}

func TestGetUsersByEmailOrProviderEmail(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{Email: "m@example.com"})
	_, _ = a.CreateUserWithLocalID("u2", UserInfo{ProviderUserInfo: []ProviderUserInfo{{ProviderID: ProviderGoogle, RawID: "r", Email: "m@example.com"}}})
	users := a.GetUsersByEmailOrProviderEmail("m@example.com")
	if len(users) != 2 || users[0].LocalID != "u1" || users[1].LocalID != "u2" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestInitialEmailIndex(t *testing.T) {
	a := newTestAgent(t)
	_, _ = a.CreateUserWithLocalID("u1", UserInfo{Email: "new@example.com", InitialEmail: "old@example.com"})
	if got := a.GetUserByInitialEmail("old@example.com"); got == nil || got.LocalID != "u1" {
		t.Fatalf("expected u1 by initial email, got %+v", got)
	}
	_, _ = a.UpdateUser("u1", UpdateOptions{}, func(u *UserInfo) { u.InitialEmail = "" })
	if a.GetUserByInitialEmail("old@example.com") != nil {
		t.Fatal("initial email index not cleared")
	}
}

func TestReturnedUsersAreCopies(t *testing.T) {
	a := newTestAgent(t)
	u, _ := a.CreateUserWithLocalID("u1", UserInfo{DisplayName: "orig"})
	u.DisplayName = "mutated"
	if a.GetUserByLocalID("u1").DisplayName != "orig" {
		t.Fatal("caller mutation leaked into the store")
	}
}
