package authemu

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authemu/jwt"
	"github.com/MrEthical07/authemu/notify"
	"github.com/MrEthical07/authemu/state"
)

// seqIDs hands out predictable ids so tests can reason about ordering.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

func (s *seqIDs) ID(length int) string {
	id := fmt.Sprintf("id%d", s.next())
	if len(id) < length {
		id += strings.Repeat("x", length-len(id))
	}
	return id
}

func (s *seqIDs) Digits(length int) string {
	return fmt.Sprintf("%0*d", length, s.next()%1000000)
}

func (s *seqIDs) Token() string {
	return fmt.Sprintf("tok%d", s.next())
}

// stickyIDs returns a fixed id from ID, or a fixed token from Token, while
// armed, then falls back to sequential values.
type stickyIDs struct {
	seqIDs
	mu          sync.Mutex
	id          string
	repeat      int
	token       string
	tokenRepeat int
}

func (s *stickyIDs) armToken(token string, repeat int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.tokenRepeat = token, repeat
}

func (s *stickyIDs) Token() string {
	s.mu.Lock()
	if s.tokenRepeat > 0 {
		s.tokenRepeat--
		tok := s.token
		s.mu.Unlock()
		return tok
	}
	s.mu.Unlock()
	return s.seqIDs.Token()
}

func (s *stickyIDs) arm(id string, repeat int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id, s.repeat = id, repeat
}

func (s *stickyIDs) remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

func (s *stickyIDs) ID(length int) string {
	s.mu.Lock()
	if s.repeat > 0 {
		s.repeat--
		id := s.id
		s.mu.Unlock()
		return id
	}
	s.mu.Unlock()
	return s.seqIDs.ID(length)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingNotifier) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.messages...)
}

type testEnv struct {
	engine   *Engine
	clock    *fakeClock
	notifier *recordingNotifier
	ctx      context.Context
}

var (
	userTarget  = Target{ProjectID: "test-project"}
	adminTarget = Target{ProjectID: "test-project", Privileged: true}
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, New())
}

func newTestEnvWith(t *testing.T, b *Builder) *testEnv {
	t.Helper()
	return newTestEnvWithIDs(t, b, &seqIDs{})
}

func newTestEnvWithIDs(t *testing.T, b *Builder, ids state.IDGenerator) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		ctx:      context.Background(),
	}
	engine, err := b.
		WithClock(env.clock.Now).
		WithIDGenerator(ids).
		WithNotifier(env.notifier).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) signUp(t *testing.T, email, pw string) *SignUpResponse {
	t.Helper()
	resp, err := env.engine.SignUp(env.ctx, userTarget, &SignUpRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signUp %s: %v", email, err)
	}
	return resp
}

func (env *testEnv) signIn(t *testing.T, email, pw string) *SignInWithPasswordResponse {
	t.Helper()
	resp, err := env.engine.SignInWithPassword(env.ctx, userTarget, &SignInWithPasswordRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("signInWithPassword %s: %v", email, err)
	}
	return resp
}

func (env *testEnv) lookup(t *testing.T, localID string) *state.UserInfo {
	t.Helper()
	resp, err := env.engine.Lookup(env.ctx, adminTarget, &LookupRequest{LocalID: []string{localID}})
	if err != nil {
		t.Fatalf("lookup %s: %v", localID, err)
	}
	if len(resp.Users) != 1 {
		t.Fatalf("lookup %s: expected 1 user, got %d", localID, len(resp.Users))
	}
	return resp.Users[0]
}

func (env *testEnv) oobCodes(t *testing.T, target Target) []state.OobRecord {
	t.Helper()
	resp, err := env.engine.ListOobCodes(env.ctx, target, nil)
	if err != nil {
		t.Fatalf("list oob codes: %v", err)
	}
	return resp.OobCodes
}

func (env *testEnv) verificationCode(t *testing.T, target Target, sessionInfo string) string {
	t.Helper()
	resp, err := env.engine.ListVerificationCodes(env.ctx, target, nil)
	if err != nil {
		t.Fatalf("list verification codes: %v", err)
	}
	for _, rec := range resp.VerificationCodes {
		if rec.SessionInfo == sessionInfo {
			return rec.Code
		}
	}
	t.Fatalf("no verification code for session %s", sessionInfo)
	return ""
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil error", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func decodeClaims(t *testing.T, raw string) map[string]any {
	t.Helper()
	tok, err := jwt.Decode(raw)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return tok.Claims
}

func firebaseClaim(t *testing.T, claims map[string]any, name string) string {
	t.Helper()
	fb, ok := claims["firebase"].(map[string]any)
	if !ok {
		t.Fatalf("token has no firebase claim: %v", claims)
	}
	return jwt.StringClaim(fb, name)
}

func mustEncode(t *testing.T, claims map[string]any) string {
	t.Helper()
	s, err := jwt.Encode(claims)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return s
}

func intClaim(t *testing.T, claims map[string]any, name string) int64 {
	t.Helper()
	v, ok := jwt.Int64Claim(claims, name)
	if !ok {
		t.Fatalf("token has no numeric %s claim: %v", name, claims)
	}
	return v
}
