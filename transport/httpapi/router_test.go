package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrEthical07/authemu"
)

const project = "demo-project"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine, err := authemu.New().Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	srv := httptest.NewServer(NewRouter(engine, Options{}))
	t.Cleanup(srv.Close)
	return srv
}

type reply struct {
	status int
	header http.Header
	body   map[string]any
}

func do(t *testing.T, srv *httptest.Server, method, path, contentType, body string, owner bool) reply {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if owner {
		req.Header.Set("Authorization", "Bearer owner")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := reply{status: resp.StatusCode, header: resp.Header}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return out
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string, owner bool) reply {
	t.Helper()
	return do(t, srv, http.MethodPost, path, "application/json", body, owner)
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func errorOf(t *testing.T, r reply) map[string]any {
	t.Helper()
	e, ok := r.body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", r.body)
	}
	return e
}

func signUp(t *testing.T, srv *httptest.Server, email string) map[string]any {
	t.Helper()
	r := postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/accounts:signUp?key=fake-api-key",
		`{"email":"`+email+`","password":"secret123","returnSecureToken":true}`, false)
	if r.status != http.StatusOK {
		t.Fatalf("signUp status %d: %v", r.status, r.body)
	}
	return r.body
}

func TestSignUpAndSignInOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	created := signUp(t, srv, "alice@example.com")
	if str(created, "idToken") == "" || str(created, "localId") == "" {
		t.Fatalf("signUp response missing tokens: %v", created)
	}

	r := postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/accounts:signInWithPassword",
		`{"email":"alice@example.com","password":"secret123"}`, false)
	if r.status != http.StatusOK {
		t.Fatalf("signIn status %d: %v", r.status, r.body)
	}
	if got := str(r.body, "localId"); got != str(created, "localId") {
		t.Fatalf("signIn localId = %q, want %q", got, str(created, "localId"))
	}
	if r.header.Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id on response")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	req.Header.Set("X-Request-Id", "req-42")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("X-Request-Id = %q, want req-42", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	r := postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/accounts:signInWithPassword",
		`{"email":"ghost@example.com","password":"secret123"}`, false)
	if r.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", r.status)
	}
	e := errorOf(t, r)
	if code, _ := e["code"].(float64); code != http.StatusBadRequest {
		t.Fatalf("error.code = %v", e["code"])
	}
	if msg := str(e, "message"); msg != authemu.CodeEmailNotFound {
		t.Fatalf("error.message = %q", msg)
	}
	if str(e, "status") != "INVALID_ARGUMENT" {
		t.Fatalf("error.status = %q", str(e, "status"))
	}
	details, _ := e["errors"].([]any)
	if len(details) != 1 {
		t.Fatalf("error.errors = %v", e["errors"])
	}
	d := details[0].(map[string]any)
	if str(d, "reason") != "invalid" || str(d, "domain") != "global" {
		t.Fatalf("error detail = %v", d)
	}
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	srv := newTestServer(t)
	r := postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/accounts:signUp", `[1,2`, false)
	if r.status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", r.status)
	}
	if msg := str(errorOf(t, r), "message"); !strings.HasPrefix(msg, authemu.CodeInvalidArgument) {
		t.Fatalf("message = %q", msg)
	}
}

func TestUnknownRoutes(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/identitytoolkit.googleapis.com/v1/accounts:teleport", http.StatusNotFound},
		{http.MethodPost, "/identitytoolkit.googleapis.com/v2/accounts/mfaSignIn:withdraw", http.StatusNotFound},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
		{http.MethodGet, "/securetoken.googleapis.com/v1/token", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		r := do(t, srv, tc.method, tc.path, "", "", false)
		if r.status != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, r.status, tc.want)
			continue
		}
		errorOf(t, r)
	}
}

func TestAdminRoutesNeedOwner(t *testing.T) {
	srv := newTestServer(t)
	signUp(t, srv, "alice@example.com")
	path := "/identitytoolkit.googleapis.com/v1/projects/" + project + "/accounts:batchGet?maxResults=10"

	r := do(t, srv, http.MethodGet, path, "", "", false)
	if r.status != http.StatusBadRequest {
		t.Fatalf("anonymous batchGet status = %d", r.status)
	}
	if msg := str(errorOf(t, r), "message"); !strings.HasPrefix(msg, authemu.CodeInsufficientPermission) {
		t.Fatalf("message = %q", msg)
	}

	r = do(t, srv, http.MethodGet, path, "", "", true)
	if r.status != http.StatusOK {
		t.Fatalf("owner batchGet status = %d: %v", r.status, r.body)
	}
	users, _ := r.body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("users = %v", r.body["users"])
	}
}

func TestSecureTokenAcceptsForm(t *testing.T) {
	srv := newTestServer(t)
	created := signUp(t, srv, "alice@example.com")

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", str(created, "refreshToken"))
	r := do(t, srv, http.MethodPost, "/securetoken.googleapis.com/v1/token?key=fake-api-key",
		"application/x-www-form-urlencoded", form.Encode(), false)
	if r.status != http.StatusOK {
		t.Fatalf("token status = %d: %v", r.status, r.body)
	}
	if str(r.body, "id_token") == "" || str(r.body, "refresh_token") == "" {
		t.Fatalf("token response = %v", r.body)
	}

	r = postJSON(t, srv, "/securetoken.googleapis.com/v1/token", `{"grant_type":"password"}`, false)
	if msg := str(errorOf(t, r), "message"); msg != authemu.CodeInvalidGrantType {
		t.Fatalf("message = %q", msg)
	}
}

func TestTenantLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := "/identitytoolkit.googleapis.com/v2/projects/" + project + "/tenants"

	r := postJSON(t, srv, base, `{"displayName":"first","allowPasswordSignup":true}`, true)
	if r.status != http.StatusOK {
		t.Fatalf("create status = %d: %v", r.status, r.body)
	}
	id := str(r.body, "tenantId")
	if id == "" {
		t.Fatalf("create response = %v", r.body)
	}

	r = do(t, srv, http.MethodPatch, base+"/"+id+"?updateMask=displayName", "application/json", `{"displayName":"second"}`, true)
	if r.status != http.StatusOK || str(r.body, "displayName") != "second" {
		t.Fatalf("patch = %d %v", r.status, r.body)
	}

	r = do(t, srv, http.MethodGet, base+"/"+id, "", "", true)
	if r.status != http.StatusOK || str(r.body, "displayName") != "second" {
		t.Fatalf("get = %d %v", r.status, r.body)
	}

	r = do(t, srv, http.MethodGet, base, "", "", true)
	tenants, _ := r.body["tenants"].([]any)
	if r.status != http.StatusOK || len(tenants) != 1 {
		t.Fatalf("list = %d %v", r.status, r.body)
	}

	// Tenant-scoped account routes take the tenant from the path.
	r = postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/projects/"+project+"/tenants/"+id+"/accounts:signUp",
		`{"email":"bob@example.com","password":"secret123"}`, false)
	if r.status != http.StatusOK {
		t.Fatalf("tenant signUp = %d %v", r.status, r.body)
	}

	r = do(t, srv, http.MethodDelete, base+"/"+id, "", "", true)
	if r.status != http.StatusOK {
		t.Fatalf("delete = %d %v", r.status, r.body)
	}
	r = do(t, srv, http.MethodGet, base+"/"+id, "", "", true)
	if msg := str(errorOf(t, r), "message"); !strings.HasPrefix(msg, authemu.CodeTenantNotFound) {
		t.Fatalf("get after delete = %q", msg)
	}
}

func TestEmulatorRoutes(t *testing.T) {
	srv := newTestServer(t)
	signUp(t, srv, "alice@example.com")

	r := postJSON(t, srv, "/identitytoolkit.googleapis.com/v1/accounts:sendOobCode",
		`{"requestType":"PASSWORD_RESET","email":"alice@example.com"}`, false)
	if r.status != http.StatusOK {
		t.Fatalf("sendOobCode = %d %v", r.status, r.body)
	}

	emu := "/emulator/v1/projects/" + project
	r = do(t, srv, http.MethodGet, emu+"/oobCodes", "", "", false)
	codes, _ := r.body["oobCodes"].([]any)
	if r.status != http.StatusOK || len(codes) != 1 {
		t.Fatalf("oobCodes = %d %v", r.status, r.body)
	}
	link := str(codes[0].(map[string]any), "oobLink")
	if !strings.HasPrefix(link, srv.URL+"/emulator/action?") {
		t.Fatalf("oobLink %q does not point at %s", link, srv.URL)
	}

	r = do(t, srv, http.MethodPatch, emu+"/config", "application/json", `{"signIn":{"allowDuplicateEmails":true}}`, false)
	signIn, _ := r.body["signIn"].(map[string]any)
	if r.status != http.StatusOK || signIn["allowDuplicateEmails"] != true {
		t.Fatalf("update config = %d %v", r.status, r.body)
	}
	r = do(t, srv, http.MethodGet, emu+"/config", "", "", false)
	signIn, _ = r.body["signIn"].(map[string]any)
	if signIn["allowDuplicateEmails"] != true {
		t.Fatalf("get config = %v", r.body)
	}

	r = do(t, srv, http.MethodDelete, emu+"/accounts", "", "", false)
	if r.status != http.StatusOK {
		t.Fatalf("delete accounts = %d %v", r.status, r.body)
	}
	r = do(t, srv, http.MethodGet, emu+"/oobCodes", "", "", false)
	codes, _ = r.body["oobCodes"].([]any)
	if len(codes) != 0 {
		t.Fatalf("oobCodes after reset = %v", r.body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/identitytoolkit.googleapis.com/v1/accounts:signUp", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-client-version")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRequestBodyMergesQuery(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		query       string
		want        map[string]string
	}{
		{"json wins over query", "application/json", `{"a":"1"}`, "a=2&b=3&key=k", map[string]string{"a": "1", "b": "3"}},
		{"form", "application/x-www-form-urlencoded", "grant_type=refresh_token&refresh_token=r", "", map[string]string{"grant_type": "refresh_token", "refresh_token": "r"}},
		{"query only", "", "", "pageSize=5&prettyPrint=false", map[string]string{"pageSize": "5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/x?"+tc.query, strings.NewReader(tc.body))
			if tc.contentType != "" {
				r.Header.Set("Content-Type", tc.contentType)
			}
			raw, err := requestBody(httptest.NewRecorder(), r)
			if err != nil {
				t.Fatalf("requestBody: %v", err)
			}
			var got map[string]string
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("decode %s: %v", raw, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRequestBodyEmpty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?key=k", nil)
	raw, err := requestBody(httptest.NewRecorder(), r)
	if err != nil || raw != nil {
		t.Fatalf("requestBody = %q, %v", raw, err)
	}
}
