package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/MrEthical07/authemu"
	"github.com/MrEthical07/authemu/middleware"
)

// Options tunes the router.
type Options struct {
	// Logger receives request logs. Nil disables them.
	Logger *zap.Logger
	// AllowedOrigins defaults to every origin.
	AllowedOrigins []string
}

// accountOps maps the "accounts:<op>" suffix of identitytoolkit paths.
var accountOps = map[string]authemu.OperationID{
	"createAuthUri":         authemu.OpCreateAuthURI,
	"delete":                authemu.OpDelete,
	"lookup":                authemu.OpLookup,
	"resetPassword":         authemu.OpResetPassword,
	"sendOobCode":           authemu.OpSendOobCode,
	"sendVerificationCode":  authemu.OpSendVerificationCode,
	"signInWithCustomToken": authemu.OpSignInWithCustomToken,
	"signInWithEmailLink":   authemu.OpSignInWithEmailLink,
	"signInWithIdp":         authemu.OpSignInWithIdp,
	"signInWithPassword":    authemu.OpSignInWithPassword,
	"signInWithPhoneNumber": authemu.OpSignInWithPhoneNumber,
	"signUp":                authemu.OpSignUp,
	"update":                authemu.OpUpdate,
	"batchCreate":           authemu.OpBatchCreate,
	"batchDelete":           authemu.OpBatchDelete,
	"batchGet":              authemu.OpBatchGet,
	"query":                 authemu.OpQuery,
}

var mfaEnrollmentOps = map[string]authemu.OperationID{
	"start":    authemu.OpMfaEnrollmentStart,
	"finalize": authemu.OpMfaEnrollmentFinalize,
	"withdraw": authemu.OpMfaEnrollmentWithdraw,
}

var mfaSignInOps = map[string]authemu.OperationID{
	"start":    authemu.OpMfaSignInStart,
	"finalize": authemu.OpMfaSignInFinalize,
}

// NewRouter mounts every emulator route. The returned mux can be extended,
// e.g. with a metrics endpoint.
func NewRouter(engine *authemu.Engine, opts Options) *chi.Mux {
	h := &handler{engine: engine, logger: opts.Logger}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID, middleware.BaseURL, middleware.Caller, middleware.Logging(opts.Logger))

	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"authEmulator": map[string]any{"ready": true}})
	})

	r.Route("/identitytoolkit.googleapis.com", func(r chi.Router) {
		accounts := h.lookup(accountOps)
		r.Post("/v1/accounts:{op}", accounts)
		r.Post("/v1/projects/{project}/accounts:{op}", accounts)
		r.Get("/v1/projects/{project}/accounts:{op}", accounts)
		r.Post("/v1/projects/{project}/tenants/{tenant}/accounts:{op}", accounts)
		r.Get("/v1/projects/{project}/tenants/{tenant}/accounts:{op}", accounts)
		r.Post("/v1/projects/{project}:createSessionCookie", h.operation(authemu.OpCreateSessionCookie))
		r.Post("/v1/projects/{project}/tenants/{tenant}:createSessionCookie", h.operation(authemu.OpCreateSessionCookie))

		r.Post("/v2/accounts/mfaEnrollment:{op}", h.lookup(mfaEnrollmentOps))
		r.Post("/v2/accounts/mfaSignIn:{op}", h.lookup(mfaSignInOps))

		r.Route("/v2/projects/{project}/tenants", func(r chi.Router) {
			r.Post("/", h.operation(authemu.OpTenantsCreate))
			r.Get("/", h.operation(authemu.OpTenantsList))
			r.Get("/{tenant}", h.operation(authemu.OpTenantsGet))
			r.Patch("/{tenant}", h.operation(authemu.OpTenantsPatch))
			r.Delete("/{tenant}", h.operation(authemu.OpTenantsDelete))
		})
	})

	r.Post("/securetoken.googleapis.com/v1/token", h.operation(authemu.OpGrantToken))

	emulator := func(r chi.Router) {
		r.Delete("/accounts", h.operation(authemu.OpEmulatorDeleteAccounts))
		r.Get("/config", h.operation(authemu.OpEmulatorGetConfig))
		r.Patch("/config", h.operation(authemu.OpEmulatorUpdateConfig))
		r.Get("/oobCodes", h.operation(authemu.OpEmulatorListOobCodes))
		r.Get("/verificationCodes", h.operation(authemu.OpEmulatorListVerifCodes))
	}
	r.Route("/emulator/v1/projects/{project}", func(r chi.Router) {
		emulator(r)
		r.Route("/tenants/{tenant}", emulator)
	})

	return r
}
