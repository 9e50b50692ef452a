package authemu

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
)

// OperationID names one operation of the dispatch table.
type OperationID string

const (
	OpCreateAuthURI          OperationID = "identitytoolkit.accounts.createAuthUri"
	OpDelete                 OperationID = "identitytoolkit.accounts.delete"
	OpLookup                 OperationID = "identitytoolkit.accounts.lookup"
	OpResetPassword          OperationID = "identitytoolkit.accounts.resetPassword"
	OpSendOobCode            OperationID = "identitytoolkit.accounts.sendOobCode"
	OpSendVerificationCode   OperationID = "identitytoolkit.accounts.sendVerificationCode"
	OpSignInWithCustomToken  OperationID = "identitytoolkit.accounts.signInWithCustomToken"
	OpSignInWithEmailLink    OperationID = "identitytoolkit.accounts.signInWithEmailLink"
	OpSignInWithIdp          OperationID = "identitytoolkit.accounts.signInWithIdp"
	OpSignInWithPassword     OperationID = "identitytoolkit.accounts.signInWithPassword"
	OpSignInWithPhoneNumber  OperationID = "identitytoolkit.accounts.signInWithPhoneNumber"
	OpSignUp                 OperationID = "identitytoolkit.accounts.signUp"
	OpUpdate                 OperationID = "identitytoolkit.accounts.update"
	OpMfaEnrollmentStart     OperationID = "identitytoolkit.accounts.mfaEnrollment.start"
	OpMfaEnrollmentFinalize  OperationID = "identitytoolkit.accounts.mfaEnrollment.finalize"
	OpMfaEnrollmentWithdraw  OperationID = "identitytoolkit.accounts.mfaEnrollment.withdraw"
	OpMfaSignInStart         OperationID = "identitytoolkit.accounts.mfaSignIn.start"
	OpMfaSignInFinalize      OperationID = "identitytoolkit.accounts.mfaSignIn.finalize"
	OpBatchCreate            OperationID = "identitytoolkit.projects.accounts.batchCreate"
	OpBatchDelete            OperationID = "identitytoolkit.projects.accounts.batchDelete"
	OpBatchGet               OperationID = "identitytoolkit.projects.accounts.batchGet"
	OpQuery                  OperationID = "identitytoolkit.projects.accounts.query"
	OpCreateSessionCookie    OperationID = "identitytoolkit.projects.createSessionCookie"
	OpTenantsCreate          OperationID = "identitytoolkit.projects.tenants.create"
	OpTenantsDelete          OperationID = "identitytoolkit.projects.tenants.delete"
	OpTenantsGet             OperationID = "identitytoolkit.projects.tenants.get"
	OpTenantsList            OperationID = "identitytoolkit.projects.tenants.list"
	OpTenantsPatch           OperationID = "identitytoolkit.projects.tenants.patch"
	OpGrantToken             OperationID = "securetoken.token"
	OpEmulatorDeleteAccounts OperationID = "emulator.projects.accounts.delete"
	OpEmulatorGetConfig      OperationID = "emulator.projects.config.get"
	OpEmulatorUpdateConfig   OperationID = "emulator.projects.config.update"
	OpEmulatorListOobCodes   OperationID = "emulator.projects.oobCodes.list"
	OpEmulatorListVerifCodes OperationID = "emulator.projects.verificationCodes.list"
)

type opPolicy struct {
	// adminOnly operations require a privileged caller.
	adminOnly bool
	// passthrough operations stay available in PASSTHROUGH usage mode.
	passthrough bool
	// signIn operations count towards the sign-in failure metric.
	signIn bool
}

var opPolicies = map[OperationID]opPolicy{
	OpCreateAuthURI:          {passthrough: true},
	OpDelete:                 {passthrough: true},
	OpLookup:                 {passthrough: true},
	OpResetPassword:          {},
	OpSendOobCode:            {},
	OpSendVerificationCode:   {},
	OpSignInWithCustomToken:  {passthrough: true, signIn: true},
	OpSignInWithEmailLink:    {signIn: true},
	OpSignInWithIdp:          {passthrough: true, signIn: true},
	OpSignInWithPassword:     {signIn: true},
	OpSignInWithPhoneNumber:  {signIn: true},
	OpSignUp:                 {},
	OpUpdate:                 {},
	OpMfaEnrollmentStart:     {},
	OpMfaEnrollmentFinalize:  {},
	OpMfaEnrollmentWithdraw:  {},
	OpMfaSignInStart:         {},
	OpMfaSignInFinalize:      {signIn: true},
	OpBatchCreate:            {adminOnly: true},
	OpBatchDelete:            {adminOnly: true, passthrough: true},
	OpBatchGet:               {adminOnly: true, passthrough: true},
	OpQuery:                  {adminOnly: true, passthrough: true},
	OpCreateSessionCookie:    {adminOnly: true, passthrough: true},
	OpTenantsCreate:          {adminOnly: true, passthrough: true},
	OpTenantsDelete:          {adminOnly: true, passthrough: true},
	OpTenantsGet:             {adminOnly: true, passthrough: true},
	OpTenantsList:            {adminOnly: true, passthrough: true},
	OpTenantsPatch:           {adminOnly: true, passthrough: true},
	OpGrantToken:             {},
	OpEmulatorDeleteAccounts: {passthrough: true},
	OpEmulatorGetConfig:      {passthrough: true},
	OpEmulatorUpdateConfig:   {passthrough: true},
	OpEmulatorListOobCodes:   {passthrough: true},
	OpEmulatorListVerifCodes: {passthrough: true},
}

// operation decodes a JSON request body and runs the typed handler.
type operation func(e *Engine, ctx context.Context, t Target, body []byte) (any, error)

func handle[Req any, Resp any](fn func(*Engine, context.Context, Target, *Req) (Resp, error)) operation {
	return func(e *Engine, ctx context.Context, t Target, body []byte) (any, error) {
		req := new(Req)
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, req); err != nil {
				return nil, badRequestDetail(CodeInvalidArgument, "Invalid JSON payload received. "+err.Error())
			}
		}
		resp, err := fn(e, ctx, t, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

func registerOperations() map[OperationID]operation {
	return map[OperationID]operation{
		OpCreateAuthURI:          handle((*Engine).CreateAuthURI),
		OpDelete:                 handle((*Engine).Delete),
		OpLookup:                 handle((*Engine).Lookup),
		OpResetPassword:          handle((*Engine).ResetPassword),
		OpSendOobCode:            handle((*Engine).SendOobCode),
		OpSendVerificationCode:   handle((*Engine).SendVerificationCode),
		OpSignInWithCustomToken:  handle((*Engine).SignInWithCustomToken),
		OpSignInWithEmailLink:    handle((*Engine).SignInWithEmailLink),
		OpSignInWithIdp:          handle((*Engine).SignInWithIdp),
		OpSignInWithPassword:     handle((*Engine).SignInWithPassword),
		OpSignInWithPhoneNumber:  handle((*Engine).SignInWithPhoneNumber),
		OpSignUp:                 handle((*Engine).SignUp),
		OpUpdate:                 handle((*Engine).Update),
		OpMfaEnrollmentStart:     handle((*Engine).MfaEnrollmentStart),
		OpMfaEnrollmentFinalize:  handle((*Engine).MfaEnrollmentFinalize),
		OpMfaEnrollmentWithdraw:  handle((*Engine).MfaEnrollmentWithdraw),
		OpMfaSignInStart:         handle((*Engine).MfaSignInStart),
		OpMfaSignInFinalize:      handle((*Engine).MfaSignInFinalize),
		OpBatchCreate:            handle((*Engine).BatchCreate),
		OpBatchDelete:            handle((*Engine).BatchDelete),
		OpBatchGet:               handle((*Engine).BatchGet),
		OpQuery:                  handle((*Engine).Query),
		OpCreateSessionCookie:    handle((*Engine).CreateSessionCookie),
		OpTenantsCreate:          handle((*Engine).CreateTenant),
		OpTenantsDelete:          handle((*Engine).DeleteTenant),
		OpTenantsGet:             handle((*Engine).GetTenant),
		OpTenantsList:            handle((*Engine).ListTenants),
		OpTenantsPatch:           handle((*Engine).UpdateTenant),
		OpGrantToken:             handle((*Engine).GrantToken),
		OpEmulatorDeleteAccounts: handle((*Engine).DeleteAllAccounts),
		OpEmulatorGetConfig:      handle((*Engine).GetEmulatorConfig),
		OpEmulatorUpdateConfig:   handle((*Engine).UpdateEmulatorConfig),
		OpEmulatorListOobCodes:   handle((*Engine).ListOobCodes),
		OpEmulatorListVerifCodes: handle((*Engine).ListVerificationCodes),
	}
}

// Dispatch decodes body as the request of op and runs it. Unknown
// operations fail with KindNotImplemented.
func (e *Engine) Dispatch(ctx context.Context, op OperationID, t Target, body []byte) (any, error) {
	if e == nil {
		return nil, internalError(errEngineNotReady)
	}
	fn, ok := e.ops[op]
	if !ok {
		return nil, notImplemented("Unknown operation " + string(op) + ".")
	}
	return fn(e, ctx, t, body)
}

// Operations lists every registered operation in sorted order.
func (e *Engine) Operations() []OperationID {
	out := make([]OperationID, 0, len(e.ops))
	for op := range e.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
