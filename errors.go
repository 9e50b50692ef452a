package authemu

import (
	"errors"
	"net/http"
)

// ErrorKind classifies an operation failure.
type ErrorKind int

const (
	// KindBadRequest covers every validation failure.
	KindBadRequest ErrorKind = iota + 1
	// KindNotImplemented marks recognized but unsupported request shapes.
	KindNotImplemented
	// KindInternal marks failures the engine should never produce.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "INVALID_ARGUMENT"
	case KindNotImplemented:
		return "NOT_IMPLEMENTED"
	case KindInternal:
		return "INTERNAL"
	}
	return "UNKNOWN"
}

// HTTPStatus maps the kind to the status code used by the HTTP transport.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotImplemented:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// Error is returned by every Engine operation. Error() renders
// "CODE : detail", the message format clients parse.
type Error struct {
	Kind   ErrorKind
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Code + " : " + e.Detail
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(code string) *Error {
	return &Error{Kind: KindBadRequest, Code: code}
}

func badRequestDetail(code, detail string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Detail: detail}
}

func notImplemented(detail string) *Error {
	return &Error{Kind: KindNotImplemented, Code: CodeNotImplemented, Detail: detail}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Detail: err.Error(), Err: err}
}

// AsError returns err as an *Error. Errors of any other type are wrapped as
// internal errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internalError(err)
}

// CodeOf returns the machine-readable code of err, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

// KindOf returns the kind of err, or 0 for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	return AsError(err).Kind
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Error codes.
const (
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeInternal       = "INTERNAL_ERROR"

	CodeAdminOnlyOperation           = "ADMIN_ONLY_OPERATION"
	CodeClaimsTooLarge               = "CLAIMS_TOO_LARGE"
	CodeDuplicateEmail               = "DUPLICATE_EMAIL"
	CodeDuplicateLocalID             = "DUPLICATE_LOCAL_ID"
	CodeDuplicateRawID               = "DUPLICATE_RAW_ID"
	CodeEmailExists                  = "EMAIL_EXISTS"
	CodeEmailNotFound                = "EMAIL_NOT_FOUND"
	CodeFederatedUserIDAlreadyLinked = "FEDERATED_USER_ID_ALREADY_LINKED"
	CodeForbiddenClaim               = "FORBIDDEN_CLAIM"
	CodeInsufficientPermission       = "INSUFFICIENT_PERMISSION"
	CodeInvalidArgument              = "INVALID_ARGUMENT"
	CodeInvalidClaims                = "INVALID_CLAIMS"
	CodeInvalidCode                  = "INVALID_CODE"
	CodeInvalidContinueURI           = "INVALID_CONTINUE_URI"
	CodeInvalidCredentialOrProvider  = "INVALID_CREDENTIAL_OR_PROVIDER_ID"
	CodeInvalidCustomToken           = "INVALID_CUSTOM_TOKEN"
	CodeInvalidEmail                 = "INVALID_EMAIL"
	CodeInvalidGrantType             = "INVALID_GRANT_TYPE"
	CodeInvalidIDToken               = "INVALID_ID_TOKEN"
	CodeInvalidIdentifier            = "INVALID_IDENTIFIER"
	CodeInvalidIdpResponse           = "INVALID_IDP_RESPONSE"
	CodeInvalidMfaPendingCredential  = "INVALID_MFA_PENDING_CREDENTIAL"
	CodeInvalidOobCode               = "INVALID_OOB_CODE"
	CodeInvalidPassword              = "INVALID_PASSWORD"
	CodeInvalidPhoneNumber           = "INVALID_PHONE_NUMBER"
	CodeInvalidProjectID             = "INVALID_PROJECT_ID"
	CodeInvalidRefreshToken          = "INVALID_REFRESH_TOKEN"
	CodeInvalidReqType               = "INVALID_REQ_TYPE"
	CodeInvalidSessionInfo           = "INVALID_SESSION_INFO"
	CodeInvalidTemporaryProof        = "INVALID_TEMPORARY_PROOF"
	CodeInvalidTestPhoneNumber       = "INVALID_TEST_PHONE_NUMBER"
	CodeLocalIDListExceedsLimit      = "LOCAL_ID_LIST_EXCEEDS_LIMIT"
	CodeMfaEnrollmentNotFound        = "MFA_ENROLLMENT_NOT_FOUND"
	CodeMissingCode                  = "MISSING_CODE"
	CodeMissingContinueURI           = "MISSING_CONTINUE_URI"
	CodeMissingCustomToken           = "MISSING_CUSTOM_TOKEN"
	CodeMissingEmail                 = "MISSING_EMAIL"
	CodeMissingGrantType             = "MISSING_GRANT_TYPE"
	CodeMissingIDToken               = "MISSING_ID_TOKEN"
	CodeMissingIdentifier            = "MISSING_IDENTIFIER"
	CodeMissingLocalID               = "MISSING_LOCAL_ID"
	CodeMissingMfaEnrollmentID       = "MISSING_MFA_ENROLLMENT_ID"
	CodeMissingMfaPendingCredential  = "MISSING_MFA_PENDING_CREDENTIAL"
	CodeMissingOobCode               = "MISSING_OOB_CODE"
	CodeMissingPassword              = "MISSING_PASSWORD"
	CodeMissingPhoneNumber           = "MISSING_PHONE_NUMBER"
	CodeMissingRefreshToken          = "MISSING_REFRESH_TOKEN"
	CodeMissingReqType               = "MISSING_REQ_TYPE"
	CodeMissingRequestURI            = "MISSING_REQUEST_URI"
	CodeMissingSessionInfo           = "MISSING_SESSION_INFO"
	CodeMissingTenantID              = "MISSING_TENANT_ID"
	CodeMissingUserAccount           = "MISSING_USER_ACCOUNT"
	CodeNotDisabled                  = "NOT_DISABLED"
	CodeOperationNotAllowed          = "OPERATION_NOT_ALLOWED"
	CodePasswordLoginDisabled        = "PASSWORD_LOGIN_DISABLED"
	CodePhoneNumberExists            = "PHONE_NUMBER_EXISTS"
	CodeProjectDisabled              = "PROJECT_DISABLED"
	CodeSecondFactorExists           = "SECOND_FACTOR_EXISTS"
	CodeTenantIDMismatch             = "TENANT_ID_MISMATCH"
	CodeTenantNotFound               = "TENANT_NOT_FOUND"
	CodeTokenExpired                 = "TOKEN_EXPIRED"
	CodeUnexpectedParameter          = "UNEXPECTED_PARAMETER"
	CodeUnsupportedFirstFactor       = "UNSUPPORTED_FIRST_FACTOR"
	CodeUnsupportedPassthroughOp     = "UNSUPPORTED_PASSTHROUGH_OPERATION"
	CodeUnverifiedEmail              = "UNVERIFIED_EMAIL"
	CodeUserDisabled                 = "USER_DISABLED"
	CodeUserNotFound                 = "USER_NOT_FOUND"
	CodeUsersPresent                 = "USERS_PRESENT"
	CodeWeakPassword                 = "WEAK_PASSWORD"
)
