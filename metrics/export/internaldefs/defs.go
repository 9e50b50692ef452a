package internaldefs

import (
	"github.com/MrEthical07/authemu"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authemu.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authemu.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authemu.MetricSignUp, Name: "authemu_sign_up_total", Help: "Accounts created by signUp."},
	{ID: authemu.MetricSignInSuccess, Name: "authemu_sign_in_success_total", Help: "Completed sign-ins."},
	{ID: authemu.MetricSignInFailure, Name: "authemu_sign_in_failure_total", Help: "Rejected sign-in attempts."},
	{ID: authemu.MetricMfaPending, Name: "authemu_mfa_pending_total", Help: "Sign-ins that stopped at a second factor."},
	{ID: authemu.MetricMfaEnrolled, Name: "authemu_mfa_enrolled_total", Help: "Finalized second factor enrollments."},
	{ID: authemu.MetricMfaSignIn, Name: "authemu_mfa_sign_in_total", Help: "Finalized second factor sign-ins."},
	{ID: authemu.MetricIDTokenIssued, Name: "authemu_id_token_issued_total", Help: "ID tokens minted."},
	{ID: authemu.MetricRefreshGranted, Name: "authemu_refresh_granted_total", Help: "Refresh token exchanges."},
	{ID: authemu.MetricOobCodeIssued, Name: "authemu_oob_code_issued_total", Help: "Out-of-band codes issued."},
	{ID: authemu.MetricOobCodeRedeemed, Name: "authemu_oob_code_redeemed_total", Help: "Out-of-band codes redeemed."},
	{ID: authemu.MetricVerificationCodeIssued, Name: "authemu_verification_code_issued_total", Help: "Phone verification sessions opened."},
	{ID: authemu.MetricUserCreated, Name: "authemu_user_created_total", Help: "Users created by any operation."},
	{ID: authemu.MetricUserDeleted, Name: "authemu_user_deleted_total", Help: "Users deleted."},
	{ID: authemu.MetricUserImported, Name: "authemu_user_imported_total", Help: "Users written by batchCreate."},
	{ID: authemu.MetricTenantCreated, Name: "authemu_tenant_created_total", Help: "Tenants created."},
	{ID: authemu.MetricTenantDeleted, Name: "authemu_tenant_deleted_total", Help: "Tenants deleted."},
	{ID: authemu.MetricBadRequest, Name: "authemu_bad_request_total", Help: "Operations rejected as bad requests."},
	{ID: authemu.MetricNotImplemented, Name: "authemu_not_implemented_total", Help: "Operations rejected as not implemented."},
	{ID: authemu.MetricInternalError, Name: "authemu_internal_error_total", Help: "Operations that failed internally."},
}

var HistogramDefs = []HistogramDef{
	{ID: authemu.MetricDispatchLatency, Name: "authemu_dispatch_latency_seconds", Help: "Operation latency."},
}

// EventsDropped is exported with an "operation" label from the engine's
// per-operation drop counts instead of the unlabeled counter.
var EventsDropped = CounterDef{ID: authemu.MetricEventDropped, Name: "authemu_events_dropped_total", Help: "Operation events dropped before reaching the sink."}

// EventsDroppedLabel is the label carrying the operation id.
const EventsDroppedLabel = "operation"

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
