package authemu

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authemu/internal/ident"
	"github.com/MrEthical07/authemu/notify"
	"github.com/MrEthical07/authemu/state"
	"go.uber.org/zap"
)

// Engine executes identity operations against in-memory project state.
//
// An Engine is created by Builder.Build and is safe for concurrent use.
type Engine struct {
	config   Config
	logger   *zap.Logger
	notifier notify.Notifier
	ids      state.IDGenerator
	emails   EmailValidator
	phones   PhoneValidator
	now      func() time.Time
	metrics  *Metrics
	events   *eventQueue
	ops      map[OperationID]operation

	mu       sync.Mutex
	projects map[string]*state.AgentProjectState
}

// Close flushes pending events and stops the event dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.events.close()
}

// Project returns the agent project state for projectID, creating it on
// first use. Callers must hold the project lock while touching its state.
func (e *Engine) Project(projectID string) *state.AgentProjectState {
	if projectID == "" {
		projectID = e.config.DefaultProjectID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[projectID]
	if !ok {
		p = state.NewAgentProjectState(projectID, e.ids, state.AgentOptions{
			OneAccountPerEmail: e.config.OneAccountPerEmail,
			UsageMode:          e.config.UsageMode,
		})
		e.projects[projectID] = p
	}
	return p
}

// call is the per-operation context handed to every handler. It is only
// valid while the project lock is held.
type call struct {
	ctx    context.Context
	e      *Engine
	target Target
	agent  *state.AgentProjectState
	st     state.ProjectState
	now    time.Time
	outbox []notify.Message
}

// tenant returns the tenant namespace of the call, or nil for the agent.
func (c *call) tenant() *state.TenantProjectState {
	t, _ := c.st.(*state.TenantProjectState)
	return t
}

func (c *call) passthrough() bool {
	return c.agent.UsageMode() == state.UsageModePassthrough
}

func (c *call) nowMillis() int64 { return c.now.UnixMilli() }

func (c *call) nowSeconds() int64 { return c.now.Unix() }

func (c *call) canonicalEmail(email string) string {
	return c.e.emails.Canonicalize(email)
}

// notify queues msg for delivery once the operation has succeeded and the
// project lock is released.
func (c *call) notify(msg notify.Message) {
	msg.ProjectID = c.st.ProjectID()
	msg.TenantID = c.st.TenantID()
	c.outbox = append(c.outbox, msg)
}

func (c *call) baseURL() string {
	if u := baseURLFromContext(c.ctx); u != "" {
		return strings.TrimRight(u, "/")
	}
	return strings.TrimRight(c.e.config.OobBaseURL, "/")
}

var oobModes = map[state.OobRequestType]string{
	state.OobPasswordReset: "resetPassword",
	state.OobVerifyEmail:   "verifyEmail",
	state.OobRecoverEmail:  "recoverEmail",
	state.OobEmailSignin:   "signIn",
}

// issueOobCode stores a new action code and queues its delivery.
func (c *call) issueOobCode(email string, requestType state.OobRequestType, continueURL string) (state.OobRecord, error) {
	rec, err := c.createOobCode(email, requestType, continueURL)
	if err != nil {
		return state.OobRecord{}, err
	}
	c.deliverOobCode(rec)
	return rec, nil
}

// createOobCode stores a new action code without delivering it.
func (c *call) createOobCode(email string, requestType state.OobRequestType, continueURL string) (state.OobRecord, error) {
	return c.st.CreateOobCode(email, requestType, func(code string) string {
		q := url.Values{}
		q.Set("mode", oobModes[requestType])
		q.Set("lang", "en")
		q.Set("oobCode", code)
		q.Set("apiKey", "fake-api-key")
		if continueURL != "" {
			q.Set("continueUrl", continueURL)
		}
		if tid := c.st.TenantID(); tid != "" {
			q.Set("tenantId", tid)
		}
		return c.baseURL() + "/emulator/action?" + q.Encode()
	})
}

func (c *call) deliverOobCode(rec state.OobRecord) {
	c.e.metrics.Inc(MetricOobCodeIssued)
	c.notify(notify.Message{
		Kind:        notify.KindOobCode,
		Email:       rec.Email,
		RequestType: string(rec.RequestType),
		Code:        rec.OobCode,
		Link:        rec.OobLink,
	})
}

// issueVerificationCode opens a phone verification session and queues the
// SMS.
func (c *call) issueVerificationCode(phoneNumber string) (state.PhoneVerificationRecord, error) {
	rec, err := c.st.CreateVerificationCode(phoneNumber)
	if err != nil {
		return state.PhoneVerificationRecord{}, err
	}
	c.e.metrics.Inc(MetricVerificationCodeIssued)
	c.notify(notify.Message{
		Kind:        notify.KindVerificationCode,
		PhoneNumber: phoneNumber,
		Code:        rec.Code,
	})
	return rec, nil
}

// run executes fn under the project lock after resolving the namespace and
// applying the per-operation access rules. It records metrics, emits an
// event and delivers queued notifications.
func run[Resp any](e *Engine, ctx context.Context, op OperationID, t Target, bodyTenantID string, fn func(c *call) (Resp, error)) (Resp, error) {
	var zero Resp
	if e == nil {
		return zero, internalError(errEngineNotReady)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	agent := e.Project(t.ProjectID)
	c := &call{
		ctx:    ctx,
		e:      e,
		target: t,
		agent:  agent,
		st:     agent,
		now:    e.now(),
	}

	resp, err := func() (Resp, error) {
		agent.Lock()
		defer agent.Unlock()
		if err := c.admit(op, bodyTenantID); err != nil {
			return zero, err
		}
		return fn(c)
	}()

	e.finish(c, op, start, err)
	if err != nil {
		return zero, AsError(err)
	}
	for _, msg := range c.outbox {
		if nerr := e.notifier.Notify(ctx, msg); nerr != nil {
			e.logger.Warn("notification delivery failed",
				zap.String("op", string(op)),
				zap.String("kind", string(msg.Kind)),
				zap.Error(nerr),
			)
		}
	}
	return resp, nil
}

var errEngineNotReady = errors.New("engine is not initialized")

// admit resolves the tenant and applies the privilege and usage-mode rules
// of op. It runs with the project lock held.
func (c *call) admit(op OperationID, bodyTenantID string) error {
	policy := opPolicies[op]

	tenantID := c.target.TenantID
	if bodyTenantID != "" {
		if tenantID != "" && tenantID != bodyTenantID {
			return badRequestDetail(CodeTenantIDMismatch, "Tenant ID in request body does not match the tenant ID in the path.")
		}
		tenantID = bodyTenantID
	}
	if tenantID != "" {
		ts, err := c.agent.GetTenant(tenantID)
		if err != nil {
			return badRequest(CodeTenantNotFound)
		}
		c.st = ts
		c.target.TenantID = tenantID
	}

	if policy.adminOnly && !c.target.Privileged {
		return badRequest(CodeInsufficientPermission)
	}
	if c.passthrough() && !policy.passthrough {
		return badRequest(CodeUnsupportedPassthroughOp)
	}
	return nil
}

func (e *Engine) finish(c *call, op OperationID, start time.Time, err error) {
	elapsed := time.Since(start)
	e.metrics.Observe(MetricDispatchLatency, elapsed)

	fields := []zap.Field{
		zap.String("op", string(op)),
		zap.String("project", c.st.ProjectID()),
		zap.String("tenant", c.st.TenantID()),
		zap.Duration("elapsed", elapsed),
	}

	code := ""
	if err != nil {
		ae := AsError(err)
		code = ae.Code
		switch ae.Kind {
		case KindBadRequest:
			e.metrics.Inc(MetricBadRequest)
			if opPolicies[op].signIn {
				e.metrics.Inc(MetricSignInFailure)
			}
			e.logger.Debug("operation rejected", append(fields, zap.String("code", ae.Code))...)
		case KindNotImplemented:
			e.metrics.Inc(MetricNotImplemented)
			e.logger.Info("operation not implemented", append(fields, zap.String("detail", ae.Detail))...)
		default:
			e.metrics.Inc(MetricInternalError)
			e.logger.Error("operation failed", append(fields, zap.Error(err))...)
		}
	} else {
		e.logger.Debug("operation completed", fields...)
	}

	e.events.publish(c.ctx, Event{
		Timestamp:  c.now.UTC(),
		Operation:  op,
		ProjectID:  c.st.ProjectID(),
		TenantID:   c.st.TenantID(),
		RequestID:  requestIDFromContext(c.ctx),
		Privileged: c.target.Privileged,
		Success:    err == nil,
		Error:      code,
		DurationMs: elapsed.Milliseconds(),
	})
}

// storeError maps a state error onto the error code clients expect.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrEmailExists):
		return badRequest(CodeEmailExists)
	case errors.Is(err, state.ErrPhoneExists):
		return badRequest(CodePhoneNumberExists)
	case errors.Is(err, state.ErrProviderLinked):
		return badRequest(CodeFederatedUserIDAlreadyLinked)
	case errors.Is(err, state.ErrLocalIDExists):
		return badRequest(CodeDuplicateLocalID)
	case errors.Is(err, state.ErrUserNotFound):
		return badRequest(CodeUserNotFound)
	case errors.Is(err, state.ErrTenantNotFound):
		return badRequest(CodeTenantNotFound)
	case errors.Is(err, state.ErrDuplicateEnrollmentID):
		return badRequestDetail(CodeInvalidArgument, "Duplicate MFA enrollment ID.")
	case errors.Is(err, state.ErrValidSinceRegressed):
		return badRequestDetail(CodeInvalidArgument, "validSince may not move backwards.")
	case errors.Is(err, ident.ErrExhausted):
		return internalError(err)
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return internalError(err)
}
