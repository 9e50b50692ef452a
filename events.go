package authemu

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authemu/notify"
)

// Event describes one dispatched operation. Request and response bodies
// are never included.
type Event struct {
	Timestamp  time.Time   `json:"timestamp"`
	Operation  OperationID `json:"operation"`
	ProjectID  string      `json:"project_id"`
	TenantID   string      `json:"tenant_id,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`
	Privileged bool        `json:"privileged"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Namespace is the resource name of the project or tenant the operation
// ran in.
func (ev Event) Namespace() string {
	if ev.TenantID == "" {
		return "projects/" + ev.ProjectID
	}
	return "projects/" + ev.ProjectID + "/tenants/" + ev.TenantID
}

// Message converts the event into a notify.KindOperation delivery.
func (ev Event) Message() notify.Message {
	return notify.Message{
		Kind:       notify.KindOperation,
		ProjectID:  ev.ProjectID,
		TenantID:   ev.TenantID,
		Operation:  string(ev.Operation),
		RequestID:  ev.RequestID,
		Error:      ev.Error,
		DurationMs: ev.DurationMs,
	}
}

// EventSink receives events on the dispatcher goroutine in the order the
// engine produced them.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(ctx context.Context, event Event)

func (f EventSinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// LogEventSink writes one structured log line per event.
type LogEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink logs to logger at Info level. A nil logger discards.
func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("operation", string(ev.Operation)),
		zap.String("namespace", ev.Namespace()),
		zap.Bool("privileged", ev.Privileged),
		zap.Int64("duration_ms", ev.DurationMs),
	}
	if ev.RequestID != "" {
		fields = append(fields, zap.String("request_id", ev.RequestID))
	}
	if !ev.Success {
		fields = append(fields, zap.String("error", ev.Error))
	}
	s.logger.Info("operation event", fields...)
}

// NotifyEventSink hands events to a notifier, so a notify.RedisNotifier
// publishes them on the same list and channel as codes and links.
type NotifyEventSink struct {
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewNotifyEventSink returns a sink delivering through n. Delivery
// failures are logged and otherwise dropped.
func NewNotifyEventSink(n notify.Notifier, logger *zap.Logger) *NotifyEventSink {
	if n == nil {
		n = notify.NoOp{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyEventSink{notifier: n, logger: logger}
}

func (s *NotifyEventSink) Emit(ctx context.Context, ev Event) {
	if err := s.notifier.Notify(ctx, ev.Message()); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("operation", string(ev.Operation)),
			zap.String("namespace", ev.Namespace()),
			zap.Error(err),
		)
	}
}
