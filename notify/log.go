package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes each message to a zap logger at Info level.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier logging to logger. A nil logger is
// replaced with a no-op logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Text(),
		zap.String("kind", string(msg.Kind)),
		zap.String("project", msg.ProjectID),
		zap.String("tenant", msg.TenantID),
		zap.String("code", msg.Code),
	)
	return nil
}
