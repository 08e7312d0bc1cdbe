package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
)

// Log is the pusher used when push delivery is disabled: it only logs.
type Log struct {
	log *zap.Logger
}

// NewLog returns a logging-only pusher.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("push")}
}

// Push records the notification at debug level.
func (l *Log) Push(_ context.Context, tokens []domain.DeviceToken, n domain.Notification) error {
	l.log.Debug("push disabled",
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.Int("devices", len(tokens)))
	return nil
}

var _ domain.Pusher = (*Log)(nil)
