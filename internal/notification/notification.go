// Package notification delivers invitation links and one-time codes to people.
// Message bodies carry bearer secrets, so implementations never log them.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

var ErrQueueFull = errors.New("notification queue full")

type Notifier interface {
	Send(ctx context.Context, target, message string) error
}

// LogNotifier records that a message would have been sent. Used in development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, target, message string) error {
	n.logger.InfoContext(ctx, "notification suppressed (log notifier)",
		"target", MaskTarget(target),
		"message_length", len(message))
	return nil
}

// MaskTarget keeps enough of an address or phone number to correlate logs.
func MaskTarget(target string) string {
	if at := strings.Index(target, "@"); at > 0 {
		return target[:1] + "***" + target[at:]
	}
	if len(target) > 4 {
		return strings.Repeat("*", len(target)-4) + target[len(target)-4:]
	}
	return "****"
}
