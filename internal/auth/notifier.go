package auth

import (
	"context"
	"log/slog"
)

// LogNotifier writes two-factor codes to the log. Used when no delivery
// channel is configured; never enable it in production with real users.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendCode logs the code for the operator to relay.
func (n *LogNotifier) SendCode(ctx context.Context, user User, code string) error {
	n.logger.Info("two-factor code issued", "user", user.Email, "code", code)
	return nil
}
