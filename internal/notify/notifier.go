// AngelaMos | 2026
// notifier.go

// Package notify hands transactional emails to the delivery pipeline. Sends
// are fire-and-forget from the caller's point of view: a failed or slow send
// never undoes the write that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	TemplatePasswordReset = "password_reset"
	TemplateWelcome       = "welcome"
)

type Message struct {
	To       string
	Template string
	Subject  string
	Data     map[string]string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the logger instead of delivering them.
// Intended for local development.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("send %s: empty recipient", msg.Template)
	}

	attrs := []any{
		"to", msg.To,
		"template", msg.Template,
		"subject", msg.Subject,
	}
	for k, v := range msg.Data {
		attrs = append(attrs, "data."+k, v)
	}

	n.logger.InfoContext(ctx, "email notification", attrs...)
	return nil
}
