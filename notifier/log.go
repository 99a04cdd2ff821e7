package notifier

import (
	"context"

	"github.com/goliatone/go-accounts"
)

// LogNotifier writes notifications to the logger. Meant for development,
// it exposes activation codes in the logs.
type LogNotifier struct {
	logger accounts.Logger
}

var _ accounts.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger accounts.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, to, templateID string, variables map[string]any) error {
	if err := ctx.Err(); err != nil {
		return accounts.NewDeliveryError(err, to)
	}
	if n.logger == nil {
		return nil
	}
	msg := NewMessage(to, templateID, variables)
	n.logger.Info("notification", "to", msg.To, "template", msg.TemplateID, "subject", msg.Subject, "variables", msg.Variables)
	return nil
}
