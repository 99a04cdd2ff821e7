package logging

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-accounts"
)

// RequestLogger logs method, path, status and latency of every request.
// Errors are rendered by the app error handler first so the logged status
// is the one the client sees.
func RequestLogger(logger accounts.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()

		args := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String(),
		}
		if id, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && id != "" {
			args = append(args, "request_id", id)
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request", args...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request", args...)
		default:
			logger.Info("request", args...)
		}

		return nil
	}
}

// ActivitySink logs every lifecycle event
func ActivitySink(logger accounts.Logger) accounts.ActivitySink {
	return accounts.ActivitySinkFunc(func(ctx context.Context, event accounts.ActivityEvent) error {
		logger.Info("activity",
			"event", string(event.EventType),
			"user_id", event.UserID,
			"email", event.Email,
			"occurred_at", event.OccurredAt,
		)
		return nil
	})
}
