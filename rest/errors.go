package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	StatusCode int            `json:"statusCode"`
	Message    string         `json:"message"`
	Error      string         `json:"error"`
	Details    map[string]any `json:"details,omitempty"`
}

// NewErrorResponse maps err to a status and a client safe body. Messages of
// internal failures are not exposed.
func NewErrorResponse(err error) ErrorResponse {
	status := http.StatusInternalServerError
	message := "internal server error"
	var details map[string]any

	var richErr *goerrors.Error
	var fiberErr *fiber.Error

	switch {
	case goerrors.As(err, &richErr) && richErr != nil:
		if richErr.Code > 0 {
			status = richErr.Code
		}
		if status < http.StatusInternalServerError || accounts.IsDeliveryError(err) {
			message = richErr.Message
		}
		if accounts.IsValidationError(err) && len(richErr.Metadata) > 0 {
			details = richErr.Metadata
		}
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		message = fiberErr.Message
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		message = "request cancelled"
	}

	return ErrorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
		Details:    details,
	}
}

// ErrorHandler is a fiber error handler writing ErrorResponse bodies
func ErrorHandler(logger accounts.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		res := NewErrorResponse(err)
		if res.StatusCode >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(res.StatusCode).JSON(res)
	}
}
