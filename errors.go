package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeConflict              = "ACCOUNT_CONFLICT"
	TextCodeInvalidToken          = "INVALID_TOKEN"
	TextCodeInvalidActivationCode = "INVALID_ACTIVATION_CODE"
	TextCodeDeliveryFailed        = "DELIVERY_FAILED"
	TextCodeValidationFailed      = "VALIDATION_FAILED"
	TextCodeUnauthenticated       = "UNAUTHENTICATED"
	TextCodeAccountNotFound       = "ACCOUNT_NOT_FOUND"
)

// LoginErrorMessage is returned as data by Login on bad credentials
const LoginErrorMessage = "invalid email or password"

// ErrAccountNotFound is returned by repositories when no account matches.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidToken is returned for any token that fails verification. It does
// not say whether the signature or the expiry was at fault.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidActivationCode is returned when the supplied code does not match
var ErrInvalidActivationCode = goerrors.New("invalid activation code", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidActivationCode).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthenticated is returned when no usable session can be resolved.
var ErrUnauthenticated = goerrors.New("please login to access this resource", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidationFailed).
	WithCode(goerrors.CodeBadRequest)

// NewConflictError reports a duplicate email or phone number.
func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithTextCode(TextCodeConflict).
		WithCode(goerrors.CodeConflict)
}

// NewDeliveryError wraps a notifier failure.
func NewDeliveryError(err error, to string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver notification").
		WithTextCode(TextCodeDeliveryFailed).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"to": to,
		})
}

// NewValidationError converts ozzo validation errors into a rich error with
// one metadata entry per field.
func NewValidationError(err error) *goerrors.Error {
	fields := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	}

	message := "validation failed"
	if err != nil {
		message = err.Error()
	}

	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(fields)
}

// NewValidationMessage builds a validation error from a plain message
func NewValidationMessage(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest)
}

// IsConflict reports whether err is a duplicate email/phone error
func IsConflict(err error) bool {
	return hasTextCode(err, TextCodeConflict)
}

// IsInvalidToken reports whether err is a token verification failure
func IsInvalidToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidToken)
}

// IsInvalidActivationCode reports whether err is an activation code mismatch
func IsInvalidActivationCode(err error) bool {
	return hasTextCode(err, TextCodeInvalidActivationCode)
}

// IsDeliveryError reports whether err is a notifier failure
func IsDeliveryError(err error) bool {
	return hasTextCode(err, TextCodeDeliveryFailed)
}

// IsValidationError reports whether err is a request validation failure
func IsValidationError(err error) bool {
	return hasTextCode(err, TextCodeValidationFailed)
}

// IsUnauthenticated reports whether err means no session could be resolved
func IsUnauthenticated(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated)
}

// IsNotFound reports whether err means the record does not exist. Errors
// coming straight from bun or the generic repository are recognized too.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeAccountNotFound) {
		return true
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	return repository.IsRecordNotFound(err)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return richErr.TextCode == code
	}
	return false
}

func accountExistsMessage(name, field string) string {
	return fmt.Sprintf("User %s %s already exists", name, field)
}
