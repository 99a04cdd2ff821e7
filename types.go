package accounts

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the structured logger used across the package. Arguments are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// AccountRepository is the store the lifecycle service reads and writes.
// Finders return ErrAccountNotFound when no record matches.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByPhone(ctx context.Context, phone string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) (*Account, error)
	ListAll(ctx context.Context) ([]*Account, error)
}

// Notifier delivers templated messages to an email address
type Notifier interface {
	Send(ctx context.Context, to, templateID string, variables map[string]any) error
}

// TokenIssuer signs and verifies the three token classes
type TokenIssuer interface {
	IssueActivation(pending PendingRegistration, code string) (string, error)
	VerifyActivation(token string) (*ActivationClaims, error)
	IssueAccess(accountID string) (string, error)
	VerifyAccess(token string) (*AccountClaims, error)
	IssueRefresh(accountID string) (string, error)
	VerifyRefresh(token string) (*AccountClaims, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
