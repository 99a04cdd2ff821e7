package accounts

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// DefaultActivationTTL is how long a pending registration stays valid
	DefaultActivationTTL = 5 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime
	DefaultRefreshTTL = 72 * time.Hour
)

// TokenConfig holds the secrets and lifetimes of the three token classes.
// A zero AccessTTL issues access tokens without an expiry.
type TokenConfig struct {
	ActivationSecret string
	AccessSecret     string
	RefreshSecret    string
	ActivationTTL    time.Duration
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	Issuer           string
}

// Validate checks that every secret is set and that no two are shared.
func (c TokenConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ActivationSecret, validation.Required),
		validation.Field(&c.AccessSecret, validation.Required),
		validation.Field(&c.RefreshSecret, validation.Required),
	)
	if err != nil {
		return err
	}

	if c.ActivationTTL < 0 || c.AccessTTL < 0 || c.RefreshTTL < 0 {
		return fmt.Errorf("token lifetimes must be non-negative")
	}

	if c.ActivationSecret == c.AccessSecret ||
		c.ActivationSecret == c.RefreshSecret ||
		c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("token secrets must be distinct")
	}
	return nil
}

// TokenService implements TokenIssuer with HS256 signed JWTs
type TokenService struct {
	activationKey []byte
	accessKey     []byte
	refreshKey    []byte
	activationTTL time.Duration
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
	logger        Logger
}

var _ TokenIssuer = (*TokenService)(nil)

// TokenServiceOption customizes a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenClock injects the clock used to stamp and verify tokens
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService validates cfg and returns a TokenService. Zero activation
// and refresh lifetimes take their defaults.
func NewTokenService(cfg TokenConfig, opts ...TokenServiceOption) (*TokenService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid token configuration")
	}

	ts := &TokenService{
		activationKey: []byte(cfg.ActivationSecret),
		accessKey:     []byte(cfg.AccessSecret),
		refreshKey:    []byte(cfg.RefreshSecret),
		activationTTL: cfg.ActivationTTL,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
		logger:        defLogger{},
	}

	if ts.activationTTL == 0 {
		ts.activationTTL = DefaultActivationTTL
	}
	if ts.refreshTTL == 0 {
		ts.refreshTTL = DefaultRefreshTTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	if ts.accessTTL == 0 {
		ts.logger.Warn("access tokens are issued without expiry")
	}

	return ts, nil
}

// IssueActivation signs a pending registration together with its code
func (ts *TokenService) IssueActivation(pending PendingRegistration, code string) (string, error) {
	claims := &ActivationClaims{
		RegisteredClaims: ts.registered("", ts.activationTTL),
		User:             pending,
		ActivationCode:   code,
	}
	return ts.sign(ts.activationKey, claims)
}

// VerifyActivation returns the claims of a valid activation token
func (ts *TokenService) VerifyActivation(token string) (*ActivationClaims, error) {
	claims := &ActivationClaims{}
	if err := ts.parse(token, ts.activationKey, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueAccess signs an access token for the account
func (ts *TokenService) IssueAccess(accountID string) (string, error) {
	claims := &AccountClaims{
		RegisteredClaims: ts.registered(accountID, ts.accessTTL),
		AccountID:        accountID,
	}
	return ts.sign(ts.accessKey, claims)
}

// VerifyAccess returns the claims of a valid access token
func (ts *TokenService) VerifyAccess(token string) (*AccountClaims, error) {
	claims := &AccountClaims{}
	if err := ts.parse(token, ts.accessKey, claims); err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueRefresh signs a refresh token for the account
func (ts *TokenService) IssueRefresh(accountID string) (string, error) {
	claims := &AccountClaims{
		RegisteredClaims: ts.registered(accountID, ts.refreshTTL),
		AccountID:        accountID,
	}
	return ts.sign(ts.refreshKey, claims)
}

// VerifyRefresh returns the claims of a valid refresh token
func (ts *TokenService) VerifyRefresh(token string) (*AccountClaims, error) {
	claims := &AccountClaims{}
	if err := ts.parse(token, ts.refreshKey, claims); err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (ts *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := ts.now()
	rc := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Issuer:   ts.issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return rc
}

func (ts *TokenService) sign(key []byte, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// parse verifies signature, algorithm and expiry. Every failure collapses
// into ErrInvalidToken; the cause is only logged.
func (ts *TokenService) parse(tokenString string, key []byte, claims jwt.Claims) error {
	if tokenString == "" {
		return ErrInvalidToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token verification failed", "error", err)
		return ErrInvalidToken
	}

	if !token.Valid {
		return ErrInvalidToken
	}

	return nil
}
