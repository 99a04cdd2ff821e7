package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
)

const (
	HeaderAccessToken  = "accesstoken"
	HeaderRefreshToken = "refreshtoken"
)

var (
	defaultAccessTokenLookup  = "header:" + HeaderAccessToken + ",header:" + router.HeaderAuthorization
	defaultRefreshTokenLookup = "header:" + HeaderRefreshToken + ",cookie:" + HeaderRefreshToken
	ErrJWTMissingOrMalformed  = errors.New("missing or malformed JWT")
)

// Authenticator resolves a session from an access and refresh token pair
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken, refreshToken string) (*accounts.Session, error)
}

// ValidationListener is invoked after a session has been resolved.
type ValidationListener func(ctx router.Context, session *accounts.Session) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	// Authenticator is required
	Authenticator Authenticator
	// ContextKey is the locals key holding the *accounts.Session
	ContextKey         string
	AccessTokenLookup  string
	RefreshTokenLookup string
	AuthScheme         string
	// Optional lets unauthenticated requests through with an empty session
	Optional bool
	// ExposeRotatedTokens writes refreshed tokens to the response headers
	ExposeRotatedTokens bool

	ValidationListeners []ValidationListener

	accessExtractors  []JWTExtractor
	refreshExtractors []JWTExtractor
}

// New returns a guard that resolves the session for every request
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			access, _ := ExtractRawTokenFromContext(ctx, cfg.accessExtractors)
			refresh, _ := ExtractRawTokenFromContext(ctx, cfg.refreshExtractors)

			var session *accounts.Session
			var err error
			if access == "" && refresh == "" {
				err = accounts.ErrUnauthenticated
			} else {
				session, err = cfg.Authenticator.Authenticate(ctx.Context(), access, refresh)
			}

			if err != nil {
				if cfg.Optional && accounts.IsUnauthenticated(err) {
					store(ctx, cfg.ContextKey, &accounts.Session{})
					return next(ctx)
				}
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, session); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if session.Refreshed && cfg.ExposeRotatedTokens {
				ctx.SetHeader(HeaderAccessToken, session.AccessToken)
				ctx.SetHeader(HeaderRefreshToken, session.RefreshToken)
			}

			store(ctx, cfg.ContextKey, session)

			if cfg.SuccessHandler != nil {
				return cfg.SuccessHandler(ctx)
			}
			return next(ctx)
		}
	}
}

func store(ctx router.Context, key string, session *accounts.Session) {
	ctx.Locals(key, session)
	ctx.SetContext(accounts.WithSession(ctx.Context(), session))
}

// SessionFromLocals returns the session stored by the guard
func SessionFromLocals(ctx router.Context, key string) (*accounts.Session, bool) {
	if key == "" {
		key = "session"
	}
	session, ok := ctx.Locals(key).(*accounts.Session)
	return session, ok && session != nil
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	raw, err := "", ErrJWTMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if accounts.IsUnauthenticated(err) {
				return c.JSON(router.StatusUnauthorized, map[string]any{
					"statusCode": router.StatusUnauthorized,
					"message":    err.Error(),
					"error":      "Unauthorized",
				})
			}
			return c.JSON(router.StatusInternalServerError, map[string]any{
				"statusCode": router.StatusInternalServerError,
				"message":    "internal server error",
				"error":      "Internal Server Error",
			})
		}
	}

	if cfg.Authenticator == nil {
		panic("ACCOUNTS: session guard configuration: Authenticator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.AccessTokenLookup == "" {
		cfg.AccessTokenLookup = defaultAccessTokenLookup
	}

	if cfg.RefreshTokenLookup == "" {
		cfg.RefreshTokenLookup = defaultRefreshTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	cfg.accessExtractors = GetExtractors(cfg.AccessTokenLookup, cfg.AuthScheme)
	cfg.refreshExtractors = GetExtractors(cfg.RefreshTokenLookup, cfg.AuthScheme)

	return cfg
}

func (cfg *Config) runValidationListeners(ctx router.Context, session *accounts.Session) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:accesstoken,cookie:jwt,query:auth_token,param:token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
// The Authorization header must carry the auth scheme, other headers may hold
// the raw token.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := strings.TrimSpace(c.Header(header))
		if a == "" {
			return "", ErrJWTMissingOrMalformed
		}

		l := len(authScheme)
		if l > 0 && len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}

		if strings.EqualFold(header, router.HeaderAuthorization) {
			return "", ErrJWTMissingOrMalformed
		}
		return a, nil
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
