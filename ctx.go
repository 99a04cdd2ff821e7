package accounts

import "context"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the Session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session in the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}
