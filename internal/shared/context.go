package shared

import "context"

// SessionContext exposes the caller's backend credentials. It is passed explicitly to the
// backend client instead of being read from a global.
type SessionContext interface {
	CurrentToken() (string, bool)
	IsAuthenticated() bool
}

// StaticToken is a SessionContext holding a fixed bearer token, used by the CLI.
type StaticToken string

// CurrentToken implements SessionContext.
func (t StaticToken) CurrentToken() (string, bool) {
	return string(t), t != ""
}

// IsAuthenticated implements SessionContext.
func (t StaticToken) IsAuthenticated() bool {
	return t != ""
}

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CredentialsFromContext returns the request session as a SessionContext. Requests without
// a session yield an anonymous context.
func CredentialsFromContext(ctx context.Context) SessionContext {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess
	}
	return StaticToken("")
}
