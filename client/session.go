package client

import (
	"context"
)

type contextKey string

func (c contextKey) String() string {
	return "audition/client/" + string(c)
}

const ctxKeySession = contextKey("sessionKey")

// Session supplies the bearer token for outgoing requests and reacts to its rejection.
type Session interface {
	// Token returns the bearer token, empty for anonymous requests.
	Token(ctx context.Context) (string, error)
	// Unauthorized is called once for every 401 response, before the caller sees ErrUnauthorized.
	Unauthorized(ctx context.Context)
}

// ToContext attaches the session requests made with ctx act on behalf of.
func ToContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// FromContext returns the session attached to ctx, nil when none is.
func FromContext(ctx context.Context) Session {
	s, ok := ctx.Value(ctxKeySession).(Session)
	if !ok {
		return nil
	}
	return s
}

type anonymous struct{}

func (anonymous) Token(context.Context) (string, error) { return "", nil }
func (anonymous) Unauthorized(context.Context)          {}
