package middleware

import (
	"context"

	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

type contextKey int

const (
	tokenKey contextKey = iota
)

// ContextWithToken returns a copy of ctx carrying the verified token.
func ContextWithToken(ctx context.Context, tok *token.Plain) context.Context {
	return context.WithValue(ctx, tokenKey, tok)
}

// TokenFromContext returns the token stored by the middleware, if any.
// It never returns a nil token together with true.
func TokenFromContext(ctx context.Context) (*token.Plain, bool) {
	tok, ok := ctx.Value(tokenKey).(*token.Plain)
	if tok == nil {
		return nil, false
	}
	return tok, ok
}

// MustTokenFromContext is like TokenFromContext but panics when the context
// carries no token. Use it only behind one of the middlewares in this
// package.
func MustTokenFromContext(ctx context.Context) *token.Plain {
	tok, ok := TokenFromContext(ctx)
	if !ok {
		panic("middleware: no verified token in context; is the handler wrapped by HTTPMiddleware or an interceptor?")
	}
	return tok
}
