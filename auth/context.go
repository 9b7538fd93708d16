package auth

import "context"

// RequestAuth carries the accepted bearer token and display identity for
// one request's call chain. It is installed by the HTTP gate after a
// successful admission decision and read by tool handlers and the Graph
// client; nothing downstream of the gate touches the raw request.
//
// UserID may be empty: identity extraction is best-effort and the gate
// admits identity-less requests, deferring rejection to Graph.
type RequestAuth struct {
	// AccessToken is the raw bearer token, forwarded verbatim downstream.
	AccessToken string

	// UserID is the display identifier of the caller, when known.
	UserID string
}

type requestAuthKey struct{}

// WithRequestAuth returns a child context carrying ra. The value is
// scoped to the request's call chain: sibling chains observe their own
// value or none, and teardown is automatic when the chain completes.
func WithRequestAuth(ctx context.Context, ra *RequestAuth) context.Context {
	return context.WithValue(ctx, requestAuthKey{}, ra)
}

// RequestAuthFromContext retrieves the RequestAuth installed on ctx, or
// reports false when called outside an admitted request chain.
func RequestAuthFromContext(ctx context.Context) (*RequestAuth, bool) {
	ra, ok := ctx.Value(requestAuthKey{}).(*RequestAuth)
	return ra, ok
}
