// Package auth provides the identity primitives used by the Outlook MCP
// gateway: unverified bearer token claim extraction and the per-request
// auth context installed by the HTTP gate.
//
// # Passthrough validation
//
// The gateway forwards the caller's bearer token verbatim to Microsoft
// Graph, which is the authoritative resource server. Parse therefore
// performs NO cryptographic verification: it decodes the token's claims
// to obtain a stable identity for rate-limit accounting and audit
// logging, enforces structural invariants and an optional tenant
// allow-list, and nothing more. A token that passes Parse can still be
// rejected downstream; a token that fails Parse is never forwarded.
//
// Example:
//
//	p := &auth.Parser{AllowedTenants: []string{"my-tenant-id"}}
//	id, err := p.Parse(rawToken)
//	if errors.Is(err, auth.ErrTenantNotAllowed) { /* map to 401 */ }
//
// # Request auth context
//
// WithRequestAuth installs the accepted token and display identity on a
// context.Context. Everything downstream of the gate (tool handlers, the
// Graph client) reads credentials exclusively via RequestAuthFromContext
// and never from the originating HTTP request. Context values are scoped
// to one request's call chain and vanish with it, which gives the
// isolation and automatic-teardown guarantees the gate relies on.
package auth
