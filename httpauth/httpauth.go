// Package httpauth implements the bearer-token admission gate that
// fronts every authenticated endpoint of the gateway. It sequences
// header validation, structural token checks, identity and tenant
// checks, and the per-user rate limit, then installs the request auth
// context and hands off to the wrapped handler.
//
// The gate never verifies token signatures: Microsoft Graph is the
// authoritative resource server and will reject a forged token on the
// real call (passthrough validation). Identity extraction here exists
// for rate-limit accounting and audit logging. Extraction shortfalls
// that are not structural degrade to an identity-less admission rather
// than a rejection, trading audit completeness for availability.
package httpauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/entragate/outlook-mcp/auth"
	"github.com/entragate/outlook-mcp/internal/logctx"
	"github.com/entragate/outlook-mcp/ratelimit"
)

// Machine-readable error codes of the rejection envelope.
const (
	CodeMissingHeader  = "missing_header"
	CodeWrongScheme    = "wrong_scheme"
	CodeEmptyToken     = "empty_token"
	CodeMalformedToken = "malformed_token"
	CodeExpiredToken   = "expired_token"
	CodeTenantRejected = "tenant_rejected"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

const bearerPrefix = "Bearer "

// Middleware is the authentication gate. Construct with New.
type Middleware struct {
	parser              *auth.Parser
	limiter             ratelimit.Limiter
	log                 *slog.Logger
	realm               string
	resourceMetadataURL string
}

// Option configures the Middleware.
type Option func(*Middleware)

// WithLogger sets the logger. If not provided, slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) { m.log = l }
}

// WithRealm sets the realm attribute of WWW-Authenticate challenges.
// Empty (default) omits the attribute per RFC 6750.
func WithRealm(realm string) Option {
	return func(m *Middleware) { m.realm = strings.TrimSpace(realm) }
}

// WithResourceMetadataURL advertises the protected resource metadata
// document in challenges so clients can bootstrap authorization.
func WithResourceMetadataURL(u string) Option {
	return func(m *Middleware) { m.resourceMetadataURL = u }
}

// SetResourceMetadataURL updates the advertised metadata document after
// construction, for wiring orders where the serving URL is derived
// later. Call before serving; the gate does not synchronize it.
func (m *Middleware) SetResourceMetadataURL(u string) { m.resourceMetadataURL = u }

// WithUserLimiter installs the per-identity rate limiter. Without one
// the gate admits without rate accounting.
func WithUserLimiter(l ratelimit.Limiter) Option {
	return func(m *Middleware) { m.limiter = l }
}

// New builds the gate around the given token parser.
func New(parser *auth.Parser, opts ...Option) *Middleware {
	m := &Middleware{parser: parser, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap returns a handler that admits or rejects the request and, on
// admission, runs next with the request auth installed on its context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		defer func() {
			if rec := recover(); rec != nil {
				// Generic envelope only: no claim payloads, no tokens.
				m.log.ErrorContext(ctx, "gate.downstream.panic", slog.String("err", fmt.Sprint(rec)))
				WriteError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
			}
		}()

		hdr := r.Header.Get("Authorization")
		if hdr == "" {
			m.reject(r, w, http.StatusUnauthorized, CodeMissingHeader, "authorization header required", m.challenge(nil))
			return
		}

		// Case-sensitive scheme with a single space, per RFC 6750.
		if !strings.HasPrefix(hdr, bearerPrefix) {
			m.reject(r, w, http.StatusUnauthorized, CodeWrongScheme, "authorization scheme must be Bearer", m.challenge(map[string]string{
				"error": "invalid_request", "error_description": "authorization scheme must be Bearer",
			}))
			return
		}

		tok := strings.TrimSpace(hdr[len(bearerPrefix):])
		if tok == "" {
			m.reject(r, w, http.StatusUnauthorized, CodeEmptyToken, "empty bearer token", m.challenge(map[string]string{
				"error": "invalid_request", "error_description": "empty bearer token",
			}))
			return
		}

		id, err := m.parser.Parse(tok)
		if err != nil {
			code, desc := CodeMalformedToken, "token is structurally invalid"
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				code, desc = CodeExpiredToken, "token is expired"
			case errors.Is(err, auth.ErrTenantNotAllowed):
				code, desc = CodeTenantRejected, "token tenant is not allowed"
			}
			m.reject(r, w, http.StatusUnauthorized, code, desc, m.challenge(map[string]string{
				"error": "invalid_token", "error_description": desc,
			}))
			return
		}

		key := id.DisplayIdentifier
		if key == "" {
			key = id.SubjectID
		}

		if m.limiter != nil && key != "" {
			d, err := m.limiter.Check(ctx, key)
			if err != nil {
				// Fail open: a broken limiter backend must not take the
				// gateway down with it. Graph still enforces its own quotas.
				m.log.ErrorContext(ctx, "gate.ratelimit.unavailable", slog.String("err", err.Error()))
			} else if d.Limited {
				setRateHeaders(w, d.Limit, 0, d.Reset)
				w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(d.Reset), 10))
				m.reject(r, w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded", "")
				return
			} else {
				// Admission is recorded once, here, never at completion.
				if err := m.limiter.Record(ctx, key); err != nil {
					m.log.ErrorContext(ctx, "gate.ratelimit.record.fail", slog.String("err", err.Error()))
				}
				// Headers reflect quota after this request, for client
				// self-throttling.
				setRateHeaders(w, d.Limit, max(0, d.Remaining-1), d.Reset)
			}
		}

		ctx = auth.WithRequestAuth(ctx, &auth.RequestAuth{
			AccessToken: tok,
			UserID:      id.DisplayIdentifier,
		})
		ctx = logctx.WithPrincipalData(ctx, &logctx.PrincipalData{
			UserID:   key,
			TenantID: id.TenantID,
		})

		m.log.InfoContext(ctx, "gate.admit")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// reject terminates the request with the uniform JSON envelope. The raw
// token value is never logged.
func (m *Middleware) reject(r *http.Request, w http.ResponseWriter, status int, code, desc, challenge string) {
	m.log.WarnContext(r.Context(), "gate.reject",
		slog.String("kind", code),
		slog.String("path", r.URL.Path),
	)
	if challenge != "" {
		w.Header().Add("WWW-Authenticate", challenge)
	}
	WriteError(w, status, code, desc)
}

func (m *Middleware) challenge(params map[string]string) string {
	return BuildBearerChallenge(m.realm, m.resourceMetadataURL, params)
}

// BuildBearerChallenge builds an RFC 6750 Bearer challenge header value:
//
//	Bearer realm="<realm>", resource_metadata="<url>", error="...", error_description="..."
//
// Realm and resource_metadata are omitted when empty. Params are emitted
// in a fixed logical order (error, error_description, scope, rest) so
// output is deterministic despite map iteration.
func BuildBearerChallenge(realm string, resourceMetadata string, params map[string]string) string {
	pieces := make([]string, 0, 2+len(params))
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if resourceMetadata != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(resourceMetadata)))
	}
	if params != nil {
		if v, ok := params["error"]; ok {
			pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
		}
		if v, ok := params["error_description"]; ok {
			pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
		}
		if v, ok := params["scope"]; ok {
			pieces = append(pieces, fmt.Sprintf(`scope="%s"`, esc(v)))
		}
		for k, v := range params {
			if k == "error" || k == "error_description" || k == "scope" {
				continue
			}
			pieces = append(pieces, fmt.Sprintf(`%s="%s"`, k, esc(v)))
		}
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

type errorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// WriteError emits the uniform rejection envelope. Safe for any
// HTTP-layer rejection before a tool exchange is possible.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: code, ErrorDescription: desc})
}

// SetRateHeaders exposes the rate headers for other limited endpoints
// (registration) that share the envelope conventions of the gate.
func SetRateHeaders(w http.ResponseWriter, limit, remaining int, reset time.Duration) {
	setRateHeaders(w, limit, remaining, reset)
}

func setRateHeaders(w http.ResponseWriter, limit, remaining int, reset time.Duration) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(ceilSeconds(reset), 10))
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
