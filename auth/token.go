package auth

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 60 * time.Second

// Parser extracts an Identity from a bearer token without verifying its
// signature. The zero value accepts any tenant and applies a 60 second
// expiry leeway. Parser is stateless and safe for concurrent use.
type Parser struct {
	// AllowedTenants restricts the tid claim to the listed tenant IDs.
	// Empty means any tenant is accepted.
	AllowedTenants []string

	// Leeway is the clock-skew tolerance applied to exp. Defaults to 60s.
	Leeway time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time

	// Logger, when set, records extracted non-secret claims at debug level.
	Logger *slog.Logger
}

// Parse decodes the token's claims and enforces the structural and
// tenant invariants. Errors wrap ErrInvalidToken, ErrExpiredToken or
// ErrTenantNotAllowed. The raw token string is never logged.
func (p *Parser) Parse(raw string) (*Identity, error) {
	segs := strings.Split(raw, ".")
	if len(segs) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(segs))
	}
	if slices.Contains(segs, "") {
		return nil, fmt.Errorf("%w: empty segment", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	iss, _ := claims["iss"].(string)
	if iss == "" {
		return nil, fmt.Errorf("%w: missing iss", ErrInvalidToken)
	}
	aud := firstAudience(claims["aud"])
	if aud == "" {
		return nil, fmt.Errorf("%w: missing aud", ErrInvalidToken)
	}

	oid, _ := claims["oid"].(string)
	sub, _ := claims["sub"].(string)
	subject := oid
	if subject == "" {
		subject = sub
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: missing oid and sub", ErrInvalidToken)
	}

	tid, _ := claims["tid"].(string)
	if tid == "" {
		return nil, fmt.Errorf("%w: missing tid", ErrInvalidToken)
	}

	id := &Identity{
		SubjectID: subject,
		TenantID:  tid,
		Audience:  aud,
		Issuer:    iss,
	}

	if expf, ok := claims["exp"].(float64); ok {
		id.ExpiresAt = int64(expf)
		leeway := p.Leeway
		if leeway <= 0 {
			leeway = defaultLeeway
		}
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		if id.ExpiresAt < now().Add(-leeway).Unix() {
			return nil, fmt.Errorf("%w: exp %d is in the past", ErrExpiredToken, id.ExpiresAt)
		}
	}

	if len(p.AllowedTenants) > 0 && !slices.Contains(p.AllowedTenants, tid) {
		return nil, fmt.Errorf("%w: tid %q", ErrTenantNotAllowed, tid)
	}

	// Best effort only; absence never fails the parse.
	id.DisplayIdentifier = displayIdentifier(claims, subject)

	if p.Logger != nil {
		p.Logger.Debug("token.claims.extracted",
			slog.String("sub", id.SubjectID),
			slog.String("tid", id.TenantID),
			slog.String("aud", id.Audience),
			slog.String("iss", id.Issuer),
			slog.Int64("exp", id.ExpiresAt),
		)
	}

	return id, nil
}

// firstAudience handles the aud claim's legal shapes: a single string or
// an array of strings. The first non-empty entry is recorded for audit.
func firstAudience(aud any) string {
	switch v := aud.(type) {
	case string:
		return v
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	case []string:
		for _, s := range v {
			if s != "" {
				return s
			}
		}
	}
	return ""
}

func displayIdentifier(claims jwt.MapClaims, fallback string) string {
	for _, k := range []string{"preferred_username", "upn", "email"} {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
