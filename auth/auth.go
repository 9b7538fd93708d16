package auth

import "errors"

// ErrInvalidToken indicates the token is structurally invalid: wrong
// segment count, undecodable payload, or missing required claims.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrExpiredToken indicates the token carried an exp claim more than the
// configured leeway in the past. Clients should refresh and retry.
var ErrExpiredToken = errors.New("auth: token expired")

// ErrTenantNotAllowed indicates the token's tid claim is not in the
// configured tenant allow-list.
var ErrTenantNotAllowed = errors.New("auth: tenant not allowed")

// Identity is the accounting/audit identity extracted from a bearer
// token. It is NOT proof of authentication; see the package doc.
type Identity struct {
	// SubjectID is the stable per-user identifier: the oid claim when
	// present, otherwise sub.
	SubjectID string

	// TenantID is the tid claim.
	TenantID string

	// Audience and Issuer are recorded for audit and never verified.
	Audience string
	Issuer   string

	// ExpiresAt is the exp claim in epoch seconds, or zero if absent.
	ExpiresAt int64

	// DisplayIdentifier is a best-effort human readable label
	// (preferred_username > upn > email > SubjectID). Used only for
	// logging and rate-limit keying convenience.
	DisplayIdentifier string
}
