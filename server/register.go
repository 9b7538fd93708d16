package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/entragate/outlook-mcp/httpauth"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

type clientRegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

type clientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
}

// handleRegister is an RFC 7591 dynamic client registration stub. The
// gateway holds no client registry: it hands out a synthetic public
// client id so MCP clients that insist on registering before the OAuth
// dance can proceed against Entra. Per-IP throttling keeps the
// unauthenticated endpoint from being a free request sink.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.registerLimiter != nil {
		key := clientIP(r)
		d, err := h.registerLimiter.Check(ctx, key)
		if err != nil {
			h.log.ErrorContext(ctx, "register.ratelimit.unavailable", slog.String("err", err.Error()))
		} else if d.Limited {
			httpauth.SetRateHeaders(w, d.Limit, 0, d.Reset)
			w.Header().Set("Retry-After", strconv.FormatInt(int64(d.Reset/time.Second)+1, 10))
			h.log.WarnContext(ctx, "register.ratelimited")
			httpauth.WriteError(w, http.StatusTooManyRequests, httpauth.CodeRateLimited, "rate limit exceeded")
			return
		} else {
			if err := h.registerLimiter.Record(ctx, key); err != nil {
				h.log.ErrorContext(ctx, "register.ratelimit.record.fail", slog.String("err", err.Error()))
			}
			httpauth.SetRateHeaders(w, d.Limit, max(0, d.Remaining-1), d.Reset)
		}
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		httpauth.WriteError(w, http.StatusUnsupportedMediaType, "invalid_client_metadata", "content-type must be application/json")
		return
	}

	var req clientRegistrationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		httpauth.WriteError(w, http.StatusBadRequest, "invalid_client_metadata", "request body is not valid JSON")
		return
	}
	if len(req.RedirectURIs) == 0 {
		httpauth.WriteError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	resp := clientRegistrationResponse{
		ClientID:         uuid.NewString(),
		ClientIDIssuedAt: time.Now().Unix(),
		RedirectURIs:     req.RedirectURIs,
		ClientName:       req.ClientName,
		// Public clients only: tokens come from Entra, never from here.
		TokenEndpointAuthMethod: "none",
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		Scope:                   req.Scope,
	}

	h.log.InfoContext(ctx, "register.ok", slog.String("client_name", req.ClientName))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// clientIP picks the throttling key: the first X-Forwarded-For hop when
// a proxy supplied one, otherwise the peer address without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
