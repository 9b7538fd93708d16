// Package server assembles the gateway's HTTP surface: the MCP
// endpoint behind the bearer gate, the OAuth discovery documents, the
// dynamic client registration stub, and the health check.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entragate/outlook-mcp/httpauth"
	"github.com/entragate/outlook-mcp/internal/logctx"
	"github.com/entragate/outlook-mcp/internal/wellknown"
	"github.com/entragate/outlook-mcp/outlooktools"
	"github.com/entragate/outlook-mcp/ratelimit"
)

const entraBase = "https://login.microsoftonline.com"

// Config carries the handler's collaborators and identity. Gate and
// Tools are required.
type Config struct {
	// PublicEndpoint is the fully qualified URL clients use to reach the
	// MCP endpoint, e.g. "https://outlook-mcp.example.com/mcp".
	PublicEndpoint string

	// ServerName and Version identify the server to MCP clients and in
	// the resource metadata.
	ServerName string
	Version    string

	// EntraTenant scopes the advertised authorization server; defaults
	// to the multi-tenant "organizations" endpoint.
	EntraTenant string

	// Discover, when set, fetches Entra's authorization server metadata
	// at startup instead of synthesizing it from the tenant.
	Discover bool

	Gate  *httpauth.Middleware
	Tools *outlooktools.Service

	// RegisterLimiter throttles the registration stub per client IP.
	// Nil disables throttling.
	RegisterLimiter ratelimit.Limiter

	Logger *slog.Logger
}

// Handler is the gateway's root http.Handler.
type Handler struct {
	mux *http.ServeMux
	log *slog.Logger

	prmDocument        wellknown.ProtectedResourceMetadata
	prmDocumentURL     *url.URL
	authServerMetadata wellknown.AuthServerMetadata

	registerLimiter ratelimit.Limiter
}

var _ http.Handler = (*Handler)(nil)

// New builds the root handler. ctx bounds startup work (metadata
// discovery); it does not govern the handler's lifetime.
func New(ctx context.Context, cfg Config) (*Handler, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tools are required")
	}

	mcpURL, err := url.Parse(cfg.PublicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid public endpoint %q: %w", cfg.PublicEndpoint, err)
	}
	if mcpURL.Scheme != "https" && mcpURL.Scheme != "http" {
		return nil, fmt.Errorf("public endpoint must use HTTP or HTTPS scheme, got %q", mcpURL.Scheme)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	tenant := cfg.EntraTenant
	if tenant == "" {
		tenant = "organizations"
	}

	h := &Handler{log: log, registerLimiter: cfg.RegisterLimiter}
	h.prmDocumentURL = &url.URL{
		Scheme: mcpURL.Scheme,
		Host:   mcpURL.Host,
		Path:   "/.well-known/oauth-protected-resource" + mcpURL.Path,
	}

	h.authServerMetadata = entraMetadata(tenant)
	if cfg.Discover {
		if asm, err := discoverEntraMetadata(ctx, tenant); err != nil {
			log.WarnContext(ctx, "discovery.fail", slog.String("err", err.Error()))
		} else {
			h.authServerMetadata = *asm
		}
	}
	h.authServerMetadata.RegistrationEndpoint = (&url.URL{
		Scheme: mcpURL.Scheme, Host: mcpURL.Host, Path: "/register",
	}).String()

	h.prmDocument = wellknown.ProtectedResourceMetadata{
		Resource:             mcpURL.String(),
		AuthorizationServers: []string{h.authServerMetadata.Issuer},
		JwksURI:              h.authServerMetadata.JwksURI,
		ScopesSupported: []string{
			"https://graph.microsoft.com/Mail.ReadWrite",
			"https://graph.microsoft.com/Mail.Send",
			"https://graph.microsoft.com/Calendars.ReadWrite",
		},
		BearerMethodsSupported: []string{"authorization_header"},
		ResourceName:           cfg.ServerName,
	}

	impl := &mcp.Implementation{Name: cfg.ServerName, Version: cfg.Version}
	mcpServer := mcp.NewServer(impl, nil)
	cfg.Tools.Register(mcpServer)
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)

	mcpPath := mcpURL.Path
	if mcpPath == "" {
		mcpPath = "/"
	}

	mux := http.NewServeMux()
	mux.Handle(mcpPath, cfg.Gate.Wrap(mcpHandler))

	prmPath := strings.TrimSuffix(h.prmDocumentURL.Path, "/")
	// Both slash variants registered to avoid ServeMux's implicit 301.
	mux.HandleFunc("GET "+prmPath, h.handleGetProtectedResourceMetadata)
	mux.HandleFunc("OPTIONS "+prmPath, h.handleOptionsMetadata)
	mux.HandleFunc("GET "+prmPath+"/", h.handleGetProtectedResourceMetadata)
	mux.HandleFunc("OPTIONS "+prmPath+"/", h.handleOptionsMetadata)

	const asPath = "/.well-known/oauth-authorization-server"
	mux.HandleFunc("GET "+asPath, h.handleGetAuthorizationServerMetadata)
	mux.HandleFunc("OPTIONS "+asPath, h.handleOptionsMetadata)
	mux.HandleFunc("GET "+asPath+"/", h.handleGetAuthorizationServerMetadata)
	mux.HandleFunc("OPTIONS "+asPath+"/", h.handleOptionsMetadata)

	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("GET /healthz", h.handleHealthz(cfg.ServerName, cfg.Version))

	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})))
}

// ResourceMetadataURL is the advertised RFC 9728 document location, for
// wiring into the gate's challenges.
func (h *Handler) ResourceMetadataURL() string {
	return h.prmDocumentURL.String()
}

// entraMetadata synthesizes Entra's RFC 8414 document from its fixed
// URL scheme, avoiding a network round trip at startup.
func entraMetadata(tenant string) wellknown.AuthServerMetadata {
	base := entraBase + "/" + url.PathEscape(tenant)
	return wellknown.AuthServerMetadata{
		Issuer:                base + "/v2.0",
		AuthorizationEndpoint: base + "/oauth2/v2.0/authorize",
		TokenEndpoint:         base + "/oauth2/v2.0/token",
		JwksURI:               base + "/discovery/v2.0/keys",
		ResponseTypesSupported: []string{
			"code", "id_token", "code id_token", "id_token token",
		},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post", "client_secret_basic"},
		ScopesSupported:                   []string{"openid", "profile", "email", "offline_access"},
	}
}

// discoverEntraMetadata mirrors the live Entra document. The
// multi-tenant endpoints report a templated issuer, so issuer
// validation is skipped.
func discoverEntraMetadata(ctx context.Context, tenant string) (*wellknown.AuthServerMetadata, error) {
	issuer := entraBase + "/" + url.PathEscape(tenant) + "/v2.0"
	provider, err := oidc.NewProvider(oidc.InsecureIssuerURLContext(ctx, issuer), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	var asm wellknown.AuthServerMetadata
	if err := provider.Claims(&asm); err != nil {
		return nil, fmt.Errorf("unexpected or invalid authorization server metadata: %w", err)
	}
	if asm.JwksURI == "" {
		return nil, fmt.Errorf("authorization server metadata does not declare a JWKS URI")
	}
	return &asm, nil
}
