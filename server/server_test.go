package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entragate/outlook-mcp/auth"
	"github.com/entragate/outlook-mcp/graph"
	"github.com/entragate/outlook-mcp/httpauth"
	"github.com/entragate/outlook-mcp/internal/wellknown"
	"github.com/entragate/outlook-mcp/outlooktools"
	"github.com/entragate/outlook-mcp/ratelimit"
	"github.com/entragate/outlook-mcp/ratelimit/memory"
)

func makeToken(t *testing.T, payload map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := map[string]any{"alg": "RS256", "typ": "JWT"}
	return enc(header) + "." + enc(payload) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func validToken(t *testing.T) string {
	t.Helper()
	return makeToken(t, map[string]any{
		"iss":                "https://login.microsoftonline.com/tid/v2.0",
		"aud":                "api://outlook-mcp",
		"oid":                "oid-1",
		"tid":                "tid-1",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"preferred_username": "user@contoso.com",
	})
}

type countingLimiter struct {
	mu       sync.Mutex
	checks   int
	records  int
	decision ratelimit.Decision
}

func (l *countingLimiter) Check(ctx context.Context, key string) (ratelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checks++
	return l.decision, nil
}

func (l *countingLimiter) Record(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records++
	return nil
}

func (l *countingLimiter) Close() error { return nil }

func (l *countingLimiter) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checks, l.records
}

type testFixture struct {
	srv     *httptest.Server
	limiter *countingLimiter
}

func newTestHandler(t *testing.T, mutate func(*Config)) *testFixture {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	t.Cleanup(graphSrv.Close)

	gc := graph.NewClient(graph.WithBaseURL(graphSrv.URL), graph.WithLogger(discard))
	tools := outlooktools.New(gc, discard)

	limiter := &countingLimiter{decision: ratelimit.Decision{Limit: 30, Remaining: 30, Reset: time.Minute}}
	gate := httpauth.New(&auth.Parser{Logger: discard},
		httpauth.WithLogger(discard),
		httpauth.WithUserLimiter(limiter),
	)

	cfg := Config{
		PublicEndpoint: "http://gateway.test/mcp",
		ServerName:     "outlook-mcp",
		Version:        "test",
		Gate:           gate,
		Tools:          tools,
		Logger:         discard,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testFixture{srv: srv, limiter: limiter}
}

func TestProtectedResourceMetadataDocument(t *testing.T) {
	f := newTestHandler(t, nil)

	for _, path := range []string{
		"/.well-known/oauth-protected-resource/mcp",
		"/.well-known/oauth-protected-resource/mcp/",
	} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}

		var doc wellknown.ProtectedResourceMetadata
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()

		if doc.Resource != "http://gateway.test/mcp" {
			t.Errorf("resource = %q", doc.Resource)
		}
		if len(doc.AuthorizationServers) != 1 || !strings.Contains(doc.AuthorizationServers[0], "login.microsoftonline.com/organizations") {
			t.Errorf("authorization_servers = %v", doc.AuthorizationServers)
		}
	}
}

func TestAuthorizationServerMetadataDocument(t *testing.T) {
	f := newTestHandler(t, func(cfg *Config) { cfg.EntraTenant = "contoso.example" })

	resp, err := http.Get(f.srv.URL + "/.well-known/oauth-authorization-server")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var doc wellknown.AuthServerMetadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc.Issuer != "https://login.microsoftonline.com/contoso.example/v2.0" {
		t.Errorf("issuer = %q", doc.Issuer)
	}
	if doc.TokenEndpoint != "https://login.microsoftonline.com/contoso.example/oauth2/v2.0/token" {
		t.Errorf("token_endpoint = %q", doc.TokenEndpoint)
	}
	if doc.RegistrationEndpoint != "http://gateway.test/register" {
		t.Errorf("registration_endpoint = %q", doc.RegistrationEndpoint)
	}
}

func TestMetadataPreflight(t *testing.T) {
	f := newTestHandler(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/.well-known/oauth-authorization-server", nil)
	req.Header.Set("Origin", "https://client.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" || resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Errorf("CORS headers = %v", resp.Header)
	}
}

func TestMCPEndpointRejectsUnauthenticated(t *testing.T) {
	f := newTestHandler(t, nil)

	resp, err := http.Post(f.srv.URL+"/mcp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}

	var env struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error != httpauth.CodeMissingHeader {
		t.Errorf("error = %q", env.Error)
	}
	if checks, records := f.limiter.counts(); checks != 0 || records != 0 {
		t.Errorf("limiter touched on rejection: checks=%d records=%d", checks, records)
	}
}

func TestMCPEndpointAdmitsValidToken(t *testing.T) {
	f := newTestHandler(t, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+validToken(t))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("status = %d, want admission", resp.StatusCode)
	}
	if checks, records := f.limiter.counts(); checks != 1 || records != 1 {
		t.Errorf("limiter: checks=%d records=%d, want 1/1", checks, records)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "29" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
}

func TestRegisterStub(t *testing.T) {
	f := newTestHandler(t, nil)

	resp, err := http.Post(f.srv.URL+"/register", "application/json",
		strings.NewReader(`{"redirect_uris":["https://client.example/cb"],"client_name":"probe"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var reg clientRegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatal(err)
	}
	if reg.ClientID == "" {
		t.Error("empty client_id")
	}
	if reg.TokenEndpointAuthMethod != "none" {
		t.Errorf("token_endpoint_auth_method = %q", reg.TokenEndpointAuthMethod)
	}
	if len(reg.GrantTypes) != 1 || reg.GrantTypes[0] != "authorization_code" {
		t.Errorf("grant_types = %v", reg.GrantTypes)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newTestHandler(t, nil)

	resp, err := http.Post(f.srv.URL+"/register", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing redirect_uris: status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(f.srv.URL+"/register", "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("wrong content type: status = %d, want 415", resp.StatusCode)
	}
}

func TestRegisterRateLimiting(t *testing.T) {
	lim := memory.New(memory.Config{Limit: 1, Window: time.Minute})
	t.Cleanup(func() { _ = lim.Close() })
	f := newTestHandler(t, func(cfg *Config) { cfg.RegisterLimiter = lim })

	body := `{"redirect_uris":["https://client.example/cb"]}`
	resp, err := http.Post(f.srv.URL+"/register", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first registration: status %d", resp.StatusCode)
	}

	resp, err = http.Post(f.srv.URL+"/register", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second registration: status %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestHealthz(t *testing.T) {
	f := newTestHandler(t, nil)

	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var doc map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc["status"] != "ok" || doc["name"] != "outlook-mcp" {
		t.Errorf("healthz = %v", doc)
	}
}
