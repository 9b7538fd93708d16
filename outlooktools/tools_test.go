package outlooktools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entragate/outlook-mcp/auth"
	"github.com/entragate/outlook-mcp/graph"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gc := graph.NewClient(
		graph.WithBaseURL(srv.URL),
		graph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return New(gc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func authedCtx(token string) context.Context {
	return auth.WithRequestAuth(context.Background(), &auth.RequestAuth{
		AccessToken: token,
		UserID:      "user@contoso.com",
	})
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content blocks = %d, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] = %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestMissingCredentialsIsToolError(t *testing.T) {
	var graphCalled bool
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		graphCalled = true
	})

	res, _, err := s.listMessages(context.Background(), nil, listMessagesArgs{})
	if err != nil {
		t.Fatalf("want tool error, got protocol error %v", err)
	}
	if !res.IsError {
		t.Fatal("want IsError result")
	}
	if graphCalled {
		t.Error("graph must not be called without credentials")
	}
	if !strings.Contains(resultText(t, res), "bearer token") {
		t.Errorf("text = %q", resultText(t, res))
	}
}

func TestListMessagesForwardsTokenAndRendersJSON(t *testing.T) {
	const token = "raw.bearer.token"
	var gotAuth string
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []graph.Message{{ID: "m1", Subject: "quarterly report"}},
		})
	})

	res, _, err := s.listMessages(authedCtx(token), nil, listMessagesArgs{Folder: "inbox", Top: 10})
	if err != nil {
		t.Fatalf("listMessages: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if gotAuth != "Bearer "+token {
		t.Errorf("Authorization = %q", gotAuth)
	}

	var msgs []graph.Message
	if err := json.Unmarshal([]byte(resultText(t, res)), &msgs); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Subject != "quarterly report" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestGraphErrorBecomesToolError(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "InvalidAuthenticationToken", "message": "token validation failed"},
		})
	})

	res, _, err := s.getMessage(authedCtx("expired"), nil, messageIDArgs{MessageID: "m1"})
	if err != nil {
		t.Fatalf("graph failures must not become protocol errors: %v", err)
	}
	if !res.IsError {
		t.Fatal("want IsError result")
	}
	if text := resultText(t, res); !strings.Contains(text, "InvalidAuthenticationToken") {
		t.Errorf("text = %q", text)
	}
}

func TestSendMailValidatesAndBuildsPayload(t *testing.T) {
	var got graph.SendMailRequest
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	})
	ctx := authedCtx("tok")

	res, _, err := s.sendMail(ctx, nil, sendMailArgs{Subject: "no recipients"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("want validation error for empty recipient list")
	}

	res, _, err = s.sendMail(ctx, nil, sendMailArgs{
		To:      []string{"a@x.com", "b@x.com"},
		Cc:      []string{"c@x.com"},
		Subject: "hi",
		Body:    "hello there",
	})
	if err != nil || res.IsError {
		t.Fatalf("sendMail: err=%v isError=%v", err, res.IsError)
	}
	if len(got.Message.ToRecipients) != 2 || got.Message.ToRecipients[1].EmailAddress.Address != "b@x.com" {
		t.Errorf("to = %+v", got.Message.ToRecipients)
	}
	if got.Message.Body == nil || got.Message.Body.ContentType != "text" {
		t.Errorf("body = %+v", got.Message.Body)
	}
	if !got.SaveToSentItems {
		t.Error("saveToSentItems should default to true")
	}
}

func TestCreateEventBuildsGraphEvent(t *testing.T) {
	var got graph.Event
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		got.ID = "e1"
		_ = json.NewEncoder(w).Encode(got)
	})

	res, _, err := s.createEvent(authedCtx("tok"), nil, createEventArgs{
		Subject:   "standup",
		Start:     "2025-06-02T09:00:00",
		End:       "2025-06-02T09:15:00",
		Attendees: []string{"team@contoso.com"},
	})
	if err != nil || res.IsError {
		t.Fatalf("createEvent: err=%v res=%+v", err, res)
	}
	if got.Start == nil || got.Start.TimeZone != "UTC" {
		t.Errorf("start = %+v, want UTC default", got.Start)
	}
	if len(got.Attendees) != 1 || got.Attendees[0].Type != "required" {
		t.Errorf("attendees = %+v", got.Attendees)
	}
}

func TestRespondEventRejectsUnknownAction(t *testing.T) {
	var graphCalled bool
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		graphCalled = true
	})

	res, _, err := s.respondEvent(authedCtx("tok"), nil, respondEventArgs{EventID: "e1", Response: "maybe"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("want tool error for unknown response action")
	}
	if graphCalled {
		t.Error("graph must not be called for an invalid action")
	}
}

func TestRegisterExposesFullCatalog(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	srv := mcp.NewServer(&mcp.Implementation{Name: "outlook-mcp", Version: "test"}, nil)
	s.Register(srv)
}
