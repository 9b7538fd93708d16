// Package outlooktools registers the Outlook mail and calendar tool
// catalog on an MCP server. Handlers read the caller's credentials
// exclusively from the request auth context installed by the HTTP gate
// and forward the bearer token verbatim to Graph; they never see the
// originating HTTP request.
package outlooktools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entragate/outlook-mcp/auth"
	"github.com/entragate/outlook-mcp/graph"
	"github.com/entragate/outlook-mcp/internal/logctx"
)

// Service holds the tool handlers' shared collaborators.
type Service struct {
	graph *graph.Client
	log   *slog.Logger
}

// New builds a Service around the Graph client.
func New(gc *graph.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{graph: gc, log: log}
}

// Register adds the full Outlook catalog to srv.
func (s *Service) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_list_messages",
		Description: "List messages in a mail folder (inbox by default), newest first. Supports an optional OData $filter expression.",
	}, s.listMessages)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_search_messages",
		Description: "Full-text search across the mailbox.",
	}, s.searchMessages)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_get_message",
		Description: "Fetch one message by id, including its full body.",
	}, s.getMessage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_send_mail",
		Description: "Send an email as the signed-in user.",
	}, s.sendMail)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_move_message",
		Description: "Move a message to another folder.",
	}, s.moveMessage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_delete_message",
		Description: "Delete a message (moves it to deleted items).",
	}, s.deleteMessage)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_list_mail_folders",
		Description: "List the mailbox's folders with item counts.",
	}, s.listMailFolders)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_list_events",
		Description: "List calendar events, soonest first. With start and end, expands recurring events within the window.",
	}, s.listEvents)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_get_event",
		Description: "Fetch one calendar event by id.",
	}, s.getEvent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_create_event",
		Description: "Create a calendar event, optionally inviting attendees.",
	}, s.createEvent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_update_event",
		Description: "Update fields of an existing calendar event.",
	}, s.updateEvent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_delete_event",
		Description: "Delete a calendar event.",
	}, s.deleteEvent)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "outlook_respond_event",
		Description: "Accept, decline, or tentatively accept an event invitation.",
	}, s.respondEvent)
}

// creds fetches the caller's bearer credentials. A missing auth context
// yields a tool-level error: the gate admits identity-less requests and
// leaves the authoritative rejection to Graph, but without a token there
// is nothing to forward.
func (s *Service) creds(ctx context.Context, toolName string) (context.Context, *auth.RequestAuth, *mcp.CallToolResult) {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: toolName})
	ra, ok := auth.RequestAuthFromContext(ctx)
	if !ok || ra.AccessToken == "" {
		s.log.WarnContext(ctx, "tool.call.no_credentials")
		return ctx, nil, errorResult("no credentials available for this request; supply a bearer token")
	}
	return ctx, ra, nil
}

// finish turns a Graph outcome into the uniform tool envelope. Graph
// failures surface as tool errors, never protocol errors, so clients
// always get a machine-readable result.
func (s *Service) finish(ctx context.Context, err error, v any) (*mcp.CallToolResult, any, error) {
	if err != nil {
		var apiErr *graph.APIError
		if errors.As(err, &apiErr) {
			s.log.WarnContext(ctx, "tool.call.graph_error",
				slog.Int("status", apiErr.StatusCode),
				slog.String("code", apiErr.Code),
			)
			return errorResult(apiErr.Error()), nil, nil
		}
		s.log.ErrorContext(ctx, "tool.call.fail", slog.String("err", err.Error()))
		return nil, nil, err
	}
	s.log.InfoContext(ctx, "tool.call.ok")
	return jsonResult(v)
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	if v == nil {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}, nil, nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}, nil, nil
}
