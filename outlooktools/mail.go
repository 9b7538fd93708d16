package outlooktools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entragate/outlook-mcp/graph"
)

type listMessagesArgs struct {
	// Folder is a well-known folder name or folder id. Empty means inbox.
	Folder string `json:"folder,omitempty"`
	// Top caps the number of messages returned.
	Top int `json:"top,omitempty"`
	// Filter is a raw OData $filter expression.
	Filter string `json:"filter,omitempty"`
}

func (s *Service) listMessages(ctx context.Context, req *mcp.CallToolRequest, args listMessagesArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_list_messages")
	if errRes != nil {
		return errRes, nil, nil
	}
	msgs, err := s.graph.ListMessages(ctx, ra.AccessToken, graph.ListMessagesOptions{
		Folder: args.Folder,
		Top:    args.Top,
		Filter: args.Filter,
	})
	return s.finish(ctx, err, msgs)
}

type searchMessagesArgs struct {
	// Query is the free-text search phrase.
	Query string `json:"query"`
	Top   int    `json:"top,omitempty"`
}

func (s *Service) searchMessages(ctx context.Context, req *mcp.CallToolRequest, args searchMessagesArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_search_messages")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.Query == "" {
		return errorResult("query must not be empty"), nil, nil
	}
	msgs, err := s.graph.SearchMessages(ctx, ra.AccessToken, args.Query, args.Top)
	return s.finish(ctx, err, msgs)
}

type messageIDArgs struct {
	// MessageID is the Graph message id.
	MessageID string `json:"messageId"`
}

func (s *Service) getMessage(ctx context.Context, req *mcp.CallToolRequest, args messageIDArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_get_message")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.MessageID == "" {
		return errorResult("messageId must not be empty"), nil, nil
	}
	msg, err := s.graph.GetMessage(ctx, ra.AccessToken, args.MessageID)
	return s.finish(ctx, err, msg)
}

type sendMailArgs struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	// BodyType is "text" or "html"; defaults to text.
	BodyType string `json:"bodyType,omitempty"`
	Body     string `json:"body"`
	// SaveToSentItems keeps a copy in the sent folder; defaults to true.
	SaveToSentItems *bool `json:"saveToSentItems,omitempty"`
}

func (s *Service) sendMail(ctx context.Context, req *mcp.CallToolRequest, args sendMailArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_send_mail")
	if errRes != nil {
		return errRes, nil, nil
	}
	if len(args.To) == 0 {
		return errorResult("at least one recipient is required"), nil, nil
	}
	bodyType := args.BodyType
	if bodyType == "" {
		bodyType = "text"
	}
	save := true
	if args.SaveToSentItems != nil {
		save = *args.SaveToSentItems
	}
	err := s.graph.SendMail(ctx, ra.AccessToken, graph.SendMailRequest{
		Message: graph.Message{
			Subject:       args.Subject,
			Body:          &graph.ItemBody{ContentType: bodyType, Content: args.Body},
			ToRecipients:  recipients(args.To),
			CcRecipients:  recipients(args.Cc),
			BccRecipients: recipients(args.Bcc),
		},
		SaveToSentItems: save,
	})
	return s.finish(ctx, err, map[string]string{"status": "sent"})
}

type moveMessageArgs struct {
	MessageID string `json:"messageId"`
	// DestinationFolderID is a well-known folder name or folder id.
	DestinationFolderID string `json:"destinationFolderId"`
}

func (s *Service) moveMessage(ctx context.Context, req *mcp.CallToolRequest, args moveMessageArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_move_message")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.MessageID == "" || args.DestinationFolderID == "" {
		return errorResult("messageId and destinationFolderId must not be empty"), nil, nil
	}
	msg, err := s.graph.MoveMessage(ctx, ra.AccessToken, args.MessageID, args.DestinationFolderID)
	return s.finish(ctx, err, msg)
}

func (s *Service) deleteMessage(ctx context.Context, req *mcp.CallToolRequest, args messageIDArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_delete_message")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.MessageID == "" {
		return errorResult("messageId must not be empty"), nil, nil
	}
	err := s.graph.DeleteMessage(ctx, ra.AccessToken, args.MessageID)
	return s.finish(ctx, err, map[string]string{"status": "deleted"})
}

type listMailFoldersArgs struct{}

func (s *Service) listMailFolders(ctx context.Context, req *mcp.CallToolRequest, args listMailFoldersArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_list_mail_folders")
	if errRes != nil {
		return errRes, nil, nil
	}
	folders, err := s.graph.ListMailFolders(ctx, ra.AccessToken)
	return s.finish(ctx, err, folders)
}

func recipients(addrs []string) []graph.Recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]graph.Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, graph.Recipient{EmailAddress: graph.EmailAddress{Address: a}})
	}
	return out
}
