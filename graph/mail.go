package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// EmailAddress is a Graph emailAddress resource.
type EmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Recipient wraps an EmailAddress the way Graph's message DTOs do.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// ItemBody is a Graph itemBody ("text" or "html" content).
type ItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// Message is a pass-through subset of a Graph message resource.
type Message struct {
	ID               string      `json:"id,omitempty"`
	Subject          string      `json:"subject,omitempty"`
	BodyPreview      string      `json:"bodyPreview,omitempty"`
	Body             *ItemBody   `json:"body,omitempty"`
	From             *Recipient  `json:"from,omitempty"`
	ToRecipients     []Recipient `json:"toRecipients,omitempty"`
	CcRecipients     []Recipient `json:"ccRecipients,omitempty"`
	BccRecipients    []Recipient `json:"bccRecipients,omitempty"`
	ReceivedDateTime string      `json:"receivedDateTime,omitempty"`
	IsRead           *bool       `json:"isRead,omitempty"`
	HasAttachments   bool        `json:"hasAttachments,omitempty"`
	Importance       string      `json:"importance,omitempty"`
	ParentFolderID   string      `json:"parentFolderId,omitempty"`
	WebLink          string      `json:"webLink,omitempty"`
}

// MailFolder is a pass-through subset of a Graph mailFolder resource.
type MailFolder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	TotalItemCount   int    `json:"totalItemCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
	ChildFolderCount int    `json:"childFolderCount"`
}

type listEnvelope[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// ListMessagesOptions narrows a mailbox listing.
type ListMessagesOptions struct {
	// Folder is a well-known folder name or folder id. Empty means inbox.
	Folder string
	// Top caps the page size; Graph's default applies when zero.
	Top int
	// Filter is a raw OData $filter expression, passed through.
	Filter string
}

// ListMessages lists messages in one mail folder, newest first.
func (c *Client) ListMessages(ctx context.Context, token string, opts ListMessagesOptions) ([]Message, error) {
	folder := opts.Folder
	if folder == "" {
		folder = "inbox"
	}
	q := url.Values{}
	q.Set("$orderby", "receivedDateTime desc")
	if opts.Top > 0 {
		q.Set("$top", strconv.Itoa(opts.Top))
	}
	if opts.Filter != "" {
		q.Set("$filter", opts.Filter)
	}
	var env listEnvelope[Message]
	path := fmt.Sprintf("/me/mailFolders/%s/messages", url.PathEscape(folder))
	if err := c.do(ctx, token, http.MethodGet, path, q, nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// SearchMessages runs a Graph $search across the mailbox.
func (c *Client) SearchMessages(ctx context.Context, token, search string, top int) ([]Message, error) {
	q := url.Values{}
	q.Set("$search", strconv.Quote(search))
	if top > 0 {
		q.Set("$top", strconv.Itoa(top))
	}
	var env listEnvelope[Message]
	if err := c.do(ctx, token, http.MethodGet, "/me/messages", q, nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// GetMessage fetches one message by id, including its full body.
func (c *Client) GetMessage(ctx context.Context, token, id string) (*Message, error) {
	var m Message
	if err := c.do(ctx, token, http.MethodGet, "/me/messages/"+url.PathEscape(id), nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendMailRequest is the Graph sendMail action payload.
type SendMailRequest struct {
	Message         Message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// SendMail sends a message as the caller.
func (c *Client) SendMail(ctx context.Context, token string, req SendMailRequest) error {
	return c.do(ctx, token, http.MethodPost, "/me/sendMail", nil, req, nil)
}

// MoveMessage moves a message into the destination folder and returns
// the moved copy (Graph assigns it a new id).
func (c *Client) MoveMessage(ctx context.Context, token, id, destinationFolderID string) (*Message, error) {
	body := map[string]string{"destinationId": destinationFolderID}
	var m Message
	if err := c.do(ctx, token, http.MethodPost, "/me/messages/"+url.PathEscape(id)+"/move", nil, body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage moves a message to deleted items.
func (c *Client) DeleteMessage(ctx context.Context, token, id string) error {
	return c.do(ctx, token, http.MethodDelete, "/me/messages/"+url.PathEscape(id), nil, nil, nil)
}

// ListMailFolders lists the mailbox's top-level folders.
func (c *Client) ListMailFolders(ctx context.Context, token string) ([]MailFolder, error) {
	var env listEnvelope[MailFolder]
	if err := c.do(ctx, token, http.MethodGet, "/me/mailFolders", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}
