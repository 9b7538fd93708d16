package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DateTimeTimeZone is a Graph dateTimeTimeZone resource.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Location is a pass-through subset of a Graph location resource.
type Location struct {
	DisplayName string `json:"displayName,omitempty"`
}

// ResponseStatus carries an attendee's reply state.
type ResponseStatus struct {
	Response string `json:"response,omitempty"`
	Time     string `json:"time,omitempty"`
}

// Attendee is a Graph attendee resource.
type Attendee struct {
	EmailAddress EmailAddress    `json:"emailAddress"`
	Type         string          `json:"type,omitempty"`
	Status       *ResponseStatus `json:"status,omitempty"`
}

// Event is a pass-through subset of a Graph event resource.
type Event struct {
	ID          string            `json:"id,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	BodyPreview string            `json:"bodyPreview,omitempty"`
	Body        *ItemBody         `json:"body,omitempty"`
	Start       *DateTimeTimeZone `json:"start,omitempty"`
	End         *DateTimeTimeZone `json:"end,omitempty"`
	Location    *Location         `json:"location,omitempty"`
	Attendees   []Attendee        `json:"attendees,omitempty"`
	Organizer   *Recipient        `json:"organizer,omitempty"`
	IsAllDay    bool              `json:"isAllDay,omitempty"`
	IsCancelled bool              `json:"isCancelled,omitempty"`
	IsOnline    bool              `json:"isOnlineMeeting,omitempty"`
	WebLink     string            `json:"webLink,omitempty"`
}

// ListEventsOptions narrows a calendar listing.
type ListEventsOptions struct {
	// StartDateTime and EndDateTime, when both set, select the expanded
	// calendar view (occurrences of recurring events included) for that
	// window; ISO 8601, passed through.
	StartDateTime string
	EndDateTime   string
	// Top caps the page size; Graph's default applies when zero.
	Top int
}

// ListEvents lists the caller's calendar, soonest first.
func (c *Client) ListEvents(ctx context.Context, token string, opts ListEventsOptions) ([]Event, error) {
	path := "/me/events"
	q := url.Values{}
	q.Set("$orderby", "start/dateTime")
	if opts.StartDateTime != "" && opts.EndDateTime != "" {
		path = "/me/calendarView"
		q.Set("startDateTime", opts.StartDateTime)
		q.Set("endDateTime", opts.EndDateTime)
	}
	if opts.Top > 0 {
		q.Set("$top", strconv.Itoa(opts.Top))
	}
	var env listEnvelope[Event]
	if err := c.do(ctx, token, http.MethodGet, path, q, nil, &env); err != nil {
		return nil, err
	}
	return env.Value, nil
}

// GetEvent fetches one event by id.
func (c *Client) GetEvent(ctx context.Context, token, id string) (*Event, error) {
	var ev Event
	if err := c.do(ctx, token, http.MethodGet, "/me/events/"+url.PathEscape(id), nil, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CreateEvent creates an event on the caller's default calendar and
// returns the stored copy.
func (c *Client) CreateEvent(ctx context.Context, token string, ev Event) (*Event, error) {
	var created Event
	if err := c.do(ctx, token, http.MethodPost, "/me/events", nil, ev, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateEvent patches an existing event; zero fields are left untouched.
func (c *Client) UpdateEvent(ctx context.Context, token, id string, ev Event) (*Event, error) {
	var updated Event
	if err := c.do(ctx, token, http.MethodPatch, "/me/events/"+url.PathEscape(id), nil, ev, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent removes an event from the caller's calendar.
func (c *Client) DeleteEvent(ctx context.Context, token, id string) error {
	return c.do(ctx, token, http.MethodDelete, "/me/events/"+url.PathEscape(id), nil, nil, nil)
}

// Event response actions accepted by RespondToEvent.
const (
	RespondAccept    = "accept"
	RespondDecline   = "decline"
	RespondTentative = "tentativelyAccept"
)

// RespondToEvent accepts, declines, or tentatively accepts an
// invitation, optionally sending a comment to the organizer.
func (c *Client) RespondToEvent(ctx context.Context, token, id, action, comment string) error {
	switch action {
	case RespondAccept, RespondDecline, RespondTentative:
	default:
		return fmt.Errorf("unsupported event response %q", action)
	}
	body := map[string]any{"sendResponse": true}
	if comment != "" {
		body["comment"] = comment
	}
	return c.do(ctx, token, http.MethodPost, "/me/events/"+url.PathEscape(id)+"/"+action, nil, body, nil)
}
