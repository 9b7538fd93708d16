package outlooktools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/entragate/outlook-mcp/graph"
)

type listEventsArgs struct {
	// Start and End, when both set, expand recurring events within the
	// window. ISO 8601 date-times.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Top   int    `json:"top,omitempty"`
}

func (s *Service) listEvents(ctx context.Context, req *mcp.CallToolRequest, args listEventsArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_list_events")
	if errRes != nil {
		return errRes, nil, nil
	}
	events, err := s.graph.ListEvents(ctx, ra.AccessToken, graph.ListEventsOptions{
		StartDateTime: args.Start,
		EndDateTime:   args.End,
		Top:           args.Top,
	})
	return s.finish(ctx, err, events)
}

type eventIDArgs struct {
	// EventID is the Graph event id.
	EventID string `json:"eventId"`
}

func (s *Service) getEvent(ctx context.Context, req *mcp.CallToolRequest, args eventIDArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_get_event")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.EventID == "" {
		return errorResult("eventId must not be empty"), nil, nil
	}
	ev, err := s.graph.GetEvent(ctx, ra.AccessToken, args.EventID)
	return s.finish(ctx, err, ev)
}

type createEventArgs struct {
	Subject string `json:"subject"`
	// Start and End are ISO 8601 date-times in TimeZone.
	Start string `json:"start"`
	End   string `json:"end"`
	// TimeZone defaults to UTC.
	TimeZone string `json:"timeZone,omitempty"`
	// BodyType is "text" or "html"; defaults to text.
	BodyType  string   `json:"bodyType,omitempty"`
	Body      string   `json:"body,omitempty"`
	Location  string   `json:"location,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
	IsAllDay  bool     `json:"isAllDay,omitempty"`
}

func (s *Service) createEvent(ctx context.Context, req *mcp.CallToolRequest, args createEventArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_create_event")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.Subject == "" || args.Start == "" || args.End == "" {
		return errorResult("subject, start, and end are required"), nil, nil
	}
	ev, err := s.graph.CreateEvent(ctx, ra.AccessToken, eventFromArgs(args))
	return s.finish(ctx, err, ev)
}

type updateEventArgs struct {
	EventID string `json:"eventId"`
	// Unset fields are left untouched.
	Subject  string `json:"subject,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
	BodyType string `json:"bodyType,omitempty"`
	Body     string `json:"body,omitempty"`
	Location string `json:"location,omitempty"`
}

func (s *Service) updateEvent(ctx context.Context, req *mcp.CallToolRequest, args updateEventArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_update_event")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.EventID == "" {
		return errorResult("eventId must not be empty"), nil, nil
	}
	tz := args.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	patch := graph.Event{Subject: args.Subject}
	if args.Start != "" {
		patch.Start = &graph.DateTimeTimeZone{DateTime: args.Start, TimeZone: tz}
	}
	if args.End != "" {
		patch.End = &graph.DateTimeTimeZone{DateTime: args.End, TimeZone: tz}
	}
	if args.Body != "" {
		bodyType := args.BodyType
		if bodyType == "" {
			bodyType = "text"
		}
		patch.Body = &graph.ItemBody{ContentType: bodyType, Content: args.Body}
	}
	if args.Location != "" {
		patch.Location = &graph.Location{DisplayName: args.Location}
	}
	ev, err := s.graph.UpdateEvent(ctx, ra.AccessToken, args.EventID, patch)
	return s.finish(ctx, err, ev)
}

func (s *Service) deleteEvent(ctx context.Context, req *mcp.CallToolRequest, args eventIDArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_delete_event")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.EventID == "" {
		return errorResult("eventId must not be empty"), nil, nil
	}
	err := s.graph.DeleteEvent(ctx, ra.AccessToken, args.EventID)
	return s.finish(ctx, err, map[string]string{"status": "deleted"})
}

type respondEventArgs struct {
	EventID string `json:"eventId"`
	// Response is accept, decline, or tentativelyAccept.
	Response string `json:"response"`
	Comment  string `json:"comment,omitempty"`
}

func (s *Service) respondEvent(ctx context.Context, req *mcp.CallToolRequest, args respondEventArgs) (*mcp.CallToolResult, any, error) {
	ctx, ra, errRes := s.creds(ctx, "outlook_respond_event")
	if errRes != nil {
		return errRes, nil, nil
	}
	if args.EventID == "" {
		return errorResult("eventId must not be empty"), nil, nil
	}
	switch args.Response {
	case graph.RespondAccept, graph.RespondDecline, graph.RespondTentative:
	default:
		return errorResult("response must be accept, decline, or tentativelyAccept"), nil, nil
	}
	err := s.graph.RespondToEvent(ctx, ra.AccessToken, args.EventID, args.Response, args.Comment)
	return s.finish(ctx, err, map[string]string{"status": args.Response})
}

func eventFromArgs(args createEventArgs) graph.Event {
	tz := args.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	ev := graph.Event{
		Subject:  args.Subject,
		Start:    &graph.DateTimeTimeZone{DateTime: args.Start, TimeZone: tz},
		End:      &graph.DateTimeTimeZone{DateTime: args.End, TimeZone: tz},
		IsAllDay: args.IsAllDay,
	}
	if args.Body != "" {
		bodyType := args.BodyType
		if bodyType == "" {
			bodyType = "text"
		}
		ev.Body = &graph.ItemBody{ContentType: bodyType, Content: args.Body}
	}
	if args.Location != "" {
		ev.Location = &graph.Location{DisplayName: args.Location}
	}
	for _, a := range args.Attendees {
		ev.Attendees = append(ev.Attendees, graph.Attendee{
			EmailAddress: graph.EmailAddress{Address: a},
			Type:         "required",
		})
	}
	return ev
}
