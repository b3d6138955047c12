package subscription

import (
	"github.com/gotrs-io/gotrs-livesync/internal/events"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

// route maps a channel event to the reducer action it implies for a view
// with the given filter. Tickets that no longer match the filter are
// removed rather than updated. Only creations and rising unread counters
// promote a ticket to the front.
func route(filter models.TicketFilter, current ticketlist.Collection, ev events.Event) ticketlist.Action {
	switch e := ev.(type) {
	case events.TicketCreated:
		if !filter.Matches(e.Ticket) {
			return ticketlist.Remove{ID: e.Ticket.ID}
		}
		return ticketlist.UpsertPromote{Ticket: e.Ticket}

	case events.TicketUpdated:
		if !filter.Matches(e.Ticket) {
			return ticketlist.Remove{ID: e.Ticket.ID}
		}
		return ticketlist.UpsertUpdate{Ticket: e.Ticket}

	case events.TicketDeleted:
		return ticketlist.Remove{ID: e.TicketID}

	case events.UnreadChanged:
		if e.Ticket == nil {
			return ticketlist.ClearUnread{ID: e.TicketID}
		}
		prev, held := current.Get(e.TicketID)
		if !held && e.Ticket.Status == "" {
			// Too little to decide scope for a ticket we never loaded.
			return nil
		}
		merged := *e.Ticket
		if held {
			merged = mergeUnread(prev, *e.Ticket)
		}
		if !filter.Matches(merged) {
			return ticketlist.Remove{ID: e.TicketID}
		}
		if merged.UnreadMessages == 0 {
			return ticketlist.ClearUnread{ID: e.TicketID}
		}
		if !held || merged.UnreadMessages > prev.UnreadMessages {
			return ticketlist.UpsertPromote{Ticket: merged}
		}
		return ticketlist.UpsertUpdate{Ticket: merged}

	case events.ContactUpdated:
		return ticketlist.UpdateContact{Contact: e.Contact}
	}
	return nil
}

// mergeUnread overlays the fields an updateUnread payload actually carries
// onto the held record. The counter is always taken from the payload.
func mergeUnread(held, in models.Ticket) models.Ticket {
	out := held
	out.UnreadMessages = in.UnreadMessages
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.UserID != nil {
		out.UserID = in.UserID
	}
	if in.QueueID != nil {
		out.QueueID = in.QueueID
	}
	if in.Tags != nil {
		out.Tags = in.Tags
	}
	if in.ContactID != 0 {
		out.ContactID = in.ContactID
	}
	if in.Contact != nil {
		out.Contact = in.Contact
	}
	if in.LastMessage != "" {
		out.LastMessage = in.LastMessage
	}
	if !in.UpdatedAt.IsZero() {
		out.UpdatedAt = in.UpdatedAt
	}
	return out
}
