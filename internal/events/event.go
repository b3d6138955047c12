// Package events defines the notifications pushed on a tenant channel and
// decodes them from the wire into a closed set of typed events.
package events

import (
	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

// Action is the discriminator carried by every notification.
type Action string

const (
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionUpdateUnread  Action = "updateUnread"
	ActionContactUpdate Action = "contactUpdate"
)

// Event is one decoded notification. The concrete types are TicketCreated,
// TicketUpdated, TicketDeleted, UnreadChanged and ContactUpdated.
type Event interface {
	Action() Action
}

// TicketCreated announces a new ticket.
type TicketCreated struct {
	Ticket models.Ticket
}

// TicketUpdated carries the full new state of a ticket.
type TicketUpdated struct {
	Ticket models.Ticket
}

// TicketDeleted announces a removed ticket.
type TicketDeleted struct {
	TicketID int64
}

// UnreadChanged reports a new unread counter. Ticket is nil when the
// server only sent the id, which means the messages were read.
type UnreadChanged struct {
	TicketID int64
	Ticket   *models.Ticket
}

// ContactUpdated carries a changed contact.
type ContactUpdated struct {
	Contact models.Contact
}

func (TicketCreated) Action() Action  { return ActionCreate }
func (TicketUpdated) Action() Action  { return ActionUpdate }
func (TicketDeleted) Action() Action  { return ActionDelete }
func (UnreadChanged) Action() Action  { return ActionUpdateUnread }
func (ContactUpdated) Action() Action { return ActionContactUpdate }

// Envelope is the wire shape of a notification.
type Envelope struct {
	Action   Action          `json:"action"`
	Ticket   *models.Ticket  `json:"ticket,omitempty"`
	TicketID int64           `json:"ticketId,omitempty"`
	Contact  *models.Contact `json:"contact,omitempty"`
}

// Encode converts a typed event back into its wire envelope.
func Encode(ev Event) Envelope {
	switch e := ev.(type) {
	case TicketCreated:
		t := e.Ticket
		return Envelope{Action: ActionCreate, Ticket: &t, TicketID: t.ID}
	case TicketUpdated:
		t := e.Ticket
		return Envelope{Action: ActionUpdate, Ticket: &t, TicketID: t.ID}
	case TicketDeleted:
		return Envelope{Action: ActionDelete, TicketID: e.TicketID}
	case UnreadChanged:
		return Envelope{Action: ActionUpdateUnread, Ticket: e.Ticket, TicketID: e.TicketID}
	case ContactUpdated:
		c := e.Contact
		return Envelope{Action: ActionContactUpdate, Contact: &c}
	}
	return Envelope{}
}
