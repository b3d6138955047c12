package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gotrs-io/gotrs-livesync/internal/events"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

func TestRoute(t *testing.T) {
	current := ticketlist.NewCollection(
		ticket(1, models.StatusOpen, 2),
		ticket(2, models.StatusOpen, 0),
	)
	more := ticket(1, models.StatusOpen, 3)
	same := ticket(1, models.StatusOpen, 2)
	fresh := ticket(8, models.StatusOpen, 1)
	read := ticket(1, models.StatusOpen, 0)
	closed := ticket(1, models.StatusClosed, 4)
	contact := models.Contact{ID: 3, Name: "Ana"}

	tests := []struct {
		name string
		ev   events.Event
		want ticketlist.Action
	}{
		{"create in scope promotes", events.TicketCreated{Ticket: fresh}, ticketlist.UpsertPromote{Ticket: fresh}},
		{"create out of scope removes", events.TicketCreated{Ticket: ticket(8, models.StatusClosed, 0)}, ticketlist.Remove{ID: 8}},
		{"update in scope keeps position", events.TicketUpdated{Ticket: same}, ticketlist.UpsertUpdate{Ticket: same}},
		{"update out of scope removes", events.TicketUpdated{Ticket: closed}, ticketlist.Remove{ID: 1}},
		{"delete removes", events.TicketDeleted{TicketID: 2}, ticketlist.Remove{ID: 2}},
		{"unread without ticket clears", events.UnreadChanged{TicketID: 1}, ticketlist.ClearUnread{ID: 1}},
		{"unread zero clears", events.UnreadChanged{TicketID: 1, Ticket: &read}, ticketlist.ClearUnread{ID: 1}},
		{"unread increase promotes", events.UnreadChanged{TicketID: 1, Ticket: &more}, ticketlist.UpsertPromote{Ticket: more}},
		{"unread unchanged updates", events.UnreadChanged{TicketID: 1, Ticket: &same}, ticketlist.UpsertUpdate{Ticket: same}},
		{"unread for unseen ticket promotes", events.UnreadChanged{TicketID: 8, Ticket: &fresh}, ticketlist.UpsertPromote{Ticket: fresh}},
		{"unread out of scope removes", events.UnreadChanged{TicketID: 1, Ticket: &closed}, ticketlist.Remove{ID: 1}},
		{"contact update", events.ContactUpdated{Contact: contact}, ticketlist.UpdateContact{Contact: contact}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, route(openFilter, current, tt.ev))
		})
	}
}

func TestRoutePartialUnreadPayload(t *testing.T) {
	queue := int64(4)
	held := models.Ticket{
		ID:             1,
		Status:         models.StatusOpen,
		QueueID:        &queue,
		Tags:           []models.Tag{{ID: 2, Name: "vip"}},
		UnreadMessages: 2,
		ContactID:      3,
		Contact:        &models.Contact{ID: 3, Name: "Ana"},
	}
	current := ticketlist.NewCollection(held)

	t.Run("rising counter keeps held fields", func(t *testing.T) {
		got := route(openFilter, current, events.UnreadChanged{TicketID: 1, Ticket: &models.Ticket{ID: 1, UnreadMessages: 5}})
		want := held
		want.UnreadMessages = 5
		assert.Equal(t, ticketlist.UpsertPromote{Ticket: want}, got)
	})

	t.Run("zero counter clears", func(t *testing.T) {
		got := route(openFilter, current, events.UnreadChanged{TicketID: 1, Ticket: &models.Ticket{ID: 1}})
		assert.Equal(t, ticketlist.ClearUnread{ID: 1}, got)
	})

	t.Run("carried status still decides scope", func(t *testing.T) {
		got := route(openFilter, current, events.UnreadChanged{TicketID: 1, Ticket: &models.Ticket{ID: 1, Status: models.StatusClosed, UnreadMessages: 5}})
		assert.Equal(t, ticketlist.Remove{ID: 1}, got)
	})

	t.Run("unknown ticket without status is ignored", func(t *testing.T) {
		got := route(openFilter, current, events.UnreadChanged{TicketID: 9, Ticket: &models.Ticket{ID: 9, UnreadMessages: 1}})
		assert.Nil(t, got)
	})
}
