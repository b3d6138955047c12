// Package ticketlist holds the ordered ticket collection backing a list view
// and the reducer that folds snapshot pages and live events into it.
package ticketlist

import (
	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

// Collection is an immutable ordered list of tickets with at most one entry
// per ticket id. The zero value is an empty collection.
type Collection struct {
	items []models.Ticket
}

// NewCollection builds a collection from tickets, keeping the first
// occurrence of every id and dropping tickets without an id.
func NewCollection(tickets ...models.Ticket) Collection {
	seen := make(map[int64]struct{}, len(tickets))
	items := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.ID == 0 {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		items = append(items, t)
	}
	return Collection{items: items}
}

// Len returns the number of tickets.
func (c Collection) Len() int { return len(c.items) }

// At returns the ticket at position i.
func (c Collection) At(i int) models.Ticket { return c.items[i] }

// Tickets returns a copy of the ordered tickets.
func (c Collection) Tickets() []models.Ticket {
	out := make([]models.Ticket, len(c.items))
	copy(out, c.items)
	return out
}

// IDs returns ticket ids in collection order.
func (c Collection) IDs() []int64 {
	ids := make([]int64, len(c.items))
	for i, t := range c.items {
		ids[i] = t.ID
	}
	return ids
}

// IndexOf returns the position of id, or -1.
func (c Collection) IndexOf(id int64) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Get looks a ticket up by id.
func (c Collection) Get(id int64) (models.Ticket, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.items[i], true
	}
	return models.Ticket{}, false
}

// Unread sums the unread message counters of all tickets.
func (c Collection) Unread() int {
	total := 0
	for _, t := range c.items {
		total += t.UnreadMessages
	}
	return total
}
