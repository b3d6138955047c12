package models

import (
	"fmt"
	"time"
)

// TicketStatus is the server-driven lifecycle state of a ticket.
type TicketStatus string

const (
	StatusOpen    TicketStatus = "open"
	StatusPending TicketStatus = "pending"
	StatusClosed  TicketStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusClosed:
		return true
	}
	return false
}

// ParseTicketStatus converts a raw status string, rejecting unknown values.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	s := TicketStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown ticket status %q", raw)
	}
	return s, nil
}

// Tag labels a ticket.
type Tag struct {
	ID    int64  `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Contact is the customer a ticket belongs to.
type Contact struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Number        string `json:"number,omitempty" yaml:"number,omitempty"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	ProfilePicURL string `json:"profilePicUrl,omitempty" yaml:"profile_pic_url,omitempty"`
}

// Ticket represents one support conversation as seen by the console.
//
// Tickets held in a collection are treated as immutable values: the Tags
// slice and the Contact pointer may be shared between snapshots and must
// not be modified in place.
type Ticket struct {
	ID             int64        `json:"id" yaml:"id"`
	Status         TicketStatus `json:"status" yaml:"status"`
	UserID         *int64       `json:"userId,omitempty" yaml:"user_id,omitempty"`
	QueueID        *int64       `json:"queueId,omitempty" yaml:"queue_id,omitempty"`
	Tags           []Tag        `json:"tags,omitempty" yaml:"tags,omitempty"`
	UnreadMessages int          `json:"unreadMessages" yaml:"unread_messages"`
	UpdatedAt      time.Time    `json:"updatedAt" yaml:"updated_at"`
	ContactID      int64        `json:"contactId" yaml:"contact_id"`
	Contact        *Contact     `json:"contact,omitempty" yaml:"contact,omitempty"`
	LastMessage    string       `json:"lastMessage,omitempty" yaml:"last_message,omitempty"`
}

// HasTag reports whether the ticket carries the tag with the given id.
func (t Ticket) HasTag(id int64) bool {
	for _, tag := range t.Tags {
		if tag.ID == id {
			return true
		}
	}
	return false
}

// TicketPage is one page of snapshot records returned by the ticket listing endpoint.
type TicketPage struct {
	Tickets []Ticket `json:"tickets"`
	HasMore bool     `json:"hasMore"`
	Count   int      `json:"count"`
}
