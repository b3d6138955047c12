package models

import (
	"encoding/json"
	"slices"
	"strings"
)

// TicketFilter describes which tickets a list view accepts.
//
// Status, queue, tag and user constraints are evaluated client side by
// Matches. Search is applied by the server only and is part of the filter
// identity so that a new search term resets the list.
type TicketFilter struct {
	Status   TicketStatus `json:"status,omitempty" mapstructure:"status"`
	QueueIDs []int64      `json:"queueIds,omitempty" mapstructure:"queue_ids"`
	TagIDs   []int64      `json:"tags,omitempty" mapstructure:"tag_ids"`
	UserIDs  []int64      `json:"users,omitempty" mapstructure:"user_ids"`
	ShowAll  bool         `json:"showAll" mapstructure:"show_all"`
	// CurrentUserID scopes "mine" views when ShowAll is false.
	CurrentUserID int64  `json:"currentUserId,omitempty" mapstructure:"current_user_id"`
	Search        string `json:"searchParam,omitempty" mapstructure:"search"`
}

// Normalize returns a copy with sorted, de-duplicated id lists and a trimmed
// search term.
func (f TicketFilter) Normalize() TicketFilter {
	out := f
	out.QueueIDs = sortedUnique(f.QueueIDs)
	out.TagIDs = sortedUnique(f.TagIDs)
	out.UserIDs = sortedUnique(f.UserIDs)
	out.Search = strings.TrimSpace(f.Search)
	return out
}

// Key is the filter identity. Two filters with the same key select the same
// tickets.
func (f TicketFilter) Key() string {
	b, err := json.Marshal(f.Normalize())
	if err != nil {
		// Only plain values are marshalled; this cannot happen.
		return ""
	}
	return string(b)
}

// Matches reports whether t satisfies the client-checkable part of the filter.
func (f TicketFilter) Matches(t Ticket) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if len(f.QueueIDs) > 0 {
		if t.QueueID == nil || !slices.Contains(f.QueueIDs, *t.QueueID) {
			return false
		}
	}
	if len(f.TagIDs) > 0 {
		found := false
		for _, id := range f.TagIDs {
			if t.HasTag(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.UserIDs) > 0 {
		if t.UserID == nil || !slices.Contains(f.UserIDs, *t.UserID) {
			return false
		}
	}
	if !f.ShowAll && f.CurrentUserID != 0 {
		// Mine: assigned to the current user or still unassigned.
		if t.UserID != nil && *t.UserID != f.CurrentUserID {
			return false
		}
	}
	return true
}

func sortedUnique(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
