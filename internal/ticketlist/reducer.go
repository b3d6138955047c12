package ticketlist

import (
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

// Op names a reducer operation. It is used as a log field and metric label.
type Op string

const (
	OpLoad          Op = "load"
	OpUpsertUpdate  Op = "upsert_update"
	OpUpsertPromote Op = "upsert_promote"
	OpClearUnread   Op = "clear_unread"
	OpRemove        Op = "remove"
	OpReset         Op = "reset"
	OpUpdateContact Op = "update_contact"
)

// Action is one state transition accepted by Reducer.Apply.
type Action interface {
	Op() Op
}

// Load merges a snapshot page: known ids are replaced in place, unseen ids
// are appended in batch order.
type Load struct{ Batch []models.Ticket }

// UpsertUpdate replaces a ticket in place, or inserts it at the front. An
// upsert never lowers the unread counter of a held ticket; only ClearUnread
// does.
type UpsertUpdate struct{ Ticket models.Ticket }

// UpsertPromote replaces a ticket and moves it to the front, or inserts it
// at the front.
type UpsertPromote struct{ Ticket models.Ticket }

// ClearUnread zeroes the unread counter of a ticket without moving it.
type ClearUnread struct{ ID int64 }

// Remove deletes a ticket if present.
type Remove struct{ ID int64 }

// Reset empties the collection.
type Reset struct{}

// UpdateContact refreshes the embedded contact of every ticket that
// references it.
type UpdateContact struct{ Contact models.Contact }

func (Load) Op() Op          { return OpLoad }
func (UpsertUpdate) Op() Op  { return OpUpsertUpdate }
func (UpsertPromote) Op() Op { return OpUpsertPromote }
func (ClearUnread) Op() Op   { return OpClearUnread }
func (Remove) Op() Op        { return OpRemove }
func (Reset) Op() Op         { return OpReset }
func (UpdateContact) Op() Op { return OpUpdateContact }

// DropFunc is told about input the reducer refused.
type DropFunc func(op Op, reason string)

// Reducer applies actions to collections. It performs no I/O and never
// fails: malformed input is logged, reported to the drop hook and ignored.
type Reducer struct {
	logger zerolog.Logger
	onDrop DropFunc
}

// NewReducer creates a reducer. onDrop may be nil.
func NewReducer(logger zerolog.Logger, onDrop DropFunc) *Reducer {
	return &Reducer{logger: logger, onDrop: onDrop}
}

// Apply returns the collection that results from applying a to c. The input
// collection is never modified.
func (r *Reducer) Apply(c Collection, a Action) Collection {
	switch act := a.(type) {
	case Load:
		return r.load(c, act.Batch)
	case UpsertUpdate:
		return r.upsert(c, act.Ticket, false)
	case UpsertPromote:
		return r.upsert(c, act.Ticket, true)
	case ClearUnread:
		return r.clearUnread(c, act.ID)
	case Remove:
		return r.remove(c, act.ID)
	case Reset:
		return Collection{}
	case UpdateContact:
		return r.updateContact(c, act.Contact)
	case nil:
		r.drop("", "nil action")
		return c
	default:
		r.drop(a.Op(), "unsupported action")
		return c
	}
}

func (r *Reducer) drop(op Op, reason string) {
	r.logger.Warn().Str("op", string(op)).Str("reason", reason).Msg("ticket list input dropped")
	if r.onDrop != nil {
		r.onDrop(op, reason)
	}
}

func (r *Reducer) load(c Collection, batch []models.Ticket) Collection {
	if len(batch) == 0 {
		return c
	}

	index := make(map[int64]int, len(c.items))
	for i, t := range c.items {
		index[t.ID] = i
	}

	items := make([]models.Ticket, len(c.items), len(c.items)+len(batch))
	copy(items, c.items)

	var staged []models.Ticket
	stagedIdx := make(map[int64]int)
	for _, t := range batch {
		if t.ID == 0 {
			r.drop(OpLoad, "missing ticket id")
			continue
		}
		if pos, ok := index[t.ID]; ok {
			items[pos] = t
			continue
		}
		if pos, ok := stagedIdx[t.ID]; ok {
			staged[pos] = t
			continue
		}
		stagedIdx[t.ID] = len(staged)
		staged = append(staged, t)
	}

	return Collection{items: append(items, staged...)}
}

func (r *Reducer) upsert(c Collection, t models.Ticket, promote bool) Collection {
	op := OpUpsertUpdate
	if promote {
		op = OpUpsertPromote
	}
	if t.ID == 0 {
		r.drop(op, "missing ticket id")
		return c
	}

	pos := c.IndexOf(t.ID)
	if pos >= 0 {
		t.UnreadMessages = max(t.UnreadMessages, c.items[pos].UnreadMessages)
	}
	if pos >= 0 && !promote {
		items := make([]models.Ticket, len(c.items))
		copy(items, c.items)
		items[pos] = t
		return Collection{items: items}
	}

	items := make([]models.Ticket, 0, len(c.items)+1)
	items = append(items, t)
	for i, existing := range c.items {
		if i == pos {
			continue
		}
		items = append(items, existing)
	}
	return Collection{items: items}
}

func (r *Reducer) clearUnread(c Collection, id int64) Collection {
	if id == 0 {
		r.drop(OpClearUnread, "missing ticket id")
		return c
	}
	pos := c.IndexOf(id)
	if pos < 0 || c.items[pos].UnreadMessages == 0 {
		return c
	}
	items := make([]models.Ticket, len(c.items))
	copy(items, c.items)
	items[pos].UnreadMessages = 0
	return Collection{items: items}
}

func (r *Reducer) remove(c Collection, id int64) Collection {
	if id == 0 {
		r.drop(OpRemove, "missing ticket id")
		return c
	}
	pos := c.IndexOf(id)
	if pos < 0 {
		return c
	}
	items := make([]models.Ticket, 0, len(c.items)-1)
	items = append(items, c.items[:pos]...)
	items = append(items, c.items[pos+1:]...)
	return Collection{items: items}
}

func (r *Reducer) updateContact(c Collection, contact models.Contact) Collection {
	if contact.ID == 0 {
		r.drop(OpUpdateContact, "missing contact id")
		return c
	}
	var items []models.Ticket
	for i, t := range c.items {
		if t.ContactID != contact.ID && (t.Contact == nil || t.Contact.ID != contact.ID) {
			continue
		}
		if items == nil {
			items = make([]models.Ticket, len(c.items))
			copy(items, c.items)
		}
		updated := contact
		items[i].Contact = &updated
	}
	if items == nil {
		return c
	}
	return Collection{items: items}
}
