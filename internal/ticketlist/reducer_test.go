package ticketlist

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

func tk(id int64, unread int) models.Ticket {
	return models.Ticket{ID: id, Status: models.StatusOpen, UnreadMessages: unread}
}

func newTestReducer() *Reducer {
	return NewReducer(zerolog.Nop(), nil)
}

func TestLoadAppendsUnseenInBatchOrder(t *testing.T) {
	r := newTestReducer()

	c := r.Apply(Collection{}, Load{Batch: []models.Ticket{tk(1, 0), tk(2, 2)}})

	assert.Equal(t, []int64{1, 2}, c.IDs())
}

func TestLoadIsIdempotent(t *testing.T) {
	r := newTestReducer()
	batch := []models.Ticket{tk(4, 0), tk(1, 1), tk(9, 3)}
	start := NewCollection(tk(1, 0), tk(2, 0))

	once := r.Apply(start, Load{Batch: batch})
	twice := r.Apply(once, Load{Batch: batch})

	assert.Equal(t, once.Tickets(), twice.Tickets())
	assert.Equal(t, []int64{1, 2, 4, 9}, twice.IDs())
}

func TestLoadReplacesKnownInPlace(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 0), tk(3, 0))

	c := r.Apply(start, Load{Batch: []models.Ticket{tk(5, 0), tk(2, 7)}})

	assert.Equal(t, []int64{1, 2, 3, 5}, c.IDs())
	got, ok := c.Get(2)
	require.True(t, ok)
	assert.Equal(t, 7, got.UnreadMessages)
}

func TestLoadDeduplicatesWithinBatch(t *testing.T) {
	r := newTestReducer()

	c := r.Apply(Collection{}, Load{Batch: []models.Ticket{tk(1, 0), tk(2, 0), tk(1, 5)}})

	assert.Equal(t, []int64{1, 2}, c.IDs())
	got, _ := c.Get(1)
	assert.Equal(t, 5, got.UnreadMessages)
}

func TestLoadDropsMissingIdentifier(t *testing.T) {
	var drops []Op
	r := NewReducer(zerolog.Nop(), func(op Op, reason string) { drops = append(drops, op) })

	c := r.Apply(Collection{}, Load{Batch: []models.Ticket{tk(0, 0), tk(3, 0)}})

	assert.Equal(t, []int64{3}, c.IDs())
	assert.Equal(t, []Op{OpLoad}, drops)
}

func TestUpsertPromoteMovesExistingToFront(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 0), tk(3, 0))

	c := r.Apply(start, UpsertPromote{Ticket: tk(2, 4)})

	assert.Equal(t, []int64{2, 1, 3}, c.IDs())
	assert.Equal(t, 4, c.At(0).UnreadMessages)
}

func TestUpsertPromoteInsertsUnseenAtFront(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 2))

	c := r.Apply(start, UpsertPromote{Ticket: tk(3, 1)})

	assert.Equal(t, []int64{3, 1, 2}, c.IDs())
}

func TestUpsertUpdateKeepsPosition(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 0), tk(3, 0))
	updated := tk(2, 0)
	updated.LastMessage = "hello"

	c := r.Apply(start, UpsertUpdate{Ticket: updated})

	assert.Equal(t, []int64{1, 2, 3}, c.IDs())
	assert.Equal(t, "hello", c.At(1).LastMessage)
}

func TestUpsertUpdateInsertsUnseenAtFront(t *testing.T) {
	r := newTestReducer()

	c := r.Apply(NewCollection(tk(1, 0)), UpsertUpdate{Ticket: tk(8, 0)})

	assert.Equal(t, []int64{8, 1}, c.IDs())
}

func TestUpsertNeverLowersUnread(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 5))

	c := r.Apply(start, UpsertUpdate{Ticket: tk(2, 2)})
	assert.Equal(t, 5, c.At(1).UnreadMessages)

	c = r.Apply(c, UpsertPromote{Ticket: tk(2, 1)})
	assert.Equal(t, []int64{2, 1}, c.IDs())
	assert.Equal(t, 5, c.At(0).UnreadMessages)

	c = r.Apply(c, UpsertUpdate{Ticket: tk(2, 7)})
	assert.Equal(t, 7, c.At(0).UnreadMessages)

	c = r.Apply(c, ClearUnread{ID: 2})
	assert.Equal(t, 0, c.At(0).UnreadMessages)
	assert.Equal(t, 0, c.Unread())
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 0), tk(2, 0))

	missing := r.Apply(start, Remove{ID: 42})
	assert.Equal(t, start.IDs(), missing.IDs())

	once := r.Apply(start, Remove{ID: 1})
	twice := r.Apply(once, Remove{ID: 1})
	assert.Equal(t, []int64{2}, once.IDs())
	assert.Equal(t, once.IDs(), twice.IDs())
}

func TestClearUnreadKeepsPosition(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 3), tk(2, 5), tk(3, 0))

	c := r.Apply(start, ClearUnread{ID: 2})

	assert.Equal(t, []int64{1, 2, 3}, c.IDs())
	assert.Equal(t, 0, c.At(1).UnreadMessages)
	assert.Equal(t, 3, c.At(0).UnreadMessages)

	same := r.Apply(c, ClearUnread{ID: 99})
	assert.Equal(t, c.Tickets(), same.Tickets())
}

func TestResetEmptiesCollection(t *testing.T) {
	r := newTestReducer()

	c := r.Apply(NewCollection(tk(1, 0), tk(2, 0)), Reset{})

	assert.Equal(t, 0, c.Len())
}

func TestUpdateContactPatchesReferencingTickets(t *testing.T) {
	r := newTestReducer()
	a := tk(1, 0)
	a.ContactID = 10
	b := tk(2, 0)
	b.ContactID = 11
	start := NewCollection(a, b)

	c := r.Apply(start, UpdateContact{Contact: models.Contact{ID: 10, Name: "Ana"}})

	assert.Equal(t, []int64{1, 2}, c.IDs())
	require.NotNil(t, c.At(0).Contact)
	assert.Equal(t, "Ana", c.At(0).Contact.Name)
	assert.Nil(t, c.At(1).Contact)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	r := newTestReducer()
	start := NewCollection(tk(1, 2), tk(2, 3))
	before := start.Tickets()

	r.Apply(start, ClearUnread{ID: 1})
	r.Apply(start, UpsertUpdate{Ticket: tk(2, 9)})
	r.Apply(start, UpsertPromote{Ticket: tk(2, 9)})
	r.Apply(start, Remove{ID: 1})
	r.Apply(start, Load{Batch: []models.Ticket{tk(1, 7)}})

	assert.Equal(t, before, start.Tickets())
}

func TestScenarioLoadCreateDelete(t *testing.T) {
	r := newTestReducer()

	c := r.Apply(Collection{}, Load{Batch: []models.Ticket{tk(1, 0), tk(2, 2)}})
	require.Equal(t, []int64{1, 2}, c.IDs())

	c = r.Apply(c, UpsertPromote{Ticket: tk(3, 1)})
	require.Equal(t, []int64{3, 1, 2}, c.IDs())

	c = r.Apply(c, Remove{ID: 1})
	assert.Equal(t, []int64{3, 2}, c.IDs())
}

func TestRandomSequencesKeepIdsUnique(t *testing.T) {
	r := newTestReducer()
	rng := rand.New(rand.NewSource(7))
	c := Collection{}

	for i := 0; i < 2000; i++ {
		id := int64(rng.Intn(15) + 1)
		switch rng.Intn(6) {
		case 0:
			batch := make([]models.Ticket, rng.Intn(5))
			for j := range batch {
				batch[j] = tk(int64(rng.Intn(15)+1), rng.Intn(3))
			}
			c = r.Apply(c, Load{Batch: batch})
		case 1:
			c = r.Apply(c, UpsertUpdate{Ticket: tk(id, rng.Intn(3))})
		case 2:
			c = r.Apply(c, UpsertPromote{Ticket: tk(id, rng.Intn(3))})
		case 3:
			c = r.Apply(c, Remove{ID: id})
		case 4:
			c = r.Apply(c, ClearUnread{ID: id})
		default:
			c = r.Apply(c, UpsertPromote{Ticket: tk(id, 1)})
		}

		seen := make(map[int64]bool, c.Len())
		for _, got := range c.IDs() {
			require.False(t, seen[got], "duplicate id %d after step %d", got, i)
			seen[got] = true
		}
	}
}

func TestNilActionIsDropped(t *testing.T) {
	dropped := 0
	r := NewReducer(zerolog.Nop(), func(Op, string) { dropped++ })
	start := NewCollection(tk(1, 0))

	c := r.Apply(start, nil)

	assert.Equal(t, start.IDs(), c.IDs())
	assert.Equal(t, 1, dropped)
}
