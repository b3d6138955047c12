// Package subscription keeps one ticket collection in sync with the server.
//
// A Manager seeds its collection from paginated snapshot fetches and then
// folds live channel events into it. Changing the filter resets the
// collection, refetches the first page and rebinds the channel handler, in
// that order. Fetch results carry the generation they were issued under
// and are discarded if the collection was reset in the meantime.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/channel"
	"github.com/gotrs-io/gotrs-livesync/internal/debounce"
	"github.com/gotrs-io/gotrs-livesync/internal/events"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
	"github.com/gotrs-io/gotrs-livesync/internal/models"
	"github.com/gotrs-io/gotrs-livesync/internal/ticketlist"
)

const (
	defaultSearchDebounce = 500 * time.Millisecond
	commandTimeout        = 5 * time.Second
)

// PageSource fetches snapshot pages. *client.TicketsService implements it.
type PageSource interface {
	ListPage(ctx context.Context, filter models.TicketFilter, page int) (*models.TicketPage, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithSearchDebounce sets how long SetSearch waits for typing to settle.
func WithSearchDebounce(d time.Duration) Option {
	return func(m *Manager) { m.searchDelay = d }
}

// Status summarizes a manager for diagnostics.
type Status struct {
	Tenant      string              `json:"tenant" yaml:"tenant"`
	State       string              `json:"state" yaml:"state"`
	Filter      models.TicketFilter `json:"filter" yaml:"filter"`
	Page        int                 `json:"page" yaml:"page"`
	HasMore     bool                `json:"hasMore" yaml:"has_more"`
	Loading     bool                `json:"loading" yaml:"loading"`
	ServerCount int                 `json:"serverCount" yaml:"server_count"`
	Size        int                 `json:"size" yaml:"size"`
	Unread      int                 `json:"unread" yaml:"unread"`
	LastSync    time.Time           `json:"lastSync" yaml:"last_sync"`
}

// Manager owns one collection and its binding to a tenant channel.
type Manager struct {
	ch          channel.Channel
	source      PageSource
	reducer     *ticketlist.Reducer
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	searchDelay time.Duration
	search      *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	// filterMu serializes resets: SetFilter, Resync and reconnect resyncs.
	filterMu sync.Mutex

	mu            sync.Mutex
	coll          ticketlist.Collection
	filter        models.TicketFilter
	handle        *Handle
	started       bool
	closed        bool
	epoch         uint64
	generation    uint64
	page          int
	hasMore       bool
	serverCount   int
	loading       bool
	sawDisconnect bool
	version       uint64
	lastSync      time.Time

	notifyMu sync.Mutex
	notified uint64

	listenMu  sync.Mutex
	listenSeq int
	onChange  []changeListener
	onState   []stateListener
}

type changeListener struct {
	id int
	fn func(ticketlist.Collection)
}

type stateListener struct {
	id int
	fn func(channel.State)
}

// New creates a manager. Nothing is fetched or subscribed until the first
// SetFilter.
func New(ch channel.Channel, source PageSource, opts ...Option) *Manager {
	m := &Manager{
		ch:          ch,
		source:      source,
		logger:      zerolog.Nop(),
		searchDelay: defaultSearchDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "subscription").Str("tenant", ch.Tenant()).Logger()
	m.reducer = ticketlist.NewReducer(m.logger, func(op ticketlist.Op, reason string) {
		m.metrics.EventDropped(reason)
	})
	m.search = debounce.New(m.searchDelay)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Collection returns the current snapshot.
func (m *Manager) Collection() ticketlist.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll
}

// Filter returns the active filter.
func (m *Manager) Filter() models.TicketFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

// Status reports pagination and connectivity.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Tenant:      m.ch.Tenant(),
		State:       m.ch.State().String(),
		Filter:      m.filter,
		Page:        m.page,
		HasMore:     m.hasMore,
		Loading:     m.loading,
		ServerCount: m.serverCount,
		Size:        m.coll.Len(),
		Unread:      m.coll.Unread(),
		LastSync:    m.lastSync,
	}
}

// OnChange registers cb for every new collection snapshot and returns a
// function that unregisters it. Callbacks run synchronously and in order
// and must not call SetFilter, LoadMore or Resync themselves.
func (m *Manager) OnChange(cb func(ticketlist.Collection)) func() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listenSeq++
	id := m.listenSeq
	m.onChange = append(m.onChange, changeListener{id: id, fn: cb})
	return func() {
		m.listenMu.Lock()
		defer m.listenMu.Unlock()
		for i, l := range m.onChange {
			if l.id == id {
				m.onChange = append(m.onChange[:i:i], m.onChange[i+1:]...)
				return
			}
		}
	}
}

// OnState registers cb for channel connectivity changes.
func (m *Manager) OnState(cb func(channel.State)) func() {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listenSeq++
	id := m.listenSeq
	m.onState = append(m.onState, stateListener{id: id, fn: cb})
	return func() {
		m.listenMu.Lock()
		defer m.listenMu.Unlock()
		for i, l := range m.onState {
			if l.id == id {
				m.onState = append(m.onState[:i:i], m.onState[i+1:]...)
				return
			}
		}
	}
}

// SetFilter switches the view to filter. The old channel handler is
// released, the collection reset, page 1 fetched, and a handler for the new
// filter registered. A filter with the same identity as the active one is
// a no-op once started.
//
// A failed first page is returned as *PageError; the channel handler is
// still registered so live events keep arriving.
func (m *Manager) SetFilter(ctx context.Context, filter models.TicketFilter) error {
	filter = filter.Normalize()

	m.filterMu.Lock()
	defer m.filterMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started && m.filter.Key() == filter.Key() {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	old := m.handle
	m.handle = nil
	m.epoch++
	m.mu.Unlock()

	if err := old.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("releasing previous channel handler failed")
	}

	gen := m.reset(filter)
	m.logger.Info().Str("filter", filter.Key()).Msg("filter changed")
	fetchErr := m.fetch(ctx, gen, filter, 1)

	h, err := m.Open(ctx, filter)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = h.Close()
		return ErrClosed
	}
	m.handle = h
	m.mu.Unlock()
	return fetchErr
}

// SetSearch updates the free-text search term once input has settled.
// Each call cancels the previous pending one.
func (m *Manager) SetSearch(term string) error {
	m.mu.Lock()
	closed, started := m.closed, m.started
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}

	m.search.Trigger(func() {
		filter := m.Filter()
		filter.Search = term
		if err := m.SetFilter(m.ctx, filter); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn().Err(err).Str("search", term).Msg("search refresh failed")
		}
	})
	return nil
}

// LoadMore fetches the next page and merges it. It is a no-op when the
// server reported no further pages, and fails with ErrFetchInFlight while
// any page is loading. If page 1 has not loaded yet, LoadMore fetches it.
func (m *Manager) LoadMore(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.started:
		m.mu.Unlock()
		return ErrNotStarted
	case m.loading:
		m.mu.Unlock()
		return ErrFetchInFlight
	case !m.hasMore && m.page > 0:
		m.mu.Unlock()
		return nil
	}
	m.loading = true
	gen, filter, next := m.generation, m.filter, m.page+1
	m.mu.Unlock()

	return m.fetch(ctx, gen, filter, next)
}

// Resync discards the collection and reloads page 1 under the current
// filter, keeping the channel handler.
func (m *Manager) Resync(ctx context.Context) error {
	return m.resync(ctx, "manual")
}

func (m *Manager) resync(ctx context.Context, trigger string) error {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	filter := m.filter
	m.mu.Unlock()

	m.metrics.Resync(trigger)
	m.logger.Info().Str("trigger", trigger).Msg("resyncing collection")
	gen := m.reset(filter)
	return m.fetch(ctx, gen, filter, 1)
}

// Close releases the channel handler and stops pending work. It is safe
// to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	h := m.handle
	m.handle = nil
	m.epoch++
	m.mu.Unlock()

	m.search.Stop()
	m.cancel()
	return h.Close()
}

// reset empties the collection under a new generation and publishes the
// empty snapshot.
func (m *Manager) reset(filter models.TicketFilter) uint64 {
	m.mu.Lock()
	m.filter = filter
	m.generation++
	gen := m.generation
	m.coll = m.reducer.Apply(m.coll, ticketlist.Reset{})
	m.metrics.ReducerOp(string(ticketlist.OpReset))
	m.page = 0
	m.hasMore = false
	m.serverCount = 0
	m.loading = true
	snap, v := m.bumpLocked()
	m.mu.Unlock()

	m.notify(v, snap)
	return gen
}

func (m *Manager) fetch(ctx context.Context, gen uint64, filter models.TicketFilter, page int) error {
	began := time.Now()
	res, err := m.source.ListPage(ctx, filter, page)
	m.metrics.PageFetched(time.Since(began).Seconds())

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.metrics.StalePageDiscarded()
		m.logger.Debug().Int("page", page).Uint64("generation", gen).Msg("discarding stale page")
		return nil
	}
	m.loading = false
	if err != nil {
		m.mu.Unlock()
		m.metrics.PageFailed()
		m.logger.Warn().Err(err).Int("page", page).Msg("page fetch failed")
		return &PageError{Page: page, Err: err}
	}
	if res == nil {
		res = &models.TicketPage{}
	}
	m.coll = m.reducer.Apply(m.coll, ticketlist.Load{Batch: res.Tickets})
	m.metrics.ReducerOp(string(ticketlist.OpLoad))
	m.page = page
	m.hasMore = res.HasMore
	m.serverCount = res.Count
	if page == 1 {
		m.lastSync = time.Now()
	}
	snap, v := m.bumpLocked()
	m.mu.Unlock()

	m.logger.Debug().Int("page", page).Int("tickets", len(res.Tickets)).Bool("has_more", res.HasMore).Msg("page loaded")
	m.notify(v, snap)
	return nil
}

func (m *Manager) bumpLocked() (ticketlist.Collection, uint64) {
	m.version++
	m.metrics.CollectionSize(m.coll.Len())
	return m.coll, m.version
}

// notify delivers snapshot v unless a newer one was already delivered.
func (m *Manager) notify(v uint64, snap ticketlist.Collection) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if v <= m.notified {
		return
	}
	m.notified = v

	m.listenMu.Lock()
	fns := make([]func(ticketlist.Collection), 0, len(m.onChange))
	for _, l := range m.onChange {
		fns = append(fns, l.fn)
	}
	m.listenMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (m *Manager) notifyState(s channel.State) {
	m.listenMu.Lock()
	fns := make([]func(channel.State), 0, len(m.onState))
	for _, l := range m.onState {
		fns = append(fns, l.fn)
	}
	m.listenMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) onEvent(epoch uint64, filter models.TicketFilter, ev events.Event) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		m.metrics.EventDropped("stale_subscription")
		return
	}
	action := route(filter, m.coll, ev)
	if action == nil {
		m.mu.Unlock()
		m.metrics.EventDropped("unroutable")
		return
	}
	m.coll = m.reducer.Apply(m.coll, action)
	m.metrics.ReducerOp(string(action.Op()))
	snap, v := m.bumpLocked()
	m.mu.Unlock()

	m.notify(v, snap)
}

func (m *Manager) onChannelState(epoch uint64, filter models.TicketFilter, s channel.State) {
	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	resync := false
	switch s {
	case channel.StateDisconnected:
		m.sawDisconnect = true
	case channel.StateConnected:
		resync = m.sawDisconnect
		m.sawDisconnect = false
	}
	m.mu.Unlock()

	m.notifyState(s)
	if s != channel.StateConnected {
		return
	}

	// Events missed while offline are not replayed, so a reconnect reloads
	// from scratch.
	go func() {
		m.join(m.ctx, filter)
		if !resync {
			return
		}
		if err := m.resync(m.ctx, "reconnect"); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn().Err(err).Msg("reconnect resync failed")
		}
	}()
}

// Open registers a channel handler that folds events for filter into the
// collection while the current binding is active, and sends the join
// commands. SetFilter manages handles itself; Open is the primitive it
// builds on.
func (m *Manager) Open(ctx context.Context, filter models.TicketFilter) (*Handle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	epoch := m.epoch
	m.mu.Unlock()

	reg, err := m.ch.Subscribe(channel.Handler{
		OnEvent: func(ev events.Event) { m.onEvent(epoch, filter, ev) },
		OnState: func(s channel.State) { m.onChannelState(epoch, filter, s) },
	})
	if err != nil {
		return nil, err
	}
	h := &Handle{m: m, reg: reg, filter: filter, epoch: epoch}
	m.join(ctx, filter)
	return h, nil
}

// join asks the server for the tenant's ticket and notification topics.
// It is repeated on every reconnect, so a send on a down channel is not an
// error.
func (m *Manager) join(ctx context.Context, filter models.TicketFilter) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	for _, cmd := range []channel.Command{
		{Command: channel.CommandJoinTickets, Status: string(filter.Status)},
		{Command: channel.CommandJoinNotification},
	} {
		if err := m.ch.Send(ctx, cmd); err != nil {
			if !errors.Is(err, channel.ErrNotConnected) {
				m.logger.Warn().Err(err).Str("command", cmd.Command).Msg("join command failed")
			}
			return
		}
	}
}

// Handle is one binding of the collection to the channel.
type Handle struct {
	m      *Manager
	reg    *channel.Registration
	filter models.TicketFilter
	epoch  uint64
	once   sync.Once
	err    error
}

// Filter returns the filter the handle routes events for.
func (h *Handle) Filter() models.TicketFilter { return h.filter }

// Close leaves the ticket topic and releases the channel handler. Safe to
// call more than once and on a nil handle.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		err := h.m.ch.Send(ctx, channel.Command{Command: channel.CommandLeaveTickets, Status: string(h.filter.Status)})
		if err != nil && !errors.Is(err, channel.ErrNotConnected) {
			h.m.logger.Debug().Err(err).Msg("leave command failed")
		}
		h.err = h.reg.Close()
	})
	return h.err
}
