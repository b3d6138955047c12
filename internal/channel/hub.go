package channel

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/events"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
)

// Hub fans decoded events and state changes out to registered handlers.
// Transports embed a Hub and feed it raw frames.
type Hub struct {
	tenant  string
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// lifeMu serializes registration changes with transport start/stop.
	lifeMu      sync.Mutex
	start       func() error
	stop        func()
	running     bool
	linger      time.Duration
	lingerTimer *time.Timer
	lingerSeq   uint64

	mu     sync.Mutex
	regs   []*Registration
	state  State
	closed bool
}

// NewHub creates a hub with no transport attached. Subscribe and Publish
// work without one, which lets in-process producers drive it directly.
func NewHub(tenant string, logger zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		tenant:  tenant,
		logger:  logger.With().Str("tenant", tenant).Logger(),
		metrics: m,
	}
}

// Bind attaches transport lifecycle hooks: start runs when the first handler
// registers, stop when the last one leaves and the linger period passes.
func (h *Hub) Bind(start func() error, stop func()) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	h.start = start
	h.stop = stop
}

// SetLinger delays the transport stop after the last handler leaves. A
// handler that subscribes within d reuses the running transport. Zero stops
// immediately.
func (h *Hub) SetLinger(d time.Duration) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	h.linger = d
}

// Tenant returns the tenant this hub serves.
func (h *Hub) Tenant() string { return h.tenant }

// State returns the last reported connectivity.
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Handlers returns the number of live registrations.
func (h *Hub) Handlers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.regs)
}

// Subscribe registers a handler. The returned registration must be closed
// to release it.
func (h *Hub) Subscribe(handler Handler) (*Registration, error) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	reg := &Registration{id: uuid.New().String(), hub: h, handler: handler}
	h.regs = append(h.regs, reg)
	count := len(h.regs)
	h.mu.Unlock()

	h.metrics.ChannelHandlers(count)
	h.logger.Debug().Str("registration", reg.id).Int("handlers", count).Msg("channel handler registered")

	h.cancelLinger()
	if !h.running && h.start != nil {
		if err := h.start(); err != nil {
			h.mu.Lock()
			h.regs = removeReg(h.regs, reg.id)
			h.mu.Unlock()
			h.metrics.ChannelHandlers(count - 1)
			return nil, err
		}
		h.running = true
	}
	return reg, nil
}

func (h *Hub) remove(id string) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	h.mu.Lock()
	before := len(h.regs)
	h.regs = removeReg(h.regs, id)
	after := len(h.regs)
	h.mu.Unlock()

	if before == after {
		return
	}
	h.metrics.ChannelHandlers(after)
	h.logger.Debug().Str("registration", id).Int("handlers", after).Msg("channel handler removed")

	if after > 0 || !h.running {
		return
	}
	if h.linger <= 0 {
		h.stopTransport()
		return
	}
	h.lingerSeq++
	seq := h.lingerSeq
	h.lingerTimer = time.AfterFunc(h.linger, func() { h.expire(seq) })
}

// expire stops the transport once a linger period ends with no handler
// having subscribed in the meantime.
func (h *Hub) expire(seq uint64) {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()
	if seq != h.lingerSeq || !h.running || h.Handlers() > 0 {
		return
	}
	h.lingerTimer = nil
	h.logger.Debug().Dur("linger", h.linger).Msg("linger expired, stopping transport")
	h.stopTransport()
}

// cancelLinger must be called with lifeMu held.
func (h *Hub) cancelLinger() {
	h.lingerSeq++
	if h.lingerTimer != nil {
		h.lingerTimer.Stop()
		h.lingerTimer = nil
	}
}

// stopTransport must be called with lifeMu held.
func (h *Hub) stopTransport() {
	if h.stop != nil {
		h.stop()
	}
	h.running = false
	h.setState(StateIdle)
}

// Close drops every registration and stops the transport. Subscribing
// afterwards fails with ErrClosed.
func (h *Hub) Close() {
	h.lifeMu.Lock()
	defer h.lifeMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.regs = nil
	h.mu.Unlock()

	h.metrics.ChannelHandlers(0)
	h.cancelLinger()
	if h.running {
		h.stopTransport()
		return
	}
	h.setState(StateIdle)
}

// Publish decodes a raw frame and dispatches it. Malformed frames are
// logged and dropped.
func (h *Hub) Publish(raw []byte) {
	ev, err := events.Decode(raw)
	if err != nil {
		h.metrics.EventDropped("malformed")
		h.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("dropping malformed notification")
		return
	}
	h.Dispatch(ev)
}

// Dispatch delivers an event to every handler in registration order.
func (h *Hub) Dispatch(ev events.Event) {
	h.metrics.EventReceived(string(ev.Action()))
	for _, reg := range h.snapshot() {
		if reg.handler.OnEvent != nil {
			reg.handler.OnEvent(ev)
		}
	}
}

// SetState records a connectivity change and notifies handlers.
func (h *Hub) SetState(s State) {
	h.setState(s)
}

func (h *Hub) setState(s State) {
	h.mu.Lock()
	if h.state == s {
		h.mu.Unlock()
		return
	}
	prev := h.state
	h.state = s
	regs := make([]*Registration, len(h.regs))
	copy(regs, h.regs)
	h.mu.Unlock()

	h.metrics.Connected(s == StateConnected)
	h.logger.Info().Str("from", prev.String()).Str("to", s.String()).Msg("channel state changed")
	for _, reg := range regs {
		if reg.handler.OnState != nil {
			reg.handler.OnState(s)
		}
	}
}

func (h *Hub) snapshot() []*Registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	regs := make([]*Registration, len(h.regs))
	copy(regs, h.regs)
	return regs
}

func removeReg(regs []*Registration, id string) []*Registration {
	for i, r := range regs {
		if r.id == id {
			out := make([]*Registration, 0, len(regs)-1)
			out = append(out, regs[:i]...)
			return append(out, regs[i+1:]...)
		}
	}
	return regs
}

// Registration is one handler's membership on a channel.
type Registration struct {
	id      string
	hub     *Hub
	handler Handler
	once    sync.Once
}

// ID returns the registration identifier.
func (r *Registration) ID() string { return r.id }

// Close removes the handler. It is safe to call more than once, and after
// the channel itself has disconnected or closed.
func (r *Registration) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() { r.hub.remove(r.id) })
	return nil
}
