package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/auth"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
	maxFrameSize        = 1 << 20
)

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	URL          string
	Tenant       string
	Auth         auth.Authenticator
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Linger keeps the connection open this long after the last handler
	// leaves, so a quick resubscribe reuses it.
	Linger time.Duration
	Dialer *websocket.Dialer
}

func (c *WebSocketConfig) setDefaults() {
	if c.PongWait == 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval == 0 {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.WriteWait == 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.ReconnectMin == 0 {
		c.ReconnectMin = defaultReconnectMin
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = defaultReconnectMax
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Auth == nil {
		c.Auth = auth.NewNoAuth()
	}
}

// WebSocket is a tenant channel carried over a single WebSocket connection
// that is re-dialled with exponential backoff when it drops.
type WebSocket struct {
	*Hub
	cfg    WebSocketConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	// wg tracks every connection goroutine, including ones from earlier
	// start/stop cycles that are still winding down.
	wg sync.WaitGroup

	writeMu sync.Mutex
}

// NewWebSocket creates a WebSocket channel. Nothing is dialled until the
// first handler subscribes.
func NewWebSocket(cfg WebSocketConfig, logger zerolog.Logger, m *metrics.Metrics) *WebSocket {
	cfg.setDefaults()
	ws := &WebSocket{
		Hub:    NewHub(cfg.Tenant, logger, m),
		cfg:    cfg,
		logger: logger.With().Str("transport", "websocket").Str("tenant", cfg.Tenant).Logger(),
	}
	ws.Bind(ws.start, ws.stop)
	ws.SetLinger(cfg.Linger)
	return ws
}

var _ Channel = (*WebSocket)(nil)

func (ws *WebSocket) start() error {
	if _, err := url.Parse(ws.cfg.URL); err != nil {
		return fmt.Errorf("invalid channel url: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	ws.mu.Lock()
	ws.cancel = cancel
	ws.mu.Unlock()

	ws.wg.Add(1)
	go ws.run(ctx)
	return nil
}

func (ws *WebSocket) stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.cancel != nil {
		ws.cancel()
		ws.cancel = nil
	}
	if ws.conn != nil {
		_ = ws.conn.Close()
		ws.conn = nil
	}
}

// Close shuts the channel down and waits for every connection goroutine.
func (ws *WebSocket) Close() error {
	ws.Hub.Close()
	ws.wg.Wait()
	return nil
}

func (ws *WebSocket) run(ctx context.Context) {
	defer ws.wg.Done()

	backoff := ws.cfg.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		ws.setStateIfLive(ctx, StateConnecting)

		conn, err := ws.dial(ctx)
		if err != nil {
			ws.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("channel dial failed")
			ws.setStateIfLive(ctx, StateDisconnected)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, ws.cfg.ReconnectMax)
			continue
		}
		backoff = ws.cfg.ReconnectMin

		ws.mu.Lock()
		if ctx.Err() != nil {
			ws.mu.Unlock()
			_ = conn.Close()
			return
		}
		ws.conn = conn
		ws.mu.Unlock()

		ws.logger.Info().Msg("channel connected")
		ws.setStateIfLive(ctx, StateConnected)

		pingDone := make(chan struct{})
		go ws.pingLoop(conn, pingDone)
		ws.readLoop(conn)
		close(pingDone)

		ws.mu.Lock()
		if ws.conn == conn {
			ws.conn = nil
		}
		ws.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		ws.setStateIfLive(ctx, StateDisconnected)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, ws.cfg.ReconnectMax)
	}
}

func (ws *WebSocket) setStateIfLive(ctx context.Context, s State) {
	if ctx.Err() != nil {
		return
	}
	ws.SetState(s)
}

func (ws *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if err := ws.cfg.Auth.Apply(header); err != nil {
		return nil, err
	}
	header.Set("X-Tenant-ID", ws.cfg.Tenant)

	conn, resp, err := ws.cfg.Dialer.DialContext(ctx, ws.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", ws.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", ws.cfg.URL, err)
	}
	return conn, nil
}

func (ws *WebSocket) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(ws.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn().Err(err).Msg("channel read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ws.cfg.PongWait))
		ws.Publish(data)
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(ws.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ws.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ws.cfg.WriteWait))
			ws.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes an upstream command. No acknowledgement is awaited.
func (ws *WebSocket) Send(ctx context.Context, cmd Command) error {
	ws.mu.Lock()
	conn := ws.conn
	ws.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if cmd.Tenant == "" {
		cmd.Tenant = ws.cfg.Tenant
	}

	deadline := time.Now().Add(ws.cfg.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	return nil
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
