package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gotrs-io/gotrs-livesync/internal/events"
	"github.com/gotrs-io/gotrs-livesync/internal/metrics"
)

const defaultKeyPrefix = "gotrs"

// RedisConfig configures the Redis pub/sub transport.
type RedisConfig struct {
	Tenant        string
	KeyPrefix     string
	ReconnectWait time.Duration

	// Linger delays unsubscribing after the last handler leaves.
	Linger time.Duration
}

// EventsKey returns the pub/sub channel carrying a tenant's notifications.
func EventsKey(prefix, tenant string) string {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return fmt.Sprintf("%s:tenant:%s:tickets", prefix, tenant)
}

// CommandsKey returns the pub/sub channel upstream commands are published on.
func CommandsKey(prefix, tenant string) string {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return fmt.Sprintf("%s:tenant:%s:commands", prefix, tenant)
}

// Redis is a tenant channel fed by Redis pub/sub, for consumers running
// next to the backend instead of in front of its socket server.
type Redis struct {
	*Hub
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	ps     *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedis creates a Redis-backed channel on an existing client.
func NewRedis(client *redis.Client, cfg RedisConfig, logger zerolog.Logger, m *metrics.Metrics) *Redis {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = time.Second
	}
	r := &Redis{
		Hub:    NewHub(cfg.Tenant, logger, m),
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("transport", "redis").Str("tenant", cfg.Tenant).Logger(),
	}
	r.Bind(r.start, r.stop)
	r.SetLinger(cfg.Linger)
	return r
}

// NewRedisFromURL parses a redis:// URL and creates the channel.
func NewRedisFromURL(redisURL string, cfg RedisConfig, logger zerolog.Logger, m *metrics.Metrics) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), cfg, logger, m), nil
}

var _ Channel = (*Redis)(nil)

func (r *Redis) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ps := r.client.Subscribe(ctx, EventsKey(r.cfg.KeyPrefix, r.cfg.Tenant))

	r.mu.Lock()
	r.cancel = cancel
	r.ps = ps
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, ps)
	return nil
}

func (r *Redis) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	// Receive does not watch ctx for cancellation; closing the subscription
	// unblocks it.
	if r.ps != nil {
		_ = r.ps.Close()
		r.ps = nil
	}
}

// Close shuts the channel down, waits for every receiver and closes the
// Redis client.
func (r *Redis) Close() error {
	r.Hub.Close()
	r.wg.Wait()
	return r.client.Close()
}

func (r *Redis) run(ctx context.Context, ps *redis.PubSub) {
	defer r.wg.Done()
	defer ps.Close()

	if ctx.Err() == nil {
		r.SetState(StateConnecting)
	}
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn().Err(err).Msg("redis receive failed")
			r.SetState(StateDisconnected)
			if !sleepCtx(ctx, r.cfg.ReconnectWait) {
				return
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" && ctx.Err() == nil {
				r.SetState(StateConnected)
			}
		case *redis.Message:
			r.Publish([]byte(m.Payload))
		}
	}
}

// Send publishes an upstream command.
func (r *Redis) Send(ctx context.Context, cmd Command) error {
	if cmd.Tenant == "" {
		cmd.Tenant = r.cfg.Tenant
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, CommandsKey(r.cfg.KeyPrefix, r.cfg.Tenant), payload).Err(); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Command, err)
	}
	return nil
}

// PublishEvent pushes a notification onto the tenant's events channel. It
// lets a backend-side producer share this package's wire format.
func (r *Redis) PublishEvent(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(events.Encode(ev))
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventsKey(r.cfg.KeyPrefix, r.cfg.Tenant), payload).Err()
}
