// Package config loads gotrs-livesync settings from YAML with environment
// overrides and hot reload.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/gotrs-io/gotrs-livesync/internal/models"
)

// Config represents the application configuration
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	API     APIConfig     `mapstructure:"api"`
	Channel ChannelConfig `mapstructure:"channel"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
	Status  StatusConfig  `mapstructure:"status"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
	APIKey     string        `mapstructure:"api_key"`
	Token      string        `mapstructure:"token"`
}

type ChannelConfig struct {
	Transport    string        `mapstructure:"transport"`
	URL          string        `mapstructure:"url"`
	Tenant       string        `mapstructure:"tenant"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
	Linger       time.Duration `mapstructure:"linger"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SyncConfig struct {
	SearchDebounce time.Duration `mapstructure:"search_debounce"`
	// ResyncSchedule is a cron spec; empty disables scheduled resyncs.
	ResyncSchedule string              `mapstructure:"resync_schedule"`
	Filter         models.TicketFilter `mapstructure:"filter"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// IsProduction returns true if running in production mode
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development mode
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// ParseLevel returns the configured zerolog level, defaulting to info.
func (c *LoggingConfig) ParseLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retry_count", 3)
	v.SetDefault("channel.transport", TransportWebSocket)
	v.SetDefault("channel.url", "ws://localhost:8080/ws/tickets")
	v.SetDefault("channel.ping_interval", 54*time.Second)
	v.SetDefault("channel.reconnect_min", 500*time.Millisecond)
	v.SetDefault("channel.reconnect_max", 30*time.Second)
	v.SetDefault("channel.linger", 2*time.Second)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "gotrs")
	v.SetDefault("sync.search_debounce", 500*time.Millisecond)
	v.SetDefault("sync.resync_schedule", "@every 15m")
	v.SetDefault("sync.filter.status", string(models.StatusOpen))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("status.addr", ":9470")
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Channel.Tenant == "" {
		errs = append(errs, errors.New("channel.tenant is required"))
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("api.base_url: %w", err))
	}
	switch c.Channel.Transport {
	case TransportWebSocket:
		u, err := url.Parse(c.Channel.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("channel.url must be a ws:// or wss:// url, got %q", c.Channel.URL))
		}
	case TransportRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown channel.transport %q", c.Channel.Transport))
	}
	if c.Channel.ReconnectMax < c.Channel.ReconnectMin {
		errs = append(errs, errors.New("channel.reconnect_max must not be below channel.reconnect_min"))
	}
	if c.Channel.Linger < 0 {
		errs = append(errs, errors.New("channel.linger must not be negative"))
	}
	if s := c.Sync.Filter.Status; s != "" && !s.Valid() {
		errs = append(errs, fmt.Errorf("sync.filter.status: unknown status %q", s))
	}
	if c.Sync.ResyncSchedule != "" {
		if _, err := cron.ParseStandard(c.Sync.ResyncSchedule); err != nil {
			errs = append(errs, fmt.Errorf("sync.resync_schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Loader reads the configuration and keeps it current when the file
// changes.
type Loader struct {
	v      *viper.Viper
	logger zerolog.Logger

	mu        sync.RWMutex
	cfg       *Config
	listeners []func(*Config)
}

// Load reads configFile (optional) plus GOTRS_* environment overrides.
func Load(configFile string, logger zerolog.Logger) (*Loader, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("GOTRS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &Loader{v: v, logger: logger, cfg: cfg}, nil
}

// Get returns the current configuration (thread-safe)
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnChange registers fn to run after every successful reload.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Watch starts watching the config file. It does nothing when no file was
// loaded.
func (l *Loader) Watch() {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info().Str("file", e.Name).Msg("config file changed")
		l.reload()
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() {
	newCfg := &Config{}
	if err := l.v.Unmarshal(newCfg); err != nil {
		l.logger.Error().Err(err).Msg("failed to reload config")
		return
	}
	if err := newCfg.Validate(); err != nil {
		l.logger.Error().Err(err).Msg("reloaded config is invalid, keeping previous")
		return
	}

	l.mu.Lock()
	l.cfg = newCfg
	listeners := make([]func(*Config), len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(newCfg)
	}
	l.logger.Info().Msg("configuration reloaded")
}
