package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
)

// Config captures client configuration. Feature packages (transport, api,
// readsync, storage) pull from these nested structs.
type Config struct {
	Endpoint EndpointConfig `mapstructure:"endpoint" json:"endpoint"`
	Realtime RealtimeConfig `mapstructure:"realtime" json:"realtime"`
	Inbox    InboxConfig    `mapstructure:"inbox" json:"inbox"`
	HTTP     HTTPConfig     `mapstructure:"http" json:"http"`
	Cache    CacheConfig    `mapstructure:"cache" json:"cache"`
}

// EndpointConfig locates the notification service.
type EndpointConfig struct {
	BaseURL     string `mapstructure:"base_url" json:"base_url"`
	RealtimeURL string `mapstructure:"realtime_url" json:"realtime_url"`
}

// RealtimeConfig controls the socket session and its reconnect schedule.
type RealtimeConfig struct {
	Topics               []string      `mapstructure:"topics" json:"topics"`
	ReconnectBase        time.Duration `mapstructure:"reconnect_base" json:"reconnect_base"`
	ReconnectMax         time.Duration `mapstructure:"reconnect_max" json:"reconnect_max"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" json:"max_reconnect_attempts"`
	ReadLimit            int64         `mapstructure:"read_limit" json:"read_limit"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout" json:"handshake_timeout"`
}

// InboxConfig sizes the local notification buffer.
type InboxConfig struct {
	Capacity       int    `mapstructure:"capacity" json:"capacity"`
	HistoryLimit   int    `mapstructure:"history_limit" json:"history_limit"`
	DefaultChannel string `mapstructure:"default_channel" json:"default_channel"`
}

// HTTPConfig scopes REST behavior. AckTimeout of zero leaves acknowledgement
// requests bounded only by Timeout.
type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	AckTimeout time.Duration `mapstructure:"ack_timeout" json:"ack_timeout"`
}

// CacheConfig enables the optional local snapshot cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Driver  string `mapstructure:"driver" json:"driver"`
	DSN     string `mapstructure:"dsn" json:"dsn"`
}

const (
	CacheDriverMemory = "memory"
	CacheDriverSQLite = "sqlite"
)

// DefaultTopics are declared in the client_hello frame.
var DefaultTopics = []string{"notifications", "notifications.read"}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Endpoint: EndpointConfig{
			BaseURL: "http://127.0.0.1:8080",
		},
		Realtime: RealtimeConfig{
			Topics:               append([]string(nil), DefaultTopics...),
			ReconnectBase:        time.Second,
			ReconnectMax:         30 * time.Second,
			MaxReconnectAttempts: 10,
			ReadLimit:            1 << 20,
			HandshakeTimeout:     10 * time.Second,
		},
		Inbox: InboxConfig{
			Capacity:       50,
			HistoryLimit:   20,
			DefaultChannel: "default",
		},
		HTTP: HTTPConfig{
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Cache: CacheConfig{
			Enabled: false,
			Driver:  CacheDriverMemory,
		},
	}
}

// Validate ensures required fields are present and sane.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint.BaseURL) == "" {
		return errors.New("endpoint.base_url is required")
	}
	if _, err := url.Parse(c.Endpoint.BaseURL); err != nil {
		return fmt.Errorf("endpoint.base_url: %w", err)
	}
	if c.Realtime.ReconnectBase <= 0 {
		return fmt.Errorf("realtime.reconnect_base must be > 0")
	}
	if c.Realtime.ReconnectMax < c.Realtime.ReconnectBase {
		return fmt.Errorf("realtime.reconnect_max must be >= realtime.reconnect_base")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must be >= 0")
	}
	if c.Inbox.Capacity <= 0 {
		return fmt.Errorf("inbox.capacity must be > 0")
	}
	if c.Inbox.HistoryLimit <= 0 {
		return fmt.Errorf("inbox.history_limit must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.AckTimeout < 0 {
		return fmt.Errorf("http.ack_timeout must be >= 0")
	}
	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case CacheDriverMemory:
		case CacheDriverSQLite:
			if strings.TrimSpace(c.Cache.DSN) == "" {
				return errors.New("cache.dsn is required for the sqlite driver")
			}
		default:
			return fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver)
		}
	}
	return nil
}

// RealtimeEndpoint returns the socket URL without the token query. When no
// override is configured it is derived from the base URL: http becomes ws,
// https becomes wss, and the path is /realtime/org.
func (c Config) RealtimeEndpoint() (string, error) {
	if raw := strings.TrimSpace(c.Endpoint.RealtimeURL); raw != "" {
		return raw, nil
	}
	base, err := url.Parse(strings.TrimSpace(c.Endpoint.BaseURL))
	if err != nil {
		return "", fmt.Errorf("config: parse base url: %w", err)
	}
	scheme := "ws"
	if strings.EqualFold(base.Scheme, "https") || strings.EqualFold(base.Scheme, "wss") {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/realtime/org", scheme, base.Host), nil
}

// Load decodes arbitrary input (struct, map, cfg struct) using cfgx helpers.
// When cfgx yields a zero value we fall back to a lightweight decoder.
func Load(input any, opts ...LoadOption) (Config, error) {
	settings := loadOptions{}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := cfgx.Build(input, settings.buildOpts...)
	if err != nil {
		return Config{}, err
	}

	if isZero(cfg) {
		if err := decodeFallback(input, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOption lets callers amend cfgx build options.
type LoadOption func(*loadOptions)

type loadOptions struct {
	buildOpts []cfgx.Option[Config]
}

// WithBuildOptions forwards cfgx options (duration hooks, preprocessors, etc.).
func WithBuildOptions(opts ...cfgx.Option[Config]) LoadOption {
	return func(lo *loadOptions) {
		lo.buildOpts = append(lo.buildOpts, opts...)
	}
}

func (c Config) withDefaults() Config {
	defaults := Defaults()

	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = defaults.Endpoint.BaseURL
	}
	c.Endpoint.BaseURL = strings.TrimRight(strings.TrimSpace(c.Endpoint.BaseURL), "/")
	if len(c.Realtime.Topics) == 0 {
		c.Realtime.Topics = defaults.Realtime.Topics
	}
	if c.Realtime.ReconnectBase == 0 {
		c.Realtime.ReconnectBase = defaults.Realtime.ReconnectBase
	}
	if c.Realtime.ReconnectMax == 0 {
		c.Realtime.ReconnectMax = defaults.Realtime.ReconnectMax
	}
	if c.Realtime.MaxReconnectAttempts == 0 {
		c.Realtime.MaxReconnectAttempts = defaults.Realtime.MaxReconnectAttempts
	}
	if c.Realtime.ReadLimit == 0 {
		c.Realtime.ReadLimit = defaults.Realtime.ReadLimit
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = defaults.Realtime.HandshakeTimeout
	}
	if c.Inbox.Capacity == 0 {
		c.Inbox.Capacity = defaults.Inbox.Capacity
	}
	if c.Inbox.HistoryLimit == 0 {
		c.Inbox.HistoryLimit = defaults.Inbox.HistoryLimit
	}
	if c.Inbox.DefaultChannel == "" {
		c.Inbox.DefaultChannel = defaults.Inbox.DefaultChannel
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = defaults.HTTP.Timeout
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = defaults.Cache.Driver
	}
	return c
}

func isZero(cfg Config) bool {
	return reflect.DeepEqual(cfg, Config{})
}

func decodeFallback(input any, cfg *Config) error {
	switch v := input.(type) {
	case nil:
		return nil
	case Config:
		*cfg = v
		return nil
	case *Config:
		if v != nil {
			*cfg = *v
		}
		return nil
	case map[string]any:
		return decodeMap(v, cfg)
	default:
		return fmt.Errorf("unsupported config input type: %T", input)
	}
}

// decodeMap round-trips through JSON; duration strings such as "5s" are
// converted first because encoding/json only understands nanosecond ints.
func decodeMap(input map[string]any, cfg *Config) error {
	if input == nil {
		return nil
	}
	payload, err := json.Marshal(normalizeDurations(input))
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, cfg)
}

func normalizeDurations(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		switch v := value.(type) {
		case map[string]any:
			out[key] = normalizeDurations(v)
		case string:
			if d, err := time.ParseDuration(v); err == nil && looksLikeDuration(key) {
				out[key] = int64(d)
				continue
			}
			out[key] = v
		case time.Duration:
			out[key] = int64(v)
		default:
			out[key] = v
		}
	}
	return out
}

func looksLikeDuration(key string) bool {
	switch key {
	case "reconnect_base", "reconnect_max", "handshake_timeout", "timeout", "ack_timeout":
		return true
	}
	return false
}
