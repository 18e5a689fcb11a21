package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ordersync/internal/order"
)

// Config represents the complete application configuration
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	API        APIConfig        `yaml:"api"`
	Pagination PaginationConfig `yaml:"pagination"`
	Push       PushConfig       `yaml:"push"`
	Log        LogConfig        `yaml:"log"`
}

// SessionConfig identifies the actor this agent syncs for
type SessionConfig struct {
	Role       order.Role `yaml:"role"`
	ActorID    string     `yaml:"actorId"`
	InitialTab order.Tab  `yaml:"initialTab"`
}

// Actor returns the configured session owner
func (s SessionConfig) Actor() order.Actor {
	return order.Actor{Role: s.Role, ID: s.ActorID}
}

// APIConfig defines persistence service client settings
type APIConfig struct {
	BaseURL      string        `yaml:"baseUrl"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retryMax"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
}

// PaginationConfig defines page fetch and search behaviour
type PaginationConfig struct {
	PageSize          int           `yaml:"pageSize"`
	Sort              string        `yaml:"sort"`
	SearchDebounce    time.Duration `yaml:"searchDebounce"`
	LoadMoreThreshold float64       `yaml:"loadMoreThreshold"`
}

// PushConfig selects and configures the push notification transport
type PushConfig struct {
	Transport        string          `yaml:"transport"`
	Buffer           int             `yaml:"buffer"`
	ReconnectInitial time.Duration   `yaml:"reconnectInitial"`
	ReconnectMax     time.Duration   `yaml:"reconnectMax"`
	Websocket        WebsocketConfig `yaml:"websocket"`
	Redis            RedisConfig     `yaml:"redis"`
	Kafka            KafkaConfig     `yaml:"kafka"`
}

// WebsocketConfig defines the websocket push endpoint
type WebsocketConfig struct {
	URL          string        `yaml:"url"`
	PingInterval time.Duration `yaml:"pingInterval"`
}

// RedisConfig defines the redis pub/sub push transport
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channelPrefix"`
}

// KafkaConfig defines the kafka push transport
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Push transports
const (
	TransportWebsocket = "websocket"
	TransportRedis     = "redis"
	TransportKafka     = "kafka"
)

// Default returns a configuration with every optional field filled in
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			InitialTab: order.TabNew,
		},
		API: APIConfig{
			Timeout:      10 * time.Second,
			RetryMax:     2,
			RetryBackoff: 200 * time.Millisecond,
		},
		Pagination: PaginationConfig{
			PageSize:          10,
			Sort:              "desc",
			SearchDebounce:    500 * time.Millisecond,
			LoadMoreThreshold: 0.3,
		},
		Push: PushConfig{
			Transport:        TransportWebsocket,
			Buffer:           256,
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
			Websocket: WebsocketConfig{
				PingInterval: 30 * time.Second,
			},
			Redis: RedisConfig{
				ChannelPrefix: "orders",
			},
			Kafka: KafkaConfig{
				Topic: "order-events",
			},
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load reads the configuration file, applies .env and environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides selected fields from the environment
func (c *Config) applyEnv() error {
	if v := os.Getenv("ORDERSYNC_ROLE"); v != "" {
		c.Session.Role = order.Role(v)
	}
	if v := os.Getenv("ORDERSYNC_ACTOR_ID"); v != "" {
		c.Session.ActorID = v
	}
	if v := os.Getenv("ORDERSYNC_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ORDERSYNC_PUSH_TRANSPORT"); v != "" {
		c.Push.Transport = v
	}
	if v := os.Getenv("ORDERSYNC_WEBSOCKET_URL"); v != "" {
		c.Push.Websocket.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Push.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Push.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Push.Redis.DB = db
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Push.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ORDERSYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate ensures configuration is valid
func (c *Config) Validate() error {
	if !c.Session.Role.Valid() {
		return fmt.Errorf("session role %q is not one of customer, restaurant, delivery_partner", c.Session.Role)
	}

	if c.Session.ActorID == "" {
		return fmt.Errorf("session actorId is required")
	}

	if !c.Session.InitialTab.Valid() {
		return fmt.Errorf("unknown initialTab %q", c.Session.InitialTab)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("API baseUrl is required")
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	if c.API.RetryMax < 0 {
		return fmt.Errorf("API retryMax cannot be negative")
	}

	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("pageSize must be positive")
	}

	if c.Pagination.Sort != "asc" && c.Pagination.Sort != "desc" {
		return fmt.Errorf("sort must be asc or desc")
	}

	if c.Pagination.SearchDebounce < 0 {
		return fmt.Errorf("searchDebounce cannot be negative")
	}

	if c.Pagination.LoadMoreThreshold <= 0 || c.Pagination.LoadMoreThreshold >= 1 {
		return fmt.Errorf("loadMoreThreshold must be between 0 and 1, got %v", c.Pagination.LoadMoreThreshold)
	}

	if c.Push.Buffer <= 0 {
		return fmt.Errorf("push buffer must be positive")
	}

	switch c.Push.Transport {
	case TransportWebsocket:
		if c.Push.Websocket.URL == "" {
			return fmt.Errorf("push websocket url is required")
		}
	case TransportRedis:
		if c.Push.Redis.Addr == "" {
			return fmt.Errorf("push redis addr is required")
		}
	case TransportKafka:
		if len(c.Push.Kafka.Brokers) == 0 || c.Push.Kafka.Topic == "" {
			return fmt.Errorf("push kafka brokers and topic are required")
		}
	default:
		return fmt.Errorf("unknown push transport %q", c.Push.Transport)
	}

	return nil
}
