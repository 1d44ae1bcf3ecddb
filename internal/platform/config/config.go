package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BrokerMemory   = "memory"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string
	RabbitMQURL  string

	// EventBroker selects the outbox relay publisher: memory, kafka or rabbitmq.
	EventBroker    string
	EventTopic     string
	OutboxPoll     time.Duration
	OutboxBatch    int
	IdempotencyTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	EnableSwagger bool
	EnableMetrics bool
}

// fileConfig mirrors the optional YAML file. Zero values leave defaults alone.
type fileConfig struct {
	ServiceName string `yaml:"serviceName"`
	HTTP        struct {
		Port           string  `yaml:"port"`
		RateLimitRPS   float64 `yaml:"rateLimitRPS"`
		RateLimitBurst int     `yaml:"rateLimitBurst"`
		EnableSwagger  *bool   `yaml:"enableSwagger"`
		EnableMetrics  *bool   `yaml:"enableMetrics"`
	} `yaml:"http"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Events struct {
		Broker       string        `yaml:"broker"`
		Topic        string        `yaml:"topic"`
		KafkaBrokers []string      `yaml:"kafkaBrokers"`
		RabbitMQURL  string        `yaml:"rabbitmqURL"`
		OutboxPoll   time.Duration `yaml:"outboxPoll"`
		OutboxBatch  int           `yaml:"outboxBatch"`
	} `yaml:"events"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
}

func Default() Config {
	return Config{
		ServiceName:    "bazaar",
		HTTPPort:       "8080",
		KafkaBrokers:   []string{"localhost:9092"},
		EventBroker:    BrokerMemory,
		EventTopic:     "marketplace.listings",
		OutboxPoll:     time.Second,
		OutboxBatch:    100,
		IdempotencyTTL: 7 * 24 * time.Hour,
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		EnableSwagger:  true,
		EnableMetrics:  true,
	}
}

// Load reads defaults, then the YAML file named by LEDGER_CONFIG_FILE (if any),
// then environment overrides.
func Load() (Config, error) {
	return LoadFromPath(os.Getenv("LEDGER_CONFIG_FILE"))
}

func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		merge(&cfg, parsed)
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.EventBroker {
	case BrokerMemory:
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka broker selected but KAFKA_BROKERS is empty")
		}
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("rabbitmq broker selected but RABBITMQ_URL is empty")
		}
	default:
		return fmt.Errorf("unknown event broker %q", c.EventBroker)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

func merge(dst *Config, src fileConfig) {
	if src.ServiceName != "" {
		dst.ServiceName = src.ServiceName
	}
	if src.HTTP.Port != "" {
		dst.HTTPPort = src.HTTP.Port
	}
	if src.HTTP.RateLimitRPS != 0 {
		dst.RateLimitRPS = src.HTTP.RateLimitRPS
	}
	if src.HTTP.RateLimitBurst != 0 {
		dst.RateLimitBurst = src.HTTP.RateLimitBurst
	}
	if src.HTTP.EnableSwagger != nil {
		dst.EnableSwagger = *src.HTTP.EnableSwagger
	}
	if src.HTTP.EnableMetrics != nil {
		dst.EnableMetrics = *src.HTTP.EnableMetrics
	}
	if src.Postgres.DSN != "" {
		dst.PostgresDSN = src.Postgres.DSN
	}
	if src.Events.Broker != "" {
		dst.EventBroker = strings.ToLower(src.Events.Broker)
	}
	if src.Events.Topic != "" {
		dst.EventTopic = src.Events.Topic
	}
	if src.Events.KafkaBrokers != nil {
		dst.KafkaBrokers = src.Events.KafkaBrokers
	}
	if src.Events.RabbitMQURL != "" {
		dst.RabbitMQURL = src.Events.RabbitMQURL
	}
	if src.Events.OutboxPoll != 0 {
		dst.OutboxPoll = src.Events.OutboxPoll
	}
	if src.Events.OutboxBatch != 0 {
		dst.OutboxBatch = src.Events.OutboxBatch
	}
	if src.IdempotencyTTL != 0 {
		dst.IdempotencyTTL = src.IdempotencyTTL
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("SERVICE_NAME")); value != "" {
		cfg.ServiceName = value
	}
	if value := strings.TrimSpace(os.Getenv("HTTP_PORT")); value != "" {
		cfg.HTTPPort = value
	}
	if value := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); value != "" {
		cfg.PostgresDSN = value
	}
	if brokers := splitList(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	if value := strings.TrimSpace(os.Getenv("RABBITMQ_URL")); value != "" {
		cfg.RabbitMQURL = value
	}
	if value := strings.TrimSpace(os.Getenv("EVENT_BROKER")); value != "" {
		cfg.EventBroker = strings.ToLower(value)
	}
	if value := strings.TrimSpace(os.Getenv("EVENT_TOPIC")); value != "" {
		cfg.EventTopic = value
	}
	cfg.OutboxPoll = envDuration("OUTBOX_POLL_INTERVAL", cfg.OutboxPoll)
	cfg.OutboxBatch = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatch)
	cfg.IdempotencyTTL = envDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.EnableSwagger = envBool("ENABLE_SWAGGER", cfg.EnableSwagger)
	cfg.EnableMetrics = envBool("ENABLE_METRICS", cfg.EnableMetrics)
}

func splitList(raw string) []string {
	var out []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
