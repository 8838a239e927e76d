package config

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Retry strategies accepted by retry.strategy.
const (
	StrategyConstant     = "constant"
	StrategyExponential  = "exponential"
	StrategyLinear       = "linear"
	StrategyDecorrelated = "decorrelated"
)

// Config holds client defaults loaded from defaults, an optional YAML
// file and FLUENT_* environment variables.
type Config struct {
	BaseURL     string            `koanf:"baseurl" validate:"omitempty,url"`
	UserAgent   string            `koanf:"useragent"`
	ServiceName string            `koanf:"servicename"`
	Headers     map[string]string `koanf:"headers"`

	// Timeout bounds each attempt. Zero means no limit.
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
	Insecure bool          `koanf:"insecure"`
	Debug    bool          `koanf:"debug"`

	// GenerateCurl attaches an equivalent curl command to every response.
	GenerateCurl bool `koanf:"curl"`

	Retry     RetryConfig     `koanf:"retry"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Breaker   BreakerConfig   `koanf:"breaker"`

	redis redis.UniversalClient
}

// RetryConfig selects the retry policy seeded into every request.
type RetryConfig struct {
	Attempts int           `koanf:"attempts" validate:"gte=1"`
	Delay    time.Duration `koanf:"delay" validate:"gte=0"`

	// MaxDelay caps the growing strategies. Zero leaves them uncapped.
	MaxDelay time.Duration `koanf:"maxdelay" validate:"gte=0"`
	Strategy string        `koanf:"strategy" validate:"oneof=constant exponential linear decorrelated"`
}

type RateLimitConfig struct {
	// RPS of zero disables client-side limiting.
	RPS   float64 `koanf:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=0"`
}

// BreakerConfig enables the circuit breaker. With Redis set, the circuit
// state is shared through that Redis server.
type BreakerConfig struct {
	Enabled             bool          `koanf:"enabled"`
	ConsecutiveFailures uint32        `koanf:"consecutivefailures"`
	Timeout             time.Duration `koanf:"timeout" validate:"gte=0"`
	Redis               string        `koanf:"redis" validate:"omitempty,hostname_port"`
}
