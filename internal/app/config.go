package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/shipping"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper  string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	SessionSecret string `usage:"HS256 secret for customer session tokens" flag:"session-secret"`
	SessionIssuer string `default:"storefront" usage:"Expected issuer of customer session tokens" flag:"session-issuer"`
	StoreTimezone string `default:"Europe/London" usage:"Time zone for next-day cutoffs" flag:"store-timezone"`
	Collect       CollectConfig
	Checkout      CheckoutConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// CollectConfig prices click and collect orders.
type CollectConfig struct {
	FreeThreshold string `default:"15.00" usage:"Subtotal at which collection is free"`
	Fee           string `default:"1.50" usage:"Collection fee below the threshold"`
	DeliveryDays  int    `default:"2" usage:"Days until an order is ready to collect"`
}

// Policy parses the configured amounts.
func (c CollectConfig) Policy() (shipping.CollectPolicy, error) {
	threshold, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return shipping.CollectPolicy{}, errors.Wrap(err, "collect free threshold")
	}
	fee, err := decimal.NewFromString(c.Fee)
	if err != nil {
		return shipping.CollectPolicy{}, errors.Wrap(err, "collect fee")
	}
	return shipping.CollectPolicy{
		FreeThreshold: threshold,
		Fee:           fee,
		DeliveryDays:  c.DeliveryDays,
	}, nil
}

// CheckoutConfig tunes order placement.
type CheckoutConfig struct {
	OrderNumberAttempts int           `default:"5" usage:"Attempts to find an unused order number"`
	IdempotencyTTL      time.Duration `default:"24h" usage:"How long idempotency receipts are cached"`
	RateLimitMax        int           `default:"10" usage:"Max order submissions per client per window"`
	RateLimitWindow     time.Duration `default:"1m" usage:"Order submission rate limit window"`
}

// RedisConfig enables the idempotency cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `usage:"Redis address for the idempotency cache" flag:"redis-addr"`
	Password string `usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// KafkaConfig enables order events. Empty Brokers disables them.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order events" flag:"kafka-brokers"`
	Topic   string   `default:"order-placed" usage:"Topic for OrderPlaced events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set SHOP_API_KEY_PEPPER")
	case c.SessionSecret == "":
		return errors.New("session secret is required: set SHOP_SESSION_SECRET")
	}
	if _, err := time.LoadLocation(c.StoreTimezone); err != nil {
		return errors.Wrapf(err, "store timezone %q", c.StoreTimezone)
	}
	if _, err := c.Collect.Policy(); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
