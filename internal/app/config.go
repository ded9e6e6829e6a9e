package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/events"
)

// Config holds the complete application configuration, loadable from
// environment variables (ACADEMY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ACADEMY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret    string `usage:"HS256 secret for bearer tokens (ACADEMY_JWT_SECRET)" flag:"jwt-secret"`
	JWTIssuer    string `default:"academy" usage:"Expected bearer token issuer" flag:"jwt-issuer"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ACADEMY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Payment      PaymentConfig
	Referral     ReferralConfig
	Kafka        events.KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaymentConfig selects how purchases get paid.
type PaymentConfig struct {
	Mode string `default:"instant" usage:"Payment mode: instant or gateway"`
}

// ReferralConfig holds the program defaults seeded into the settings row on
// first start. Later changes go through the admin API.
type ReferralConfig struct {
	DefaultDiscount   string `default:"10" usage:"Default discount percentage for new codes"`
	DefaultCommission string `default:"15" usage:"Default commission percentage for new codes"`
}

// Settings parses the configured defaults.
func (c ReferralConfig) Settings() (referral.Settings, error) {
	discount, err := decimal.NewFromString(c.DefaultDiscount)
	if err != nil {
		return referral.Settings{}, errors.Wrap(err, "parse default discount")
	}
	commission, err := decimal.NewFromString(c.DefaultCommission)
	if err != nil {
		return referral.Settings{}, errors.Wrap(err, "parse default commission")
	}
	s := referral.Settings{DiscountPercentage: discount, CommissionPercentage: commission}
	if err := s.Validate(); err != nil {
		return referral.Settings{}, err
	}
	return s, nil
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
		EnvPrefix: "ACADEMY",
		Files:     []string{"config.yaml", "/etc/academy/config.yaml"},
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
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ACADEMY_DATABASE_URL or DATABASE_URL")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required: set ACADEMY_JWT_SECRET")
	}
	if _, err := checkout.ParseMode(c.Payment.Mode); err != nil {
		return err
	}
	if _, err := c.Referral.Settings(); err != nil {
		return errors.Wrap(err, "referral defaults")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ACADEMY_-prefixed configuration.
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
