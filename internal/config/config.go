package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or a .env file loaded by main).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Chapa   ChapaConfig
	Funding FundingConfig
	NATS    NATSConfig
	SMS     SMSConfig
	Pricing PricingConfig
	Breaker BreakerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// AutoMigrate applies embedded migrations on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ChapaConfig configures the payment gateway client and its webhook.
type ChapaConfig struct {
	APIURL        string
	SecretKey     string
	CallbackURL   string
	ReturnURL     string
	WebhookSecret string
	Timeout       time.Duration
	MaxInFlight   int
}

type FundingConfig struct {
	Currency string

	// ConfirmLockTTL bounds the cross-process lock held while a payment is confirmed.
	ConfirmLockTTL time.Duration
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string
}

type SMSConfig struct {
	// BulkMaxInFlight caps concurrent bulk uploads per tenant.
	BulkMaxInFlight int
	BulkMaxFileSize int64
}

type PricingConfig struct {
	// TiersFile is a YAML catalogue seeded into an empty tier table.
	TiersFile string
	CacheTTL  time.Duration
}

type BreakerConfig struct {
	MaxFailures int
	Cooldown    time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error
	intVar := func(key string, read func(string) (int, error)) int {
		n, err := read(key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return n
	}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = intVar("APP_PORT", mustInt)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = intVar("DB_PORT", mustInt)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate = optBool("DB_AUTO_MIGRATE")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = intVar("REDIS_PORT", mustInt)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")

	c.Chapa.APIURL = strings.TrimRight(strings.TrimSpace(os.Getenv("CHAPA_API_URL")), "/")
	c.Chapa.SecretKey = os.Getenv("CHAPA_SECRET_KEY")
	c.Chapa.CallbackURL = strings.TrimSpace(os.Getenv("CHAPA_CALLBACK_URL"))
	c.Chapa.ReturnURL = strings.TrimSpace(os.Getenv("CHAPA_RETURN_URL"))
	c.Chapa.WebhookSecret = os.Getenv("CHAPA_WEBHOOK_SECRET")
	c.Chapa.Timeout = optDuration("CHAPA_TIMEOUT")
	c.Chapa.MaxInFlight = intVar("CHAPA_MAX_INFLIGHT", optInt)

	c.Funding.Currency = strings.ToUpper(strings.TrimSpace(os.Getenv("FUNDING_CURRENCY")))
	c.Funding.ConfirmLockTTL = optDuration("FUNDING_CONFIRM_LOCK_TTL")

	c.NATS.URL = strings.TrimSpace(os.Getenv("NATS_URL"))

	c.SMS.BulkMaxInFlight = intVar("SMS_BULK_MAX_INFLIGHT", optInt)
	c.SMS.BulkMaxFileSize = int64(intVar("SMS_BULK_MAX_FILE_BYTES", optInt))

	c.Pricing.TiersFile = strings.TrimSpace(os.Getenv("PRICING_TIERS_FILE"))
	c.Pricing.CacheTTL = optDuration("PRICING_CACHE_TTL")

	c.Breaker.MaxFailures = intVar("GATEWAY_BREAKER_MAX_FAILURES", optInt)
	c.Breaker.Cooldown = optDuration("GATEWAY_BREAKER_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Chapa.APIURL == "" {
		c.Chapa.APIURL = "https://api.chapa.co"
	}
	if c.Chapa.Timeout <= 0 {
		c.Chapa.Timeout = 15 * time.Second
	}
	if c.Chapa.MaxInFlight <= 0 {
		c.Chapa.MaxInFlight = 16
	}
	if c.IsProduction() {
		if c.Chapa.SecretKey == "" {
			errs = append(errs, errors.New("CHAPA_SECRET_KEY is required in production"))
		}
		if c.Chapa.WebhookSecret == "" {
			errs = append(errs, errors.New("CHAPA_WEBHOOK_SECRET is required in production"))
		}
		if c.Chapa.CallbackURL == "" {
			errs = append(errs, errors.New("CHAPA_CALLBACK_URL is required in production"))
		}
	}

	if c.Funding.Currency == "" {
		c.Funding.Currency = "ETB"
	} else if len(c.Funding.Currency) != 3 {
		errs = append(errs, fmt.Errorf("FUNDING_CURRENCY must be a 3-letter code, got %q", c.Funding.Currency))
	}
	if c.Funding.ConfirmLockTTL <= 0 {
		c.Funding.ConfirmLockTTL = 30 * time.Second
	}

	if c.SMS.BulkMaxInFlight <= 0 {
		c.SMS.BulkMaxInFlight = 2
	}
	if c.SMS.BulkMaxFileSize <= 0 {
		c.SMS.BulkMaxFileSize = 5 << 20
	}

	if c.Pricing.CacheTTL <= 0 {
		c.Pricing.CacheTTL = 5 * time.Minute
	}

	if c.Breaker.MaxFailures <= 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optInt returns 0 for an unset key so Validate can apply the default.
func optInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
