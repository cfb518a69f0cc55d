package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort   string `envconfig:"APP_PORT" default:"5000"`
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointURL string `envconfig:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	// OTPStore selects the backend for pending codes: "dynamo" or "redis".
	OTPStore      string `envconfig:"OTP_STORE" default:"dynamo"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTPrivateKeyPath string        `envconfig:"JWT_PRIVATE_KEY_PATH" default:"./private_key.pem"`
	JWTPublicKeyPath  string        `envconfig:"JWT_PUBLIC_KEY_PATH" default:"./public_key.pem"`
	JWTExpiry         time.Duration `envconfig:"JWT_EXPIRY" default:"24h"`

	OTPTTL        time.Duration `envconfig:"OTP_TTL" default:"5m"`
	NotifyTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`
	BcryptCost    int           `envconfig:"BCRYPT_COST" default:"10"`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"1025"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@example.com"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"` // CORS allowed origins

	// TrustedProxies lists the CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For and X-Real-Ip headers are believed. Empty means the
	// rate limiters key on the TCP peer address only.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	// Optional bootstrap admin, created at startup when both are set.
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminName     string `envconfig:"ADMIN_NAME" default:"Administrator"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users    string `envconfig:"DYNAMO_TABLE_USERS" default:"users"`
	OTPCodes string `envconfig:"DYNAMO_TABLE_OTP_CODES" default:"otp_codes"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func (c *Config) validate() error {
	switch c.OTPStore {
	case "dynamo", "redis":
	default:
		return fmt.Errorf("OTP_STORE must be \"dynamo\" or \"redis\", got %q", c.OTPStore)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if _, err := parsePrefixes(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	return nil
}

// TrustedProxyPrefixes returns TrustedProxies parsed into prefixes. Entries
// that fail to parse are skipped; Load rejects them up front.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	if c == nil {
		return nil
	}
	prefixes, _ := parsePrefixes(c.TrustedProxies)
	return prefixes
}

// parsePrefixes accepts CIDRs ("10.0.0.0/8") and bare addresses ("10.0.0.7").
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	var bad error
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			if bad == nil {
				bad = fmt.Errorf("invalid proxy %q", e)
			}
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, bad
}
