package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthModeDevelopment = "development"
	AuthModeLocal       = "local"
	AuthModeExternal    = "external"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	SnapshotTTL        time.Duration `mapstructure:"SNAPSHOT_TTL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	HIPAAEncryptionKey string        `mapstructure:"HIPAA_ENCRYPTION_KEY"`
	HIPAAPreviousKeys  []string      `mapstructure:"HIPAA_PREVIOUS_KEYS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	SubmissionURL      string        `mapstructure:"SUBMISSION_URL"`
	SubmissionSecret   string        `mapstructure:"SUBMISSION_SECRET"`
	SubmissionTimeout  time.Duration `mapstructure:"SUBMISSION_TIMEOUT"`
	AssessmentVersion  string        `mapstructure:"ASSESSMENT_VERSION"`
	CrisisLineName     string        `mapstructure:"CRISIS_LINE_NAME"`
	CrisisLinePhone    string        `mapstructure:"CRISIS_LINE_PHONE"`
	EmergencyName      string        `mapstructure:"EMERGENCY_NAME"`
	EmergencyPhone     string        `mapstructure:"EMERGENCY_PHONE"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "SNAPSHOT_TTL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"AUTH_SIGNING_KEY", "DEFAULT_TENANT", "CORS_ORIGINS", "HIPAA_ENCRYPTION_KEY",
	"HIPAA_PREVIOUS_KEYS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"BODY_LIMIT", "SUBMISSION_URL", "SUBMISSION_SECRET", "SUBMISSION_TIMEOUT",
	"ASSESSMENT_VERSION", "CRISIS_LINE_NAME", "CRISIS_LINE_PHONE",
	"EMERGENCY_NAME", "EMERGENCY_PHONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SNAPSHOT_TTL", "72h")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("SUBMISSION_TIMEOUT", "10s")
	v.SetDefault("CRISIS_LINE_NAME", "CVV - Centro de Valorização da Vida")
	v.SetDefault("CRISIS_LINE_PHONE", "188")
	v.SetDefault("EMERGENCY_NAME", "SAMU")
	v.SetDefault("EMERGENCY_PHONE", "192")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.HIPAAPreviousKeys = splitList(cfg.HIPAAPreviousKeys)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in DEVELOPMENT mode (ENV=development): DevAuthMiddleware is active and all requests get admin access; set ENV=production for real deployments")
	}

	return cfg, nil
}

// splitList expands a single comma-separated env value into its parts.
func splitList(in []string) []string {
	if len(in) != 1 || !strings.Contains(in[0], ",") {
		return in
	}
	var out []string
	for _, p := range strings.Split(in[0], ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests get admin)
//   - AUTH_ISSUER set → "external" (Keycloak, Auth0, etc.)
//   - Otherwise       → "local" (HS256 tokens signed with AUTH_SIGNING_KEY)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	if c.AuthIssuer != "" {
		return AuthModeExternal
	}
	return AuthModeLocal
}

// Validate checks that the configuration is safe to run. In production,
// HIPAA_ENCRYPTION_KEY is required and must be a valid 64-character hex
// string (32 bytes when decoded).
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed in production")
		}
	case AuthModeExternal:
		if c.AuthIssuer == "" {
			return fmt.Errorf(
				"AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
					"Refusing to start without authentication configuration", c.Env)
		}
	case AuthModeLocal:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters when AUTH_MODE is \"local\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"local\", or \"external\", got %q", mode)
	}

	// HIPAA encryption key validation
	if c.IsProduction() && c.HIPAAEncryptionKey == "" {
		return fmt.Errorf("HIPAA_ENCRYPTION_KEY is required in production")
	}
	if c.HIPAAEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.HIPAAEncryptionKey)
		if err != nil {
			return fmt.Errorf("HIPAA_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("HIPAA_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if len(c.HIPAAPreviousKeys) > 0 && c.HIPAAEncryptionKey == "" {
		return fmt.Errorf("HIPAA_PREVIOUS_KEYS requires HIPAA_ENCRYPTION_KEY")
	}

	if c.SubmissionURL != "" && c.SubmissionSecret == "" {
		return fmt.Errorf("SUBMISSION_SECRET is required when SUBMISSION_URL is set")
	}
	if c.SnapshotTTL < 0 || c.SubmissionTimeout < 0 {
		return fmt.Errorf("SNAPSHOT_TTL and SUBMISSION_TIMEOUT must not be negative")
	}
	if c.CrisisLinePhone == "" || c.EmergencyPhone == "" {
		return fmt.Errorf("CRISIS_LINE_PHONE and EMERGENCY_PHONE must not be empty")
	}

	return nil
}
