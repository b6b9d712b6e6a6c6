package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Policy   PasswordPolicyConfig
	External ExternalAuthConfig
	Email    EmailConfig
	Peers    PeerConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	RunMigrations     bool
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string

	// TrustedProxies lists CIDR ranges whose forwarding headers are
	// believed for client IP resolution.
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	SessionTokenExpiry time.Duration

	// Lockout policy. The source fixed these at 5 attempts / 5 minutes;
	// they are exposed here with the same defaults.
	MaxIncorrectAttempts int
	ThrottleDuration     time.Duration

	PasswordExpiryDays    int
	MaxInactivityDays     int
	ResetValidity         time.Duration
	ResetRequestInterval  time.Duration
	LockArenaIdleEviction time.Duration
	SweepInterval         time.Duration

	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

// PasswordPolicyConfig toggles the individual password checks. A zero or
// absent value disables the corresponding check.
type PasswordPolicyConfig struct {
	MinimumLength            int
	Blacklist                []string
	BlacklistPrefixMode      bool
	BlacklistCaseInsensitive bool
	HistoryDepth             int
	ReuseBlockingDays        int
}

// ExternalAuthConfig guards the reconciliation of federated claims onto
// local user records. Federated token login is enabled only when a
// shared verification key is configured.
type ExternalAuthConfig struct {
	SharedKey string
	Issuer    string

	UpdateIdentityProvider  bool
	EnforceIdentityProvider bool
	UpdateExternalID        bool
	UpdateNameAndEmail      bool
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

// PeerConfig lists cooperating servers for session invalidation fan-out.
// SharedSecret authenticates the peer-to-peer calls; both sides of the
// fan-out must carry the same value.
type PeerConfig struct {
	URLs         []string
	SharedSecret string
	Timeout      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:             jwtSecret,
			SessionTokenExpiry:    getEnvAsDuration("SESSION_TOKEN_EXPIRY", 8*time.Hour),
			MaxIncorrectAttempts:  getEnvAsInt("AUTH_MAX_INCORRECT_ATTEMPTS", 5),
			ThrottleDuration:      getEnvAsDuration("AUTH_THROTTLE_DURATION", 5*time.Minute),
			PasswordExpiryDays:    getEnvAsInt("AUTH_PASSWORD_EXPIRY_DAYS", 90),
			MaxInactivityDays:     getEnvAsInt("AUTH_MAX_INACTIVITY_DAYS", 365),
			ResetValidity:         getEnvAsDuration("AUTH_RESET_VALIDITY", 24*time.Hour),
			ResetRequestInterval:  getEnvAsDuration("AUTH_RESET_REQUEST_INTERVAL", 15*time.Minute),
			LockArenaIdleEviction: getEnvAsDuration("AUTH_LOCK_IDLE_EVICTION", 10*time.Minute),
			SweepInterval:         getEnvAsDuration("AUTH_SWEEP_INTERVAL", 5*time.Minute),
			TimingDelayBaseMs:     getEnvAsInt("AUTH_TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:   getEnvAsInt("AUTH_TIMING_DELAY_RANDOM_MS", 50),
		},
		Policy: PasswordPolicyConfig{
			MinimumLength:            getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			Blacklist:                getEnvAsList("PASSWORD_BLACKLIST"),
			BlacklistPrefixMode:      getEnvAsBool("PASSWORD_BLACKLIST_PREFIX", false),
			BlacklistCaseInsensitive: getEnvAsBool("PASSWORD_BLACKLIST_IGNORECASE", true),
			HistoryDepth:             getEnvAsInt("PASSWORD_HISTORY_DEPTH", 3),
			ReuseBlockingDays:        getEnvAsInt("PASSWORD_REUSE_BLOCKING_DAYS", 0),
		},
		External: ExternalAuthConfig{
			SharedKey:               getEnv("EXTERNAL_TOKEN_KEY", ""),
			Issuer:                  getEnv("EXTERNAL_TOKEN_ISSUER", ""),
			UpdateIdentityProvider:  getEnvAsBool("EXTERNAL_UPDATE_IDP", true),
			EnforceIdentityProvider: getEnvAsBool("EXTERNAL_ENFORCE_IDP", false),
			UpdateExternalID:        getEnvAsBool("EXTERNAL_UPDATE_ID", true),
			UpdateNameAndEmail:      getEnvAsBool("EXTERNAL_UPDATE_NAME_EMAIL", true),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "eu-central-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
		},
		Peers: PeerConfig{
			URLs:         getEnvAsList("SESSION_INVALIDATION_PEERS"),
			SharedSecret: getEnv("SESSION_INVALIDATION_SECRET", ""),
			Timeout:      getEnvAsDuration("SESSION_INVALIDATION_TIMEOUT", 3*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Auth.MaxIncorrectAttempts < 1 {
		return nil, fmt.Errorf("AUTH_MAX_INCORRECT_ATTEMPTS must be at least 1")
	}
	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED is set")
	}
	if cfg.External.SharedKey != "" && len(cfg.External.SharedKey) < 16 {
		return nil, fmt.Errorf("EXTERNAL_TOKEN_KEY must be at least 16 characters when set")
	}
	if len(cfg.Peers.URLs) > 0 && cfg.Peers.SharedSecret == "" {
		return nil, fmt.Errorf("SESSION_INVALIDATION_SECRET is required when SESSION_INVALIDATION_PEERS is set")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
