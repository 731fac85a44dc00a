package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Token store backends
const (
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
	TokenStoreMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port            string
	GinMode         string
	APIVersion      string
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Auth cookies
	Cookie CookieConfig

	CORS  CORSConfig
	Kafka KafkaConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// JWTConfig holds token signing and storage configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	Issuer           string
	JWTExpiresIn     time.Duration
	RefreshExpiresIn time.Duration

	// TokenStore selects where refresh token hashes live.
	TokenStore   string
	StoreTimeout time.Duration
	BcryptCost   int
}

// CookieConfig controls the access_token and refresh_token cookies
type CookieConfig struct {
	Domain string
	Secure bool
}

// CORSConfig holds allowed origins for credentialed requests
type CORSConfig struct {
	AllowedOrigins []string
}

// KafkaConfig holds audit event publishing configuration
type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	AuditTopic string
	// AuditBuffer is how many events may wait for the broker before new
	// ones are dropped.
	AuditBuffer int
}

// Load loads configuration from environment variables
func Load() *Config {
	ginMode := getEnv("GIN_MODE", "debug")

	cfg := &Config{
		// Server configuration
		Port:            getEnv("PORT", "8080"),
		GinMode:         ginMode,
		APIVersion:      getEnv("API_VERSION", "v1"),
		APIPrefix:       getEnv("API_PREFIX", "/api"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:  getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "magicstream_db"),
			User:     getEnv("DB_USER", "magicstream_user"),
			Password: getEnv("DB_PASSWORD", "magicstream_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// JWT configuration; secrets have no defaults
		JWT: JWTConfig{
			Secret:           os.Getenv("SECRET_KEY"),
			RefreshSecret:    os.Getenv("SECRET_REFRESH_KEY"),
			Issuer:           getEnv("JWT_ISSUER", "magicstream"),
			JWTExpiresIn:     getDurationEnv("JWT_EXPIRES_IN", 24*time.Hour),
			RefreshExpiresIn: getDurationEnv("JWT_REFRESH_EXPIRES_IN", 7*24*time.Hour),
			TokenStore:       strings.ToLower(getEnv("TOKEN_STORE", TokenStorePostgres)),
			StoreTimeout:     getDurationEnv("TOKEN_STORE_TIMEOUT", 5*time.Second),
			BcryptCost:       getIntEnv("BCRYPT_COST", bcrypt.DefaultCost),
		},

		Cookie: CookieConfig{
			Domain: getEnv("COOKIE_DOMAIN", ""),
			Secure: getBoolEnv("COOKIE_SECURE", ginMode == "release"),
		},

		CORS: CORSConfig{
			AllowedOrigins: getStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},

		Kafka: KafkaConfig{
			Enabled:     getBoolEnv("KAFKA_ENABLED", false),
			Brokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			AuditTopic:  getEnv("KAFKA_AUDIT_TOPIC", "auth-events"),
			AuditBuffer: getIntEnv("KAFKA_AUDIT_BUFFER", 1024),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// Validate reports every setting the process cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("SECRET_REFRESH_KEY is required"))
	}
	if c.JWT.Secret != "" && c.JWT.Secret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("SECRET_KEY and SECRET_REFRESH_KEY must differ"))
	}
	if c.JWT.JWTExpiresIn <= 0 || c.JWT.RefreshExpiresIn <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.JWT.StoreTimeout <= 0 {
		errs = append(errs, errors.New("TOKEN_STORE_TIMEOUT must be positive"))
	}
	switch c.JWT.TokenStore {
	case TokenStorePostgres, TokenStoreRedis, TokenStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_STORE %q", c.JWT.TokenStore))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether any component talks to redis.
func (c *Config) NeedsRedis() bool {
	return c.JWT.TokenStore == TokenStoreRedis
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("15m") or plain seconds ("900").
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
