package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Env  string
	Port string

	// Database
	DBDriver     string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBSQLitePath string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Pipeline (external scheduler)
	PipelineAPIKey string

	// Events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Analytics cache
	AnalyticsCacheTTL time.Duration

	// Rate limiting for auth and pipeline routes, per client IP
	RateLimitRPS   float64
	RateLimitBurst int
}

// Per-IP limits applied to the public auth routes unless overridden.
const (
	DefaultRateLimitRPS   = 5
	DefaultRateLimitBurst = 20
)

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBDriver:     getEnv("DB_DRIVER", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "pocketledger"),
		DBPassword:   getEnv("DB_PASSWORD", "pocketledger"),
		DBName:       getEnv("DB_NAME", "pocketledger"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBSQLitePath: getEnv("DB_SQLITE_PATH", "pocketledger.db"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pocketledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense.created"),
	}

	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.AnalyticsCacheTTL = getDuration("ANALYTICS_CACHE_TTL", 5*time.Minute)
	config.RateLimitRPS = getFloat("RATE_LIMIT_RPS", DefaultRateLimitRPS)
	config.RateLimitBurst = getInt("RATE_LIMIT_BURST", DefaultRateLimitBurst)

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %g\n", key, raw, defaultValue)
		return defaultValue
	}
	return f
}
