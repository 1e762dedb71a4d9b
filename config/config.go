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
	Server         ServerConfig
	Log            LogConfig
	JWT            JWTConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	Queue          QueueConfig
	Optimizer      OptimizerConfig
	Provider       ProviderConfig
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Bulkhead       BulkheadConfig
	Drone          DroneConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	// AllowedHosts restricts the Host header; empty or "*" allows any.
	AllowedHosts       []string
	CORSAllowedOrigins []string
}

type LogConfig struct {
	// File enables rotated file logging alongside stderr when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type QueueConfig struct {
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
	// Inline runs tasks on an in-memory queue instead of redis.
	Inline bool
}

type OptimizerConfig struct {
	GridResolutionDeg    float64
	AltitudeStepM        float64
	MinAltitudeM         float64
	MaxAltitudeM         float64
	MinTerrainClearanceM float64
	SafetyBufferM        float64
	SearchIterationCap   int
	CacheTTL             time.Duration
	CacheSize            int
}

type ProviderConfig struct {
	WeatherBaseURL string
	TerrainBaseURL string
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type CircuitBreakerConfig struct {
	FailureThreshold int
	CooldownSeconds  int
}

type BulkheadConfig struct {
	TelemetryPool int
	MutationPool  int
	AdminPool     int
}

type DroneConfig struct {
	StateCacheTTLSec  int
	IdempotencyTTLSec int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getenvInt("PORT", getenvInt("SERVER_PORT", 8080)),
			ShutdownTimeout:    time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
			AllowedHosts:       getenvList("ALLOWED_HOSTS"),
			CORSAllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			File:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getenvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getenvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getenvInt("LOG_MAX_AGE_DAYS", 14),
			Level:      getenv("LOG_LEVEL", "info"),
		},
		JWT: JWTConfig{
			Secret:        getenv("SECRET_KEY", getenv("JWT_SECRET", "default-secret-change-me")),
			AccessExpiry:  time.Duration(getenvInt("JWT_ACCESS_EXPIRY_MINUTES", 30)) * time.Minute,
			RefreshExpiry: time.Duration(getenvInt("JWT_REFRESH_EXPIRY_HOURS", 24*7)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:      getenv("DATABASE_URL", ""),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "dispatch_admin"),
			Password: getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:       getenv("POSTGRES_DB", "drone_dispatch"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Concurrency: getenvInt("WORKER_CONCURRENCY", 8),
			MaxRetries:  getenvInt("TASK_RETRY_COUNT", 3),
			RetryDelay:  time.Duration(getenvInt("TASK_RETRY_DELAY_SECONDS", 60)) * time.Second,
			Inline:      getenvBool("QUEUE_INLINE", false),
		},
		Optimizer: OptimizerConfig{
			GridResolutionDeg:    getenvFloat("GRID_RESOLUTION", 0.001),
			AltitudeStepM:        getenvFloat("ALTITUDE_STEP", 20),
			MinAltitudeM:         getenvFloat("MIN_ALTITUDE", 50),
			MaxAltitudeM:         getenvFloat("MAX_ALTITUDE", 400),
			MinTerrainClearanceM: getenvFloat("MIN_TERRAIN_CLEARANCE", 30),
			SafetyBufferM:        getenvFloat("SAFETY_BUFFER_M", 100),
			SearchIterationCap:   getenvInt("SEARCH_ITERATION_CAP", 10000),
			CacheTTL:             time.Duration(getenvInt("ROUTE_CACHE_TTL_SECONDS", 3600)) * time.Second,
			CacheSize:            getenvInt("ROUTE_CACHE_SIZE", 512),
		},
		Provider: ProviderConfig{
			WeatherBaseURL: getenv("WEATHER_API_URL", ""),
			TerrainBaseURL: getenv("TERRAIN_API_URL", ""),
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getenvInt("CB_FAILURE_THRESHOLD", 5),
			CooldownSeconds:  getenvInt("CB_COOLDOWN_SECONDS", 30),
		},
		Bulkhead: BulkheadConfig{
			TelemetryPool: getenvInt("BULKHEAD_TELEMETRY_POOL", 100),
			MutationPool:  getenvInt("BULKHEAD_MUTATION_POOL", 50),
			AdminPool:     getenvInt("BULKHEAD_ADMIN_POOL", 20),
		},
		Drone: DroneConfig{
			StateCacheTTLSec:  getenvInt("DRONE_STATE_CACHE_TTL_SECONDS", 60),
			IdempotencyTTLSec: getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
	}

	return cfg, nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
