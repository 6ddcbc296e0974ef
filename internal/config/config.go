// Package config loads process configuration from the environment (and an
// optional .env file) with defaults that let the binaries run locally.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server and consumer binaries.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Booking  BookingConfig
	Pricing  PricingConfig

	LogLevel      string
	RunMigrations bool
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	GeoKey   string
}

type KafkaConfig struct {
	Brokers        []string
	LocationsTopic string
	BookingsTopic  string
	Group          string
}

// BookingConfig tunes the matching/booking hot path. AirportLat/AirportLon
// anchor request validation; both zero disables the check.
type BookingConfig struct {
	MaxCandidates     int
	DefaultToleranceM int
	LockTimeout       time.Duration
	StatementTimeout  time.Duration
	AttemptTimeout    time.Duration
	MaxAttempts       int
	RetryBackoff      time.Duration
	AirportLat        float64
	AirportLon        float64
	AirportRadiusM    float64
}

type PricingConfig struct {
	BaseFareCents   int
	PerKmRateCents  int
	PerMinRateCents int
	MinFareCents    int
	SurgeRadiusM    int
	CacheTTL        time.Duration
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Addr returns the Redis address in host:port form.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ListenAddr returns the HTTP listen address in host:port form.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and a .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "pooling")
	v.SetDefault("POSTGRES_PASSWORD", "pooling_secret")
	v.SetDefault("POSTGRES_DB", "pooling_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 50)
	v.SetDefault("POSTGRES_MIN_CONNS", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_GEO_KEY", "cabs_geo")

	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_LOCATIONS_TOPIC", "cab-locations")
	v.SetDefault("KAFKA_BOOKINGS_TOPIC", "bookings")
	v.SetDefault("KAFKA_GROUP", "ride-pooling-consumer")

	v.SetDefault("BOOKING_MAX_CANDIDATES", 20)
	v.SetDefault("BOOKING_DEFAULT_TOLERANCE_M", 2000)
	v.SetDefault("BOOKING_LOCK_TIMEOUT", "2s")
	v.SetDefault("BOOKING_STATEMENT_TIMEOUT", "3s")
	v.SetDefault("BOOKING_ATTEMPT_TIMEOUT", "5s")
	v.SetDefault("BOOKING_MAX_ATTEMPTS", 3)
	v.SetDefault("BOOKING_RETRY_BACKOFF", "50ms")
	v.SetDefault("BOOKING_AIRPORT_LAT", 0.0)
	v.SetDefault("BOOKING_AIRPORT_LON", 0.0)
	v.SetDefault("BOOKING_AIRPORT_RADIUS_M", 8000.0)

	v.SetDefault("PRICING_BASE_FARE_CENTS", 5000)
	v.SetDefault("PRICING_PER_KM_RATE_CENTS", 1200)
	v.SetDefault("PRICING_PER_MIN_RATE_CENTS", 200)
	v.SetDefault("PRICING_MIN_FARE_CENTS", 7500)
	v.SetDefault("PRICING_SURGE_RADIUS_M", 5000)
	v.SetDefault("PRICING_CACHE_TTL", "30s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MIGRATE", false)

	// Missing .env is fine; env vars alone are enough (e.g. in containers).
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetInt("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			DBName:   v.GetString("POSTGRES_DB"),
			SSLMode:  v.GetString("POSTGRES_SSLMODE"),
			MaxConns: v.GetInt("POSTGRES_MAX_CONNS"),
			MinConns: v.GetInt("POSTGRES_MIN_CONNS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			PoolSize: v.GetInt("REDIS_POOL_SIZE"),
			GeoKey:   v.GetString("REDIS_GEO_KEY"),
		},
		Kafka: KafkaConfig{
			Brokers:        splitAndTrim(v.GetString("KAFKA_BROKERS")),
			LocationsTopic: v.GetString("KAFKA_LOCATIONS_TOPIC"),
			BookingsTopic:  v.GetString("KAFKA_BOOKINGS_TOPIC"),
			Group:          v.GetString("KAFKA_GROUP"),
		},
		Booking: BookingConfig{
			MaxCandidates:     v.GetInt("BOOKING_MAX_CANDIDATES"),
			DefaultToleranceM: v.GetInt("BOOKING_DEFAULT_TOLERANCE_M"),
			LockTimeout:       v.GetDuration("BOOKING_LOCK_TIMEOUT"),
			StatementTimeout:  v.GetDuration("BOOKING_STATEMENT_TIMEOUT"),
			AttemptTimeout:    v.GetDuration("BOOKING_ATTEMPT_TIMEOUT"),
			MaxAttempts:       v.GetInt("BOOKING_MAX_ATTEMPTS"),
			RetryBackoff:      v.GetDuration("BOOKING_RETRY_BACKOFF"),
			AirportLat:        v.GetFloat64("BOOKING_AIRPORT_LAT"),
			AirportLon:        v.GetFloat64("BOOKING_AIRPORT_LON"),
			AirportRadiusM:    v.GetFloat64("BOOKING_AIRPORT_RADIUS_M"),
		},
		Pricing: PricingConfig{
			BaseFareCents:   v.GetInt("PRICING_BASE_FARE_CENTS"),
			PerKmRateCents:  v.GetInt("PRICING_PER_KM_RATE_CENTS"),
			PerMinRateCents: v.GetInt("PRICING_PER_MIN_RATE_CENTS"),
			MinFareCents:    v.GetInt("PRICING_MIN_FARE_CENTS"),
			SurgeRadiusM:    v.GetInt("PRICING_SURGE_RADIUS_M"),
			CacheTTL:        v.GetDuration("PRICING_CACHE_TTL"),
		},
		LogLevel:      strings.ToLower(v.GetString("LOG_LEVEL")),
		RunMigrations: v.GetBool("MIGRATE"),
	}

	if cfg.Booking.MaxCandidates <= 0 {
		return nil, fmt.Errorf("config: BOOKING_MAX_CANDIDATES must be > 0")
	}
	if cfg.Booking.MaxAttempts <= 0 {
		return nil, fmt.Errorf("config: BOOKING_MAX_ATTEMPTS must be > 0")
	}

	return cfg, nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
