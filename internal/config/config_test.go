package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Booking.MaxCandidates != 20 {
		t.Errorf("max candidates = %d, want 20", cfg.Booking.MaxCandidates)
	}
	if cfg.Booking.LockTimeout != 2*time.Second {
		t.Errorf("lock timeout = %v, want 2s", cfg.Booking.LockTimeout)
	}
	if cfg.Booking.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Booking.MaxAttempts)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("brokers = %v, want none by default", cfg.Kafka.Brokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BOOKING_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v, want [k1:9092 k2:9092]", cfg.Kafka.Brokers)
	}
	if cfg.Booking.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", cfg.Booking.MaxAttempts)
	}
}

func TestLoadRejectsBadBudgets(t *testing.T) {
	t.Setenv("BOOKING_MAX_CANDIDATES", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero candidate budget")
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "pool", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5432/pool?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestAddrHelpers(t *testing.T) {
	if got := (RedisConfig{Host: "r", Port: 6379}).Addr(); got != "r:6379" {
		t.Fatalf("redis addr = %q", got)
	}
	if got := (ServerConfig{Host: "0.0.0.0", Port: 8080}).ListenAddr(); got != "0.0.0.0:8080" {
		t.Fatalf("listen addr = %q", got)
	}
}
