package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every runtime setting. Empty backend URLs select the
// in-memory implementations so the server runs with no infrastructure.
type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Auth        Auth
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	OTP         OTPConfig
	RateLimit   RateLimitConfig
	Catalog     CatalogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// Auth configures token issuance and the seeded administrator.
type Auth struct {
	JWTSigningKey string
	TokenTTL      time.Duration
	Issuer        string
	AdminEmail    string
	AdminPassword string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
}

// OTPConfig controls contact verification codes.
type OTPConfig struct {
	TTL            time.Duration
	ResendCooldown time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type CatalogConfig struct {
	SeedFile string
}

const devSigningKey = "dev-secret-key-change-in-production"

// LoadDotEnv loads KEY=VALUE pairs from files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Environment: r.str("ENVIRONMENT", "development"),
		LogLevel:    r.str("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            r.str("AIDLEDGER_ADDR", ":8080"),
			ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
			RequestTimeout:  r.duration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Auth: Auth{
			JWTSigningKey: r.str("JWT_SIGNING_KEY", devSigningKey),
			TokenTTL:      r.duration("TOKEN_TTL", time.Hour),
			Issuer:        r.str("TOKEN_ISSUER", "aidledger"),
			AdminEmail:    r.str("ADMIN_EMAIL", "admin@example.com"),
			AdminPassword: r.str("ADMIN_PASSWORD", "admin123"),
		},
		Database: DatabaseConfig{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    r.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    r.list("KAFKA_BROKERS"),
			AuditTopic: r.str("KAFKA_AUDIT_TOPIC", "aidledger.audit.v1"),
			Partitions: int32(r.int("KAFKA_AUDIT_PARTITIONS", 3)),
		},
		OTP: OTPConfig{
			TTL:            r.duration("OTP_TTL", 5*time.Minute),
			ResendCooldown: r.duration("OTP_RESEND_COOLDOWN", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: r.float("RATE_LIMIT_RPS", 20),
			Burst:             r.int("RATE_LIMIT_BURST", 40),
		},
		Catalog: CatalogConfig{
			SeedFile: r.str("SCHEME_SEED_FILE", "configs/schemes.yaml"),
		},
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP_TTL must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Environment == "production" }

type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}
