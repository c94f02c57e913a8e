package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Kafka        KafkaConfig
	Sweeper      SweeperConfig
	Lifecycle    LifecycleConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
	Service     string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// KafkaConfig configures the timeline event stream. No brokers disables it.
type KafkaConfig struct {
	Brokers             []string
	TimelineTopic       string
	WriteTimeoutSeconds int
	BatchTimeoutMillis  int
	BatchSize           int
}

// SweeperConfig controls the overdue/escalation sweep loop.
type SweeperConfig struct {
	Enabled         bool
	IntervalSeconds int
	BatchSize       int
	Concurrency     int
	LockTTLSeconds  int
}

// LifecycleConfig holds complaint lifecycle switches.
type LifecycleConfig struct {
	StrictTransitions    bool
	SnapshotCacheSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "complaint-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnvAllowEmpty("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
			Service:     getEnv("APP_NAME", "complaint-service"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers:             getEnvAsList("KAFKA_BROKERS"),
			TimelineTopic:       getEnv("KAFKA_TIMELINE_TOPIC", "complaints.timeline"),
			WriteTimeoutSeconds: getEnvAsInt("KAFKA_WRITE_TIMEOUT_SECONDS", 10),
			BatchTimeoutMillis:  getEnvAsInt("KAFKA_BATCH_TIMEOUT_MS", 10),
			BatchSize:           getEnvAsInt("KAFKA_BATCH_SIZE", 1),
		},
		Sweeper: SweeperConfig{
			Enabled:         getEnvAsBool("SWEEP_ENABLED", true),
			IntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 120),
			BatchSize:       getEnvAsInt("SWEEP_BATCH_SIZE", 200),
			Concurrency:     getEnvAsInt("SWEEP_CONCURRENCY", 4),
			LockTTLSeconds:  getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 300),
		},
		Lifecycle: LifecycleConfig{
			StrictTransitions:    getEnvAsBool("LIFECYCLE_STRICT_TRANSITIONS", false),
			SnapshotCacheSeconds: getEnvAsInt("LIFECYCLE_SNAPSHOT_CACHE_SECONDS", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Interval returns the pause between sweep passes.
func (s SweeperConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// LockTTL bounds how long one instance may hold the sweep lock.
func (s SweeperConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// SnapshotCacheTTL returns the policy/rule snapshot cache lifetime. Zero disables caching.
func (l LifecycleConfig) SnapshotCacheTTL() time.Duration {
	if l.SnapshotCacheSeconds <= 0 {
		return 0
	}
	return time.Duration(l.SnapshotCacheSeconds) * time.Second
}

// WriteTimeout returns the Kafka write deadline.
func (k KafkaConfig) WriteTimeout() time.Duration {
	if k.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(k.WriteTimeoutSeconds) * time.Second
}

// BatchTimeout bounds how long a synchronous write waits for its batch to fill.
func (k KafkaConfig) BatchTimeout() time.Duration {
	if k.BatchTimeoutMillis <= 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(k.BatchTimeoutMillis) * time.Millisecond
}

// WriterBatchSize returns the writer batch size. Publishing is one event per write,
// so anything above 1 only adds waiting on BatchTimeout.
func (k KafkaConfig) WriterBatchSize() int {
	if k.BatchSize <= 0 {
		return 1
	}
	return k.BatchSize
}

// Enabled reports whether any broker was configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvAllowEmpty keeps an explicitly empty value, which switches the dependency off.
func getEnvAllowEmpty(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
