package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	R2        R2Config
	Zitadel   ZitadelConfig
	Alert     AlertConfig
	Report    ReportConfig
	Store     StoreConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	ApiDomain string
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
	AdminRole  string
}

type RateLimitConfig struct {
	ReportPerHour int
	StatusPerMin  int
}

// LLMConfig points at an OpenAI-compatible chat completions API.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

// AlertConfig is the notification service told about finished reports.
// An empty URL disables notifications.
type AlertConfig struct {
	URL     string
	Timeout time.Duration
}

type ReportConfig struct {
	Queue       string
	MaxRetry    int
	Concurrency int
	// WaitTimeout bounds how long generate-report blocks on a running job.
	WaitTimeout time.Duration
}

type StoreConfig struct {
	Backend string // redis or memory
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("LLM_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("jwt.admin_role", "JWT_ADMIN_ROLE")
	_ = v.BindEnv("ratelimit.report_per_hour", "RATELIMIT_REPORT_PER_HOUR")
	_ = v.BindEnv("ratelimit.status_per_min", "RATELIMIT_STATUS_PER_MIN")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("alert.url", "ALERT_SERVICE_URL")
	_ = v.BindEnv("alert.timeout", "ALERT_SERVICE_TIMEOUT")
	_ = v.BindEnv("report.queue", "REPORT_QUEUE")
	_ = v.BindEnv("report.max_retry", "REPORT_MAX_RETRY")
	_ = v.BindEnv("report.concurrency", "REPORT_CONCURRENCY")
	_ = v.BindEnv("report.wait_timeout", "REPORT_WAIT_TIMEOUT")
	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("jwt.admin_role", "admin")
	v.SetDefault("ratelimit.report_per_hour", 10)
	v.SetDefault("ratelimit.status_per_min", 120)

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "deepseek-r1-distill-llama-70b")
	v.SetDefault("llm.timeout", "10m")

	// Alert service defaults
	v.SetDefault("alert.timeout", "10s")

	// Report pipeline defaults
	v.SetDefault("report.queue", "reports")
	v.SetDefault("report.max_retry", 2)
	v.SetDefault("report.concurrency", 4)
	v.SetDefault("report.wait_timeout", "15m")

	v.SetDefault("store.backend", "redis")
	v.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
			AdminRole:  v.GetString("jwt.admin_role"),
		},
		RateLimit: RateLimitConfig{
			ReportPerHour: v.GetInt("ratelimit.report_per_hour"),
			StatusPerMin:  v.GetInt("ratelimit.status_per_min"),
		},
		LLM: LLMConfig{
			APIKey:  v.GetString("llm.api_key"),
			BaseURL: v.GetString("llm.base_url"),
			Model:   v.GetString("llm.model"),
			Timeout: v.GetDuration("llm.timeout"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Alert: AlertConfig{
			URL:     v.GetString("alert.url"),
			Timeout: v.GetDuration("alert.timeout"),
		},
		Report: ReportConfig{
			Queue:       v.GetString("report.queue"),
			MaxRetry:    v.GetInt("report.max_retry"),
			Concurrency: v.GetInt("report.concurrency"),
			WaitTimeout: v.GetDuration("report.wait_timeout"),
		},
		Store: StoreConfig{
			Backend: v.GetString("store.backend"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
