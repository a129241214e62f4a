package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Upload   UploadConfig   `toml:"upload"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Auth     AuthConfig     `toml:"auth"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string `toml:"http_addr"`
	GRPCHealthAddr string `toml:"grpc_health_addr"`
	GinMode        string `toml:"gin_mode"`
	LogLevel       string `toml:"log_level"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `toml:"driver"` // postgres | sqlite
	DSN              string        `toml:"dsn"`
	MaxConns         int32         `toml:"max_conns"`
	MinConns         int32         `toml:"min_conns"`
	MaxConnLifetime  time.Duration `toml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `toml:"max_conn_idle_time"`
	DialTimeout      time.Duration `toml:"dial_timeout"`
	StatementTimeout time.Duration `toml:"statement_timeout"`
}

// LLMConfig holds the chat-completion provider configuration
type LLMConfig struct {
	BaseURL        string        `toml:"base_url"`
	Model          string        `toml:"model"`
	APIKey         string        `toml:"api_key"`
	OrganizationID string        `toml:"organization_id"`
	ProjectID      string        `toml:"project_id"`
	Timeout        time.Duration `toml:"timeout"`
	MaxRetries     int           `toml:"max_retries"`
	RetryBackoff   time.Duration `toml:"retry_backoff"`
}

// UploadConfig holds the upload validation policy
type UploadConfig struct {
	MaxImageBytes int           `toml:"max_image_bytes"`
	MonthlyLimit  int           `toml:"monthly_limit"`
	QuotaBackend  string        `toml:"quota_backend"` // store | redis
	QuotaTimezone string        `toml:"quota_timezone"`
	FetchTimeout  time.Duration `toml:"fetch_timeout"`
}

// StorageConfig holds the S3 blob store configuration
type StorageConfig struct {
	Bucket    string        `toml:"bucket"`
	Region    string        `toml:"region"`
	Endpoint  string        `toml:"endpoint"`
	Prefix    string        `toml:"prefix"`
	AccessKey string        `toml:"access_key"`
	SecretKey string        `toml:"secret_key"`
	URLTTL    time.Duration `toml:"url_ttl"`
	// PublicBaseURL, when set, serves images as <base>/<key> instead of presigned GETs.
	PublicBaseURL string `toml:"public_base_url"`
}

// RedisConfig holds the quota counter connection
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RabbitMQConfig holds the upload event transport
type RabbitMQConfig struct {
	URL          string        `toml:"url"`
	UploadsQueue string        `toml:"uploads_queue"`
	Workers      int           `toml:"workers"`
	EventTimeout time.Duration `toml:"event_timeout"`
}

// AuthConfig holds the optional bearer-token verification secret
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// LoadConfig loads defaults, then CONFIG_FILE (TOML) when present, then environment variables.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCHealthAddr: ":9090",
			GinMode:        "release",
			LogLevel:       "info",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        20,
			MinConns:        5,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-2024-08-06",
			Timeout:      60 * time.Second,
			MaxRetries:   1,
			RetryBackoff: 500 * time.Millisecond,
		},
		Upload: UploadConfig{
			MaxImageBytes: 2 * 1024 * 1024,
			MonthlyLimit:  10,
			QuotaBackend:  "store",
			QuotaTimezone: "UTC",
			FetchTimeout:  20 * time.Second,
		},
		Storage: StorageConfig{
			Prefix: "uploads",
			URLTTL: 7 * 24 * time.Hour,
		},
		RabbitMQ: RabbitMQConfig{
			UploadsQueue: "uploads.created",
			Workers:      4,
			EventTimeout: 2 * time.Minute,
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.GRPCHealthAddr = getEnv("GRPC_HEALTH_ADDR", cfg.Server.GRPCHealthAddr)
	cfg.Server.GinMode = getEnv("GIN_MODE", cfg.Server.GinMode)
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", cfg.Server.LogLevel)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("DB_URL", cfg.Database.DSN)
	cfg.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", cfg.Database.MaxConnLifetime)
	cfg.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", cfg.Database.MaxConnIdleTime)
	cfg.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", cfg.Database.DialTimeout)
	cfg.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", cfg.Database.StatementTimeout)

	cfg.LLM.BaseURL = getEnv("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("OPENAI_MODEL", cfg.LLM.Model)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.OrganizationID = getEnv("OPENAI_ORGANIZATION_ID", cfg.LLM.OrganizationID)
	cfg.LLM.ProjectID = getEnv("OPENAI_PROJECT_ID", cfg.LLM.ProjectID)
	cfg.LLM.Timeout = getEnvAsDuration("OPENAI_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.MaxRetries = getEnvAsInt("OPENAI_MAX_RETRIES", cfg.LLM.MaxRetries)
	cfg.LLM.RetryBackoff = getEnvAsDuration("OPENAI_RETRY_BACKOFF", cfg.LLM.RetryBackoff)

	cfg.Upload.MaxImageBytes = getEnvAsInt("UPLOAD_MAX_IMAGE_BYTES", cfg.Upload.MaxImageBytes)
	cfg.Upload.MonthlyLimit = getEnvAsInt("UPLOAD_MONTHLY_LIMIT", cfg.Upload.MonthlyLimit)
	cfg.Upload.QuotaBackend = getEnv("QUOTA_BACKEND", cfg.Upload.QuotaBackend)
	cfg.Upload.QuotaTimezone = getEnv("QUOTA_TIMEZONE", cfg.Upload.QuotaTimezone)
	cfg.Upload.FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", cfg.Upload.FetchTimeout)

	cfg.Storage.Bucket = getEnv("S3_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = getEnv("S3_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Prefix = getEnv("S3_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.AccessKey = getEnv("AWS_ACCESS_KEY_ID", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Storage.SecretKey)
	cfg.Storage.URLTTL = getEnvAsDuration("S3_URL_TTL", cfg.Storage.URLTTL)
	cfg.Storage.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", cfg.Storage.PublicBaseURL)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.UploadsQueue = getEnv("RABBITMQ_UPLOADS_QUEUE", cfg.RabbitMQ.UploadsQueue)
	cfg.RabbitMQ.Workers = getEnvAsInt("EVENT_WORKERS", cfg.RabbitMQ.Workers)
	cfg.RabbitMQ.EventTimeout = getEnvAsDuration("EVENT_TIMEOUT", cfg.RabbitMQ.EventTimeout)

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Upload.MaxImageBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "UPLOAD_MAX_IMAGE_BYTES must be positive", ErrInvalidInput)
	}
	if c.Upload.MonthlyLimit <= 0 {
		return NewAppError("CONFIG_ERROR", "UPLOAD_MONTHLY_LIMIT must be positive", ErrInvalidInput)
	}
	switch c.Upload.QuotaBackend {
	case "store":
	case "redis":
		if c.Redis.Addr == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_ADDR is required when QUOTA_BACKEND=redis", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "QUOTA_BACKEND must be store or redis", ErrInvalidInput)
	}
	if _, err := time.LoadLocation(c.Upload.QuotaTimezone); err != nil {
		return NewAppError("CONFIG_ERROR", "QUOTA_TIMEZONE is not a valid location", err)
	}
	if c.Storage.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "S3_BUCKET is required", ErrInvalidInput)
	}
	return nil
}

// QuotaLocation returns the location used for calendar-month boundaries.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.Upload.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
