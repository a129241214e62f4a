package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// Config for the OpenAI client.
type Config struct {
	APIKey         string
	BaseURL        string // default https://api.openai.com/v1
	Model          string
	OrganizationID string // sent as OpenAI-Organization when set
	ProjectID      string // sent as OpenAI-Project when set
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration // per attempt
	MaxRetries     int
	RetryBackoff   time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	sleep  func(time.Duration) <-chan time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-2024-08-06"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  time.After,
	}
}
