package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/procure2pay/procure2pay/internal/common"
)

type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a client, or nil when no API key is configured. A nil client
// is the normal "AI extraction disabled" condition, not an error.
func New(cfg common.LLMConfig, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		cfg: Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		},
		httpClient: &http.Client{Timeout: timeout},
		log:        logger,
	}
}
