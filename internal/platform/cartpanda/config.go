package cartpanda

import (
	"errors"
	"strings"
)

const (
	// ProductionBaseURL is the production API endpoint
	ProductionBaseURL = "https://api.cartpanda.com.br"
	// SandboxBaseURL is the sandbox API endpoint
	SandboxBaseURL = "https://api.sandbox.cartpanda.com.br"

	// DefaultCurrency is applied when an order carries no currency.
	DefaultCurrency = "BRL"
)

// Errors for CartPanda configuration
var (
	ErrConfigMissingAPIKey    = errors.New("cartpanda: api key is required")
	ErrConfigMissingSecretKey = errors.New("cartpanda: secret key is required")
)

// Config holds the CartPanda credentials and endpoint. The adapter keeps its
// own copy; changing a Config after New has no effect.
type Config struct {
	// APIKey is sent as X-Api-Key
	APIKey string
	// SecretKey is sent as X-Secret-Key
	SecretKey string
	// WebhookSecret signs inbound deliveries. Empty accepts unsigned ones.
	WebhookSecret string
	// BaseURL overrides the sandbox/production endpoint when set
	BaseURL  string
	Sandbox  bool
	Currency string
}

// NewConfig creates a production configuration
func NewConfig(apiKey, secretKey string) *Config {
	return &Config{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   ProductionBaseURL,
		Currency:  DefaultCurrency,
	}
}

// NewSandboxConfig creates a configuration for the sandbox environment
func NewSandboxConfig(apiKey, secretKey string) *Config {
	return &Config{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   SandboxBaseURL,
		Sandbox:   true,
		Currency:  DefaultCurrency,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrConfigMissingAPIKey
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return ErrConfigMissingSecretKey
	}
	return nil
}

func (c *Config) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Sandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

func (c *Config) currency() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(c.Currency)
}

func (c *Config) headers() map[string]string {
	return map[string]string{
		"X-Api-Key":    c.APIKey,
		"X-Secret-Key": c.SecretKey,
	}
}
