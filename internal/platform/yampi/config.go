package yampi

import (
	"errors"
	"strings"
)

const (
	ProductionBaseURL = "https://api.yampi.com.br"
	SandboxBaseURL    = "https://api.sandbox.yampi.com.br"

	DefaultCurrency = "BRL"
	DefaultMaxPages = 50
)

var (
	ErrConfigMissingAlias     = errors.New("yampi: store alias is required")
	ErrConfigMissingToken     = errors.New("yampi: user token is required")
	ErrConfigMissingSecretKey = errors.New("yampi: user secret key is required")
)

// Config holds the Yampi store alias and credentials.
type Config struct {
	// Alias is the store slug; every API path is prefixed with it
	Alias         string
	Token         string
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Sandbox       bool
	Currency      string
	// MaxPages bounds how many order pages one fetch follows
	MaxPages int
}

func NewConfig(alias, token, secretKey string) *Config {
	return &Config{
		Alias:     alias,
		Token:     token,
		SecretKey: secretKey,
		BaseURL:   ProductionBaseURL,
		Currency:  DefaultCurrency,
		MaxPages:  DefaultMaxPages,
	}
}

func NewSandboxConfig(alias, token, secretKey string) *Config {
	cfg := NewConfig(alias, token, secretKey)
	cfg.BaseURL = SandboxBaseURL
	cfg.Sandbox = true
	return cfg
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Alias) == "" {
		return ErrConfigMissingAlias
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrConfigMissingToken
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

func (c *Config) maxPages() int {
	if c.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return c.MaxPages
}

func (c *Config) headers() map[string]string {
	return map[string]string{
		"User-Token":      c.Token,
		"User-Secret-Key": c.SecretKey,
	}
}
