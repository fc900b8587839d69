package kiwify

import (
	"errors"
	"strings"
)

const (
	ProductionBaseURL = "https://public-api.kiwify.com"
	SandboxBaseURL    = "https://sandbox-api.kiwify.com"

	DefaultCurrency = "BRL"
)

var (
	ErrConfigMissingToken     = errors.New("kiwify: api token is required")
	ErrConfigMissingAccountID = errors.New("kiwify: account id is required")
)

type Config struct {
	// Token is sent as a bearer token
	Token         string
	AccountID     string
	WebhookSecret string
	BaseURL       string
	Sandbox       bool
	Currency      string
}

func NewConfig(token, accountID string) *Config {
	return &Config{
		Token:     token,
		AccountID: accountID,
		BaseURL:   ProductionBaseURL,
		Currency:  DefaultCurrency,
	}
}

func NewSandboxConfig(token, accountID string) *Config {
	return &Config{
		Token:     token,
		AccountID: accountID,
		BaseURL:   SandboxBaseURL,
		Sandbox:   true,
		Currency:  DefaultCurrency,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrConfigMissingToken
	}
	if strings.TrimSpace(c.AccountID) == "" {
		return ErrConfigMissingAccountID
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
		"Authorization":       "Bearer " + c.Token,
		"X-Kiwify-Account-Id": c.AccountID,
	}
}
