// Package gateway is the HTTP adapter for the payment gateway. Everything it
// needs arrives through Config; it never reads the environment.
package gateway

import (
	"errors"
	"strings"
	"time"
)

// Config configures the gateway client.
type Config struct {
	BaseURL     string
	AccessToken string
	// NotificationURL is where the gateway posts webhooks.
	NotificationURL string
	// BackURL is where the payer returns after checkout.
	BackURL string
	Timeout time.Duration
	// MaxRetries of zero means the default; a negative value disables retries.
	MaxRetries int
	// BreakerFailures consecutive unavailable responses open the breaker.
	BreakerFailures int
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

const (
	defaultBaseURL         = "https://api.mercadopago.com"
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}
	return c
}

// Validate reports missing settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("gateway access token is required")
	}
	return nil
}
