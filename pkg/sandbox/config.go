package sandbox

import (
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds free-form logic code.
	DefaultTimeout = 2 * time.Second

	// DefaultMaxResponseBytes caps the body fetch will read.
	DefaultMaxResponseBytes int64 = 1 << 20
)

// Config holds the capability limits applied to every script run.
type Config struct {
	// Timeout is the wall-clock limit used when a Script does not set its own.
	Timeout time.Duration

	// HTTPClient performs fetch calls. Nil uses a client without its own timeout;
	// the script deadline still applies.
	HTTPClient *http.Client

	// MaxResponseBytes caps the number of bytes fetch reads from a response.
	MaxResponseBytes int64

	// DisableFetch removes the fetch capability entirely.
	DisableFetch bool
}

// DefaultConfig returns the limits used by the logic node.
func DefaultConfig() Config {
	return Config{
		Timeout:          DefaultTimeout,
		HTTPClient:       &http.Client{},
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}

	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
}
