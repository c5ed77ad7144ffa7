// Package smoke drives the public cupcake API of a running server end to end.
package smoke

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Defaults for the smoke run.
const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 10 * time.Second
)

// ErrInvalidConfig reports an unusable smoke configuration.
var ErrInvalidConfig = errors.New("invalid smoke config")

// Config holds the smoke run settings.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8080.
	BaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Validate normalises BaseURL and checks both fields.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Join(ErrInvalidConfig, errors.New("base url must be absolute"))
	}
	if c.Timeout <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("timeout must be positive"))
	}
	return nil
}
