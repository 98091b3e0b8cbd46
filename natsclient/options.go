package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/stormbridge/errors"
)

// ClientOption configures a Client. NewClient fails on the first option
// that returns an error.
type ClientOption func(*Client) error

func durationOption(name string, d time.Duration, set func(*Client, time.Duration)) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.WrapInvalid(fmt.Errorf("%w: %s must be positive, got %s", errors.ErrInvalidConfig, name, d),
				"Client", "option", name)
		}
		set(c, d)
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return errors.WrapInvalid(fmt.Errorf("%w: max reconnects %d", errors.ErrInvalidConfig, n),
				"Client", "option", "max reconnects")
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return durationOption("reconnect wait", d, func(c *Client, d time.Duration) { c.reconnectWait = d })
}

// WithPingInterval sets the ping interval for connection health checks
func WithPingInterval(d time.Duration) ClientOption {
	return durationOption("ping interval", d, func(c *Client, d time.Duration) { c.pingInterval = d })
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) ClientOption {
	return durationOption("timeout", d, func(c *Client, d time.Duration) { c.timeout = d })
}

// WithDrainTimeout bounds how long Close waits for in-flight messages
func WithDrainTimeout(d time.Duration) ClientOption {
	return durationOption("drain timeout", d, func(c *Client, d time.Duration) { c.drainTimeout = d })
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithHealthChangeCallback sets a callback for health status changes
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "option", "credentials need a username")
		}
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithClientName sets the connection name shown in server monitoring
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
