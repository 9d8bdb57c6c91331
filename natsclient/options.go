package natsclient

import (
	"log/slog"
	"time"

	"github.com/Aayush-engineer/chatflux/errors"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return errors.ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithConnectTimeout sets the connection timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.connectTimeout = d
		return nil
	}
}

// WithDrainTimeout sets the drain timeout used on Close.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.ErrInvalidConfig
		}
		c.drainTimeout = d
		return nil
	}
}

// WithClientName sets the connection name visible to the server.
func WithClientName(name string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return errors.ErrInvalidConfig
		}
		c.clientName = name
		return nil
	}
}
