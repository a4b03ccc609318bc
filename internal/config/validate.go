package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if err := c.Server.validate(); err != nil {
		return err
	}

	if c.Client.URL != "" && !strings.HasPrefix(c.Client.URL, "ws://") && !strings.HasPrefix(c.Client.URL, "wss://") {
		return fmt.Errorf("client.url must start with ws:// or wss://, got %q", c.Client.URL)
	}

	if c.Auth.Secret != "" && len(c.Auth.Secret) < MinSecretLength {
		return fmt.Errorf("auth.secret must be at least %d bytes", MinSecretLength)
	}
	if c.Server.RequireAuth && c.Auth.Secret == "" {
		return errors.New("server.require_auth needs auth.secret")
	}

	if c.Router.MailboxSize < 1 {
		return errors.New("router.mailbox_size must be >= 1")
	}
	if c.Router.MailboxLimit > 0 && c.Router.MailboxLimit < c.Router.MailboxSize {
		return fmt.Errorf("router.mailbox_limit (%d) cannot be less than mailbox_size (%d)", c.Router.MailboxLimit, c.Router.MailboxSize)
	}

	if c.Database.Enabled() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}

	if c.Redis.Enabled() && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis.channels is set")
	}

	if !c.Status.Disabled && c.Status.Interval <= 0 {
		return errors.New("status.interval must be > 0")
	}

	return nil
}

func (s *ServerConfig) validate() error {
	if s.Addr == "" {
		return errors.New("server.addr is required")
	}
	if s.SendBuffer < 1 {
		return errors.New("server.send_buffer must be >= 1")
	}
	if s.RateLimit > 0 && s.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1")
	}
	if s.PingInterval >= s.PongTimeout {
		return fmt.Errorf("server.ping_interval (%s) must be less than pong_timeout (%s)", s.PingInterval, s.PongTimeout)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
