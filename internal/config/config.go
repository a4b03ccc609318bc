package config

import "time"

// Config is the root configuration shared by every storetwin command.
type Config struct {
	Log      LogConfig    `yaml:"log"`
	Server   ServerConfig `yaml:"server"`
	Client   ClientConfig `yaml:"client"`
	Auth     AuthConfig   `yaml:"auth"`
	Router   RouterConfig `yaml:"router"`
	Database DBConfig     `yaml:"database"`
	Writer   WriterConfig `yaml:"writer"`
	Redis    RedisConfig  `yaml:"redis"`
	Status   StatusConfig `yaml:"status"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ServerConfig holds the hub's HTTP and per-client settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadLimit    int64         `yaml:"read_limit"`
	SendBuffer   int           `yaml:"send_buffer"`
	RateLimit    float64       `yaml:"rate_limit"` // Inbound frames/sec per client, negative = unlimited
	RateBurst    int           `yaml:"rate_burst"`
	RequireAuth  bool          `yaml:"require_auth"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
}

// ClientConfig holds the watch command's session settings.
type ClientConfig struct {
	URL                string        `yaml:"url"`
	Token              string        `yaml:"token"`
	Reconnect          bool          `yaml:"reconnect"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
}

// AuthConfig holds the JWT signing secret.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RouterConfig sizes the router mailbox.
type RouterConfig struct {
	MailboxSize  int `yaml:"mailbox_size"`
	MailboxLimit int `yaml:"mailbox_limit"`
}

// DBConfig holds a single database connection. The database is optional;
// an empty host disables it.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WriterConfig holds sensor writer batching settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	QueueLimit    int           `yaml:"queue_limit"`
}

// RedisConfig holds the pub/sub relay settings. The relay is optional; no
// channels disables it.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Channels []string `yaml:"channels"`
}

// Enabled reports whether the relay is configured.
func (r RedisConfig) Enabled() bool {
	return len(r.Channels) > 0
}

// StatusConfig holds the status broadcaster settings.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval"`
	Disabled bool          `yaml:"disabled"`
}
