package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Account holds the immutable connection settings for one mailbox. Supplied
// once at engine construction and never mutated afterwards.
type Account struct {
	// ID identifies the account in logs, message identifiers and status
	// reports. Defaults to the username when left empty.
	ID       string `mapstructure:"id"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
	// InsecureSkipVerify disables certificate validation. Explicit opt-in
	// for development servers only; never enabled by default.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// Addr returns the dial address for the account.
func (a Account) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Sync groups the tunables of the synchronization engine.
type Sync struct {
	// LookbackDays is the historical window applied as a server-side date
	// filter on the initial search after every (re)connect.
	LookbackDays int `mapstructure:"lookback_days"`
	// BatchSize bounds how many sequence numbers one FETCH round-trip
	// covers during backfill and notification-triggered fetches.
	BatchSize int `mapstructure:"batch_size"`
	// IdleWatchdog restarts the IDLE session proactively before the
	// server-side timeout (RFC 2177 allows up to 30 minutes).
	IdleWatchdog time.Duration `mapstructure:"idle_watchdog"`
	// ReconnectDelay applies after a protocol or connection error;
	// CleanReconnectDelay after a clean connection teardown.
	ReconnectDelay      time.Duration `mapstructure:"reconnect_delay"`
	CleanReconnectDelay time.Duration `mapstructure:"clean_reconnect_delay"`
	// ShutdownTimeout bounds how long Stop waits for account tasks to
	// acknowledge cancellation.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Redis configures the optional Redis Streams event sink.
type Redis struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Stream  string `mapstructure:"stream"`
}

// Config is the root configuration document.
type Config struct {
	LogLevel string    `mapstructure:"log_level"`
	Sync     Sync      `mapstructure:"sync"`
	Redis    Redis     `mapstructure:"redis"`
	Accounts []Account `mapstructure:"accounts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("sync.lookback_days", 30)
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.idle_watchdog", 25*time.Minute)
	v.SetDefault("sync.reconnect_delay", 15*time.Second)
	v.SetDefault("sync.clean_reconnect_delay", 5*time.Second)
	v.SetDefault("sync.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.stream", "onebox:messages")
}

// Load reads the YAML config at path, applies defaults and environment
// overrides (ONEBOX_ prefix), and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("onebox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes defaults and rejects unusable accounts. An empty
// account list is valid: the engine starts and performs no work.
func (c *Config) Validate() error {
	if c.Sync.LookbackDays <= 0 {
		c.Sync.LookbackDays = 30
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 10
	}
	if c.Sync.IdleWatchdog <= 0 {
		c.Sync.IdleWatchdog = 25 * time.Minute
	}
	if c.Sync.ReconnectDelay <= 0 {
		c.Sync.ReconnectDelay = 15 * time.Second
	}
	if c.Sync.CleanReconnectDelay <= 0 {
		c.Sync.CleanReconnectDelay = 5 * time.Second
	}
	if c.Sync.ShutdownTimeout <= 0 {
		c.Sync.ShutdownTimeout = 30 * time.Second
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if err := acc.validate(); err != nil {
			return fmt.Errorf("account %d: %w", i, err)
		}
		if acc.ID == "" {
			acc.ID = acc.Username
		}
		if _, dup := seen[acc.ID]; dup {
			return fmt.Errorf("account %d: duplicate id %q", i, acc.ID)
		}
		seen[acc.ID] = struct{}{}
	}
	return nil
}

func (a *Account) validate() error {
	if strings.TrimSpace(a.Host) == "" {
		return fmt.Errorf("missing host")
	}
	if strings.TrimSpace(a.Username) == "" {
		return fmt.Errorf("missing username")
	}
	if a.Password == "" {
		return fmt.Errorf("missing password")
	}
	if a.Port == 0 {
		if a.TLS {
			a.Port = 993
		} else {
			a.Port = 143
		}
	}
	return nil
}
