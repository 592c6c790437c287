// Package config defines the configuration of the fortune client and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by FORTUNE_* environment variables.
type Config struct {
	API      APIConfig      `toml:"api"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Payment  PaymentConfig  `toml:"payment"`
	Cache    CacheConfig    `toml:"cache"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// APIConfig points at the fortune backend.
type APIConfig struct {
	// BaseURL is the backend root. A local proxy is addressed as
	// "http://localhost:5173/api".
	BaseURL string `toml:"base_url"`
	// Network is sent as ?network= on every request.
	Network        string   `toml:"network"`
	Timeout        duration `toml:"timeout"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// ChainConfig holds the JSON-RPC endpoint used to submit and confirm
// payments.
type ChainConfig struct {
	RPCURL       string   `toml:"rpc_url"`
	ChainID      int64    `toml:"chain_id"`
	PollInterval duration `toml:"poll_interval"`
}

// WalletConfig holds the payer key. Without a key the client can browse but
// not pay.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// AutoApprove skips the interactive confirmation before signing.
	AutoApprove bool `toml:"auto_approve"`
}

// PaymentConfig holds the tunables of a payment attempt.
type PaymentConfig struct {
	GasLimit        uint64   `toml:"gas_limit"`
	DefaultDecimals int      `toml:"default_decimals"`
	Confirmations   int      `toml:"confirmations"`
	IndexingGrace   duration `toml:"indexing_grace"`
	BlindWait       duration `toml:"blind_wait"`
	LockTTL         duration `toml:"lock_ttl"`
}

// CacheConfig selects the unlock cache backend: "sqlite", "redis" or
// "memory".
type CacheConfig struct {
	Backend string   `toml:"backend"`
	TTL     duration `toml:"ttl"`
	// SQLitePath defaults to the per-user config directory.
	SQLitePath string `toml:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters. Redis backs the shared
// unlock cache and the cross-process payment lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds the payment audit log database.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds the receipt archive bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a time.Duration decoded from TOML strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the local HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogConfig adds a rotating log file next to stdout when File is set.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with the production defaults.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "https://fortune-pipeline.up.railway.app",
			Network:        "testnet",
			Timeout:        duration{30 * time.Second},
			ReconnectDelay: duration{5 * time.Second},
		},
		Chain: ChainConfig{
			RPCURL:       "https://rpc-amoy.polygon.technology/",
			ChainID:      80002,
			PollInterval: duration{2 * time.Second},
		},
		Payment: PaymentConfig{
			GasLimit:        300_000,
			DefaultDecimals: 6,
			Confirmations:   1,
			IndexingGrace:   duration{5 * time.Second},
			BlindWait:       duration{10 * time.Second},
			LockTTL:         duration{10 * time.Minute},
		},
		Cache: CacheConfig{
			Backend: "sqlite",
			TTL:     duration{24 * time.Hour},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "fortune:",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fortune",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "fortune-receipts",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"unlock_success", "payment_failed"},
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// Modes.
const (
	ModeWatch       = "watch"
	ModeUnlock      = "unlock"
	ModeServe       = "serve"
	ModeAuditExport = "audit-export"
)

var validModes = map[string]bool{
	ModeWatch:       true,
	ModeUnlock:      true,
	ModeServe:       true,
	ModeAuditExport: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCacheBackends = map[string]bool{
	"sqlite": true,
	"redis":  true,
	"memory": true,
}

// Validate checks c and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, unlock, serve, audit-export)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, "api: base_url must not be empty")
	}
	if strings.TrimSpace(c.API.Network) == "" {
		errs = append(errs, "api: network must not be empty")
	}
	if c.API.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "api: reconnect_delay must be > 0")
	}

	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}
	if mode == ModeUnlock && c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode unlock")
	}
	if c.Wallet.PrivateKey != "" || c.Wallet.EncryptedKeyPath != "" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty when a wallet is configured")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be positive")
		}
	}

	if c.Payment.GasLimit == 0 {
		errs = append(errs, "payment: gas_limit must be > 0")
	}
	if c.Payment.DefaultDecimals < 0 || c.Payment.DefaultDecimals > 36 {
		errs = append(errs, fmt.Sprintf("payment: default_decimals must be 0-36, got %d", c.Payment.DefaultDecimals))
	}
	if c.Payment.Confirmations < 1 {
		errs = append(errs, "payment: confirmations must be >= 1")
	}

	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: sqlite, redis, memory)", c.Cache.Backend))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}
	if backend == "redis" && !c.Redis.Enabled {
		errs = append(errs, "cache: backend redis requires redis.enabled")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if mode == ModeAuditExport && (!c.Postgres.Enabled || !c.S3.Enabled) {
		errs = append(errs, "mode audit-export requires postgres.enabled and s3.enabled")
	}
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if mode == ModeServe && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
