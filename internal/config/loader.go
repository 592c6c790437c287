package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env when present,
// and applies FORTUNE_* overrides. A missing file at path is not an error, so
// the client runs on defaults plus environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose FORTUNE_* variable is set and
// non-empty. Secrets are meant to arrive this way.
func applyEnvOverrides(cfg *Config) {
	// ── API ──
	setStr(&cfg.API.BaseURL, "FORTUNE_API_BASE_URL")
	setStr(&cfg.API.Network, "FORTUNE_API_NETWORK")
	setDuration(&cfg.API.Timeout, "FORTUNE_API_TIMEOUT")
	setDuration(&cfg.API.ReconnectDelay, "FORTUNE_API_RECONNECT_DELAY")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "FORTUNE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "FORTUNE_CHAIN_ID")
	setDuration(&cfg.Chain.PollInterval, "FORTUNE_CHAIN_POLL_INTERVAL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "FORTUNE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "FORTUNE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "FORTUNE_WALLET_KEY_PASSWORD")
	setBool(&cfg.Wallet.AutoApprove, "FORTUNE_WALLET_AUTO_APPROVE")

	// ── Payment ──
	setUint64(&cfg.Payment.GasLimit, "FORTUNE_PAYMENT_GAS_LIMIT")
	setInt(&cfg.Payment.DefaultDecimals, "FORTUNE_PAYMENT_DEFAULT_DECIMALS")
	setInt(&cfg.Payment.Confirmations, "FORTUNE_PAYMENT_CONFIRMATIONS")
	setDuration(&cfg.Payment.IndexingGrace, "FORTUNE_PAYMENT_INDEXING_GRACE")
	setDuration(&cfg.Payment.BlindWait, "FORTUNE_PAYMENT_BLIND_WAIT")
	setDuration(&cfg.Payment.LockTTL, "FORTUNE_PAYMENT_LOCK_TTL")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "FORTUNE_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "FORTUNE_CACHE_TTL")
	setStr(&cfg.Cache.SQLitePath, "FORTUNE_CACHE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FORTUNE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FORTUNE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FORTUNE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FORTUNE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FORTUNE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FORTUNE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FORTUNE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "FORTUNE_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FORTUNE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FORTUNE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "FORTUNE_DATABASE_URL") // alias
	setStr(&cfg.Postgres.Host, "FORTUNE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FORTUNE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FORTUNE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FORTUNE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FORTUNE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FORTUNE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FORTUNE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FORTUNE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FORTUNE_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FORTUNE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FORTUNE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FORTUNE_S3_REGION")
	setStr(&cfg.S3.Bucket, "FORTUNE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FORTUNE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FORTUNE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FORTUNE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FORTUNE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setStr(&cfg.Server.Host, "FORTUNE_SERVER_HOST")
	setInt(&cfg.Server.Port, "FORTUNE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FORTUNE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "FORTUNE_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FORTUNE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FORTUNE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FORTUNE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FORTUNE_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.File, "FORTUNE_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "FORTUNE_LOG_MAX_SIZE_MB")

	// ── Top-level ──
	setStr(&cfg.Mode, "FORTUNE_MODE")
	setStr(&cfg.LogLevel, "FORTUNE_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
