package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	s3blob "github.com/alanyoungcy/fortune/internal/blob/s3"
	"github.com/alanyoungcy/fortune/internal/cache"
	"github.com/alanyoungcy/fortune/internal/cache/redis"
	"github.com/alanyoungcy/fortune/internal/cache/sqlite"
	"github.com/alanyoungcy/fortune/internal/chain"
	"github.com/alanyoungcy/fortune/internal/config"
	"github.com/alanyoungcy/fortune/internal/domain"
	"github.com/alanyoungcy/fortune/internal/eventstore"
	"github.com/alanyoungcy/fortune/internal/notify"
	"github.com/alanyoungcy/fortune/internal/payment"
	"github.com/alanyoungcy/fortune/internal/platform/fortune"
	"github.com/alanyoungcy/fortune/internal/server/handler"
	"github.com/alanyoungcy/fortune/internal/store/postgres"
	"github.com/alanyoungcy/fortune/internal/wallet"
)

// Dependencies bundles what the modes run on. Optional parts are nil when
// their backend is not configured.
type Dependencies struct {
	API    *fortune.Client
	Events *eventstore.Store

	KV      domain.KVStore
	Unlocks *cache.UnlockCache
	Locks   domain.LockManager

	Chain  *chain.Client
	Wallet domain.Wallet

	Audit    domain.AuditStore
	Receipts *s3blob.ReceiptArchiver
	Blobs    *s3blob.Writer

	Notifier *notify.Notifier

	// Health holds a probe per connected backend for /api/health.
	Health map[string]handler.HealthCheck
}

// PaymentDeps returns the workflow dependencies. Nil optional parts stay
// untyped nil so the workflow can detect their absence.
func (d *Dependencies) PaymentDeps() payment.Deps {
	pd := payment.Deps{
		API:      d.API,
		Cache:    d.Unlocks,
		Notifier: d.Notifier,
	}
	if d.Wallet != nil {
		pd.Wallet = d.Wallet
	}
	if d.Chain != nil {
		pd.Chain = d.Chain
	}
	if d.Audit != nil {
		pd.Audit = d.Audit
	}
	if d.Receipts != nil {
		pd.Receipts = d.Receipts
	}
	if d.Locks != nil {
		pd.Locks = d.Locks
	}
	return pd
}

// PaymentConfig converts the payment section of cfg.
func PaymentConfig(cfg *config.Config) payment.Config {
	return payment.Config{
		GasLimit:        cfg.Payment.GasLimit,
		DefaultDecimals: uint8(cfg.Payment.DefaultDecimals),
		Confirmations:   uint64(cfg.Payment.Confirmations),
		IndexingGrace:   cfg.Payment.IndexingGrace.Duration,
		BlindWait:       cfg.Payment.BlindWait.Duration,
		LockTTL:         cfg.Payment.LockTTL.Duration,
	}
}

// Wire builds every dependency cfg asks for and returns a cleanup func that
// releases them in reverse order. approve is consulted before each signing.
func Wire(ctx context.Context, cfg *config.Config, approve wallet.ApproveFunc, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		API:    fortune.NewClient(cfg.API.BaseURL, cfg.API.Network, cfg.API.Timeout.Duration),
		Events: eventstore.New(),
		Health: map[string]handler.HealthCheck{},
	}

	// --- Redis (shared cache and payment lock) ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
		deps.Locks = redis.NewLockManager(c)
		deps.Health["redis"] = c.Ping
	}

	// --- Unlock cache ---
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		deps.KV = redis.NewKVStore(redisClient, cfg.Cache.TTL.Duration)
	case "memory":
		deps.KV = cache.NewMemoryKV()
	default:
		kv, err := sqlite.Open(cfg.Cache.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite cache: %w", err))
		}
		closers = append(closers, func() { _ = kv.Close() })
		deps.KV = kv
	}
	deps.Unlocks = cache.NewUnlockCache(deps.KV, cfg.Cache.TTL.Duration, logger)

	// --- PostgreSQL audit log ---
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.Health["postgres"] = pg.Pool().Ping
	}

	// --- S3 receipt archive ---
	if cfg.S3.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Blobs = s3blob.NewWriter(s3c)
		deps.Receipts = s3blob.NewReceiptArchiver(deps.Blobs, s3blob.NewReader(s3c), logger)
		deps.Health["s3"] = s3c.Health
	}

	// --- Wallet and chain ---
	keys := wallet.KeySource{
		RawPrivateKey: cfg.Wallet.PrivateKey,
		KeyFile:       cfg.Wallet.EncryptedKeyPath,
		Password:      cfg.Wallet.KeyPassword,
	}
	if keys.Configured() {
		keyHex, err := wallet.LoadKey(keys)
		if err != nil {
			return fail(fmt.Errorf("wire: wallet key: %w", err))
		}
		cc, err := chain.New(ctx, chain.ClientConfig{
			RPCURL:       cfg.Chain.RPCURL,
			PollInterval: cfg.Chain.PollInterval.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: chain: %w", err))
		}
		closers = append(closers, cc.Close)
		signer, err := wallet.NewSigner(keyHex, big.NewInt(cfg.Chain.ChainID))
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		if cfg.Wallet.AutoApprove || approve == nil {
			approve = wallet.AutoApprove
		}
		deps.Chain = cc
		deps.Wallet = wallet.NewLocalWallet(signer, cc.Backend(), approve, logger)
		logger.InfoContext(ctx, "wallet connected", slog.String("address", signer.Address()))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
