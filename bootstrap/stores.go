package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/redis"
	"github.com/artpar/quotagate/adapters/sqlite"
	"github.com/artpar/quotagate/config"
	"github.com/artpar/quotagate/ports"
	"github.com/rs/zerolog"
)

// Stores is the key store and usage ledger selected by store.driver.
type Stores struct {
	Keys   ports.KeyStore
	Ledger ports.UsageLedger
	Driver string

	close func() error
}

// Close releases the backing connection, if any.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the stores for cfg.Store.Driver. SQLite databases are
// migrated; redis is pinged with retries before returning.
func OpenStores(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn().Int("shards", cfg.Shards).Msg("using in-memory store, data is lost on restart")
		return &Stores{
			Keys:   memory.NewKeyStore(cfg.Shards),
			Ledger: memory.NewLedger(cfg.Shards),
			Driver: cfg.Driver,
		}, nil

	case config.DriverRedis:
		client, err := redis.Dial(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("redis store initialized")
		return &Stores{
			Keys:   redis.NewKeyStore(client, cfg.Redis.Prefix),
			Ledger: redis.NewLedger(client, cfg.Redis.Prefix),
			Driver: cfg.Driver,
			close:  client.Close,
		}, nil

	case config.DriverSQLite, "":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("dsn", cfg.DSN).Msg("database initialized")
		return &Stores{
			Keys:   sqlite.NewKeyStore(db),
			Ledger: sqlite.NewLedger(db),
			Driver: config.DriverSQLite,
			close:  db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// pingTimeout bounds the startup reachability check.
const pingTimeout = 5 * time.Second
