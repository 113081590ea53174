package main

import (
	"context"

	config "github.com/NordCoder/Gatekeeper/internal/config/auth-server"
	"github.com/NordCoder/Gatekeeper/internal/domain/account"
	"github.com/NordCoder/Gatekeeper/internal/domain/outbox"
	"github.com/NordCoder/Gatekeeper/internal/domain/session"
	"github.com/NordCoder/Gatekeeper/internal/repository/memory"
	pg "github.com/NordCoder/Gatekeeper/internal/repository/postgres"
	"github.com/NordCoder/Gatekeeper/internal/repository/redis"
	"github.com/NordCoder/Gatekeeper/internal/services/pruner"
	"go.uber.org/zap"
)

// storage is what the server persists to. outbox and purger are nil for the
// memory driver.
type storage struct {
	accounts account.Store
	outbox   outbox.Repository
	purger   pruner.OutboxPurger
	checks   map[string]func(context.Context) error
	close    func()
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory credential store; accounts are lost on restart")
		return &storage{
			accounts: memory.NewAccountStore(nil),
			checks:   map[string]func(context.Context) error{},
			close:    func() {},
		}, nil
	}

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("db connected")
	ob := pg.NewOutboxRepo(db)
	return &storage{
		accounts: pg.NewAccountRepo(db, pg.NewTransactor(db, logger)),
		outbox:   ob,
		purger:   ob,
		checks:   map[string]func(context.Context) error{"db": db.Ping},
		close:    db.Close,
	}, nil
}

func initCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Cache, error) {
	c, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return c, nil
}
