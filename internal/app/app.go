package app

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

const revokedTokenCleanupBatch = 500

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Dispatcher    *service.NotificationDispatcher
	// RevokedTokens is nil when the blocklist lives in Redis, which expires
	// keys on its own.
	RevokedTokens *service.DBTokenBlocklist
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	dispatcher *service.NotificationDispatcher,
	revoked *service.DBTokenBlocklist,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Dispatcher:    dispatcher,
		RevokedTokens: revoked,
	}
}

// StartWorkers runs the outbox dispatcher and revoked-token cleanup until ctx
// is cancelled. The returned function blocks until both have exited.
func (a *App) StartWorkers(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	if a.Dispatcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Dispatcher.RunLoop(ctx, a.Config.NotifyDispatchInterval)
		}()
	}
	if a.RevokedTokens != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.RevokedTokens.RunCleanupLoop(ctx, a.Config.TokenBlocklistCleanupInterval, revokedTokenCleanupBatch, a.Logger)
		}()
	}
	return wg.Wait
}

// Close releases Redis and database handles after the server has drained.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
			}
		}
	}
}
