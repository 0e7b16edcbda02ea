package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/app"
	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/database"
	"github.com/sandeepkv93/account-auth-service/internal/health"
	"github.com/sandeepkv93/account-auth-service/internal/http/handler"
	"github.com/sandeepkv93/account-auth-service/internal/http/router"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"github.com/sandeepkv93/account-auth-service/internal/security"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewStore,
	provideUserRepository,
	repository.NewRevokedTokenRepository,
	repository.NewNotificationOutboxRepository,
)

var SecuritySet = wire.NewSet(provideJWTManager)

var ServiceSet = wire.NewSet(
	provideDBTokenBlocklist,
	provideTokenBlocklist,
	provideTokenService,
	wire.Bind(new(service.TokenIssuer), new(*service.TokenService)),
	wire.Bind(new(service.TokenAuthenticator), new(*service.TokenService)),
	service.NewAuthService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	provideNotificationSender,
	provideNotificationDispatcher,
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

// provideRuntimeDB migrates on boot and seeds the demo user in local
// environments only.
func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if cfg.IsLocal() {
		if _, err := database.Seed(context.Background(), db, database.DefaultSeedUsers); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, 0,
		health.NewDBChecker(db),
		health.NewSchemaChecker(db),
		health.NewRedisChecker(redisClient),
	)
}

func provideUserRepository(store repository.Store) repository.UserRepository {
	return store.Users()
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

// provideDBTokenBlocklist returns nil when Redis holds the blocklist.
func provideDBTokenBlocklist(cfg *config.Config, repo repository.RevokedTokenRepository) *service.DBTokenBlocklist {
	if cfg.RedisEnabled {
		return nil
	}
	return service.NewDBTokenBlocklist(repo)
}

func provideTokenBlocklist(cfg *config.Config, redisClient redis.UniversalClient, dbBlocklist *service.DBTokenBlocklist) service.TokenBlocklist {
	if cfg.RedisEnabled && redisClient != nil {
		return service.NewRedisTokenBlocklist(redisClient, cfg.RedisPrefix)
	}
	return dbBlocklist
}

func provideTokenService(cfg *config.Config, jwt *security.JWTManager, users repository.UserRepository, blocklist service.TokenBlocklist) *service.TokenService {
	return service.NewTokenService(jwt, users, blocklist, cfg.JWTTTL, cfg.JWTRefreshTTL)
}

func provideNotificationSender(cfg *config.Config, logger *slog.Logger) service.NotificationSender {
	if cfg.NotifySender == "smtp" {
		return service.NewSMTPSender(service.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			FromAddr: cfg.MailFromAddress,
			FromName: cfg.MailFromName,
		})
	}
	return service.NewLogSender(logger)
}

func provideNotificationDispatcher(
	cfg *config.Config,
	outbox repository.NotificationOutboxRepository,
	sender service.NotificationSender,
	logger *slog.Logger,
) *service.NotificationDispatcher {
	return service.NewNotificationDispatcher(
		outbox,
		sender,
		service.NewNotificationRenderer(cfg.AppBaseURL),
		service.DispatcherOptions{
			BatchSize:   cfg.NotifyBatchSize,
			MaxAttempts: cfg.NotifyMaxAttempts,
			Retention:   cfg.NotifyRetention,
			ClaimLease:  cfg.NotifyClaimLease,
		},
		logger,
	)
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	authn service.TokenAuthenticator,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:    authHandler,
		Authenticator:  authn,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		Readiness:      readiness,
		EnableOTelHTTP: cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
