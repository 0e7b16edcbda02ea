package migrate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/database"
	"github.com/sandeepkv93/account-auth-service/internal/tools/common"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tooling",
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newCommand(opts, "up", "Apply schema migrations", migrateUp),
		newCommand(opts, "status", "Report missing tables", migrateStatus),
		newCommand(opts, "plan", "Show migration plan (dry-run)", migratePlan),
	)
	return cmd
}

type action func(ctx context.Context, cfg *config.Config, db *gorm.DB) ([]string, error)

func newCommand(opts *options, name, short string, fn action) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := common.Invocation{Tool: "migrate", Command: name, CI: opts.ci, Timeout: opts.timeout}
			_, err := common.Execute(inv, func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				sqlDB, err := db.DB()
				if err != nil {
					return nil, err
				}
				defer func() { _ = sqlDB.Close() }()
				if err := sqlDB.PingContext(ctx); err != nil {
					return nil, fmt.Errorf("db ping: %w", err)
				}
				return fn(ctx, cfg, db)
			})
			if err != nil {
				os.Exit(3)
			}
			return nil
		},
	}
}

func migrateUp(_ context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return []string{"schema migration applied", "driver: " + cfg.DatabaseDriver}, nil
}

func migrateStatus(_ context.Context, cfg *config.Config, db *gorm.DB) ([]string, error) {
	missing, err := database.MissingTables(db)
	if err != nil {
		return nil, err
	}
	details := []string{"database reachable", "driver: " + cfg.DatabaseDriver}
	if len(missing) == 0 {
		return append(details, "migrations: up to date"), nil
	}
	return append(details, "missing tables: "+strings.Join(missing, ", ")), nil
}

func migratePlan(_ context.Context, _ *config.Config, db *gorm.DB) ([]string, error) {
	missing, err := database.MissingTables(db)
	if err != nil {
		return nil, err
	}
	details := []string{"would apply AutoMigrate for users, verification_tokens, notification_outbox, revoked_tokens"}
	if len(missing) > 0 {
		details = append(details, "would create: "+strings.Join(missing, ", "))
	} else {
		details = append(details, "would only reconcile columns and indexes")
	}
	return append(details, "no mutation executed in plan mode"), nil
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
