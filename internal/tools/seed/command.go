package seed

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/database"
	"github.com/sandeepkv93/account-auth-service/internal/tools/common"
)

type options struct {
	envFile string
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Database seed tooling"}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts))
	return cmd
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create demo users that do not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Execute(opts.invocation("apply"), func(ctx context.Context) ([]string, error) {
				db, err := loadDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				report, err := database.Seed(ctx, db, database.DefaultSeedUsers)
				if err != nil {
					return nil, err
				}
				return describe(report, "created", "already present"), nil
			})
			return exitOnError(err)
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what seeding would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Execute(opts.invocation("dry-run"), func(ctx context.Context) ([]string, error) {
				db, err := loadDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB(db)
				report, err := database.Plan(ctx, db, database.DefaultSeedUsers)
				if err != nil {
					return nil, err
				}
				return describe(report, "would create", "would skip"), nil
			})
			return exitOnError(err)
		},
	}
}

func describe(report *database.SeedReport, createdLabel, skippedLabel string) []string {
	details := make([]string, 0, len(report.Created)+len(report.Skipped)+1)
	for _, email := range report.Created {
		details = append(details, createdLabel+": "+email)
	}
	for _, email := range report.Skipped {
		details = append(details, skippedLabel+": "+email)
	}
	if report.Noop() {
		details = append(details, "noop")
	}
	return details
}

func (o *options) invocation(command string) common.Invocation {
	return common.Invocation{Tool: "seed", Command: command, CI: o.ci}
}

func exitOnError(err error) error {
	if err != nil {
		os.Exit(3)
	}
	return nil
}

func loadDB(envFile string) (*gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
