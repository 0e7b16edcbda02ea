package health

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/database"
)

func result(name string, err error) CheckResult {
	if err != nil {
		return CheckResult{Name: name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: name, Healthy: true}
}

type DBChecker struct {
	db *gorm.DB
}

// NewDBChecker returns nil for a nil db so the runner skips it.
func NewDBChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	sqlDB, err := c.db.DB()
	if err != nil {
		return result("db", err)
	}
	return result("db", sqlDB.PingContext(ctx))
}

// SchemaChecker reports unready until every auth table exists, which catches
// an API started against a database that was never migrated.
type SchemaChecker struct {
	db *gorm.DB
}

func NewSchemaChecker(db *gorm.DB) Checker {
	if db == nil {
		return nil
	}
	return &SchemaChecker{db: db}
}

func (c *SchemaChecker) Check(ctx context.Context) CheckResult {
	missing, err := database.MissingTables(c.db.WithContext(ctx))
	if err != nil {
		return result("schema", err)
	}
	if len(missing) > 0 {
		return CheckResult{Name: "schema", Healthy: false, Error: "missing tables: " + strings.Join(missing, ", ")}
	}
	return result("schema", nil)
}

type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker returns nil when Redis is disabled.
func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	return result("redis", c.client.Ping(ctx).Err())
}
