package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/database"
)

const defaultPostgresTestImage = "docker.io/library/postgres:16-alpine"

type postgresIntegrationEnv struct {
	dsn       string
	db        *gorm.DB
	container testcontainers.Container
}

// newPostgresIntegrationEnv starts a throwaway Postgres. Set AUTH_IT_POSTGRES=1
// to run it; Docker is required.
func newPostgresIntegrationEnv(t *testing.T) *postgresIntegrationEnv {
	t.Helper()
	if os.Getenv("AUTH_IT_POSTGRES") != "1" {
		t.Skip("set AUTH_IT_POSTGRES=1 to run Postgres container tests")
	}

	ctx := context.Background()
	image := os.Getenv("POSTGRES_TEST_IMAGE")
	if strings.TrimSpace(image) == "" {
		image = defaultPostgresTestImage
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: image,
			Env: map[string]string{
				"POSTGRES_USER":     "auth",
				"POSTGRES_PASSWORD": "auth",
				"POSTGRES_DB":       "auth",
			},
			ExposedPorts: []string{"5432/tcp"},
			// The entrypoint restarts the server once after init.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeoutDefault(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres test container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve postgres host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("resolve postgres port: %v", err)
	}
	dsn := fmt.Sprintf("host=%s port=%s user=auth password=auth dbname=auth sslmode=disable", host, mappedPort.Port())

	db, err := database.Open(&config.Config{DatabaseDriver: "postgres", DatabaseURL: dsn})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	waitForPostgresReady(t, db)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &postgresIntegrationEnv{dsn: dsn, db: db, container: container}
}

func waitForPostgresReady(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("postgres sql handle: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := sqlDB.PingContext(ctx)
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("postgres readiness check timed out: %v", err)
		case <-ticker.C:
		}
	}
}
