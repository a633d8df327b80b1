package db_test

import (
	"context"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/udisondev/psotrace/internal/db"
)

// setupTestDB возвращает подключение с применёнными миграциями.
// Если DB_ADDR задан, используем его (для CI/CD), иначе поднимаем
// PostgreSQL testcontainer. Без docker тест пропускается.
func setupTestDB(tb testing.TB) *db.DB {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping database tests in short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("DB_ADDR")
	if dsn == "" {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("psotrace_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			tb.Skipf("postgres container unavailable: %v", err)
		}
		tb.Cleanup(func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				tb.Logf("terminating postgres container: %v", err)
			}
		})

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			tb.Fatalf("getting connection string: %v", err)
		}
	}

	if err := db.RunMigrations(ctx, dsn); err != nil {
		tb.Fatalf("running migrations: %v", err)
	}

	d, err := db.New(ctx, dsn, 4)
	if err != nil {
		tb.Fatalf("connecting to test db: %v", err)
	}
	tb.Cleanup(d.Close)

	return d
}
