//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorloop/platform/internal/app"
	"github.com/tutorloop/platform/internal/auth"
)

const (
	TestJWTSecret           = "integration-test-secret"
	TestStripeWebhookSecret = "whsec_test_integration_secret"
	TestDBHost              = "localhost"
	TestDBPort              = 5435
	TestDBUser              = "tutorloop"
	TestDBPass              = "tutorloop"
	TestDBName              = "tutorloop_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "tutorloop")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to the main database to create the test database
	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

func runMigrations() error {
	projectRoot := findProjectRoot()
	migratePath := fmt.Sprintf("file://%s/db/migrations", projectRoot)

	m, err := openMigrate(migratePath, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err.Error() != "no change" {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

// findProjectRoot walks up from cwd looking for go.mod.
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for dir != "" && dir != "/" {
		if _, err := os.Stat(dir + "/go.mod"); err == nil {
			return dir
		}
		idx := len(dir) - 1
		for idx > 0 && dir[idx] != '/' {
			idx--
		}
		dir = dir[:idx]
	}
	return "."
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the real router and test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour, 12*time.Hour, 8*time.Hour)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	router := app.NewRouter(app.RouterDeps{
		Pool:                pool,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		StripeSecretKey:     "",
		StripeWebhookSecret: TestStripeWebhookSecret,
		NotifierURL:         "",
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server: server,
		Pool:   pool,
		JWTMgr: jwtMgr,
		t:      t,
	}
	t.Cleanup(func() {
		server.Close()
	})

	env.CleanAll()
	return env
}
