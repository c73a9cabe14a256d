//go:build integration

package testutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gamemart/ledger/internal/app"
	"github.com/gamemart/ledger/internal/auth"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret     = "integration-test-secret"
	TestWebhookSecret = "whsec_test_integration_secret"
	TestFrontendURL   = "http://shop.test"
	TestCurrency      = "BDT"
	TestDBHost        = "localhost"
	TestDBPort        = 5435
	TestDBUser        = "ledger"
	TestDBPass        = "ledger"
	TestDBName        = "ledger_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server  *httptest.Server
	Pool    *pgxpool.Pool
	JWTMgr  *auth.JWTManager
	Gateway *FakeGateway
	t       *testing.T
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
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "ledger")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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
	migratePath := "file://" + filepath.Join(findProjectRoot(), "db", "migrations")

	m, err := newMigrate(migratePath, testDSN())
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// findProjectRoot walks up from the working directory to the directory
// holding go.mod.
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		if err := runMigrations(); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 20
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// TestConfig is the configuration every integration router runs with.
func TestConfig(gatewayURL string) *infra.Config {
	return &infra.Config{
		JWTSecret:              TestJWTSecret,
		JWTExpiry:              time.Hour,
		CORSAllowedOrigins:     "*",
		AllowInsecureDefaults:  true,
		GatewayBaseURL:         gatewayURL,
		GatewayAPIKey:          FakeGatewayAPIKey,
		GatewayWebhookSecret:   TestWebhookSecret,
		GatewayTimeout:         5 * time.Second,
		PublicBaseURL:          "http://api.test",
		FrontendBaseURL:        TestFrontendURL,
		Currency:               TestCurrency,
		RegistrationFee:        "500",
		RedeemCodeValidityDays: 365,
		VerifyRateLimit:        1000,
	}
}

// NewTestEnv creates a test environment with an httptest.Server backed by
// the real router, the test database and a fake payment gateway.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	gateway := NewFakeGateway()

	cfg := TestConfig(gateway.URL())
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := infra.NewWSHub(cfg.CORSAllowedOrigins, logger)

	router, err := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		JWTMgr: jwtMgr,
		Logger: logger,
		Config: cfg,
		Hub:    hub,
	})
	if err != nil {
		gateway.Close()
		t.Fatalf("build router: %v", err)
	}

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:  server,
		Pool:    pool,
		JWTMgr:  jwtMgr,
		Gateway: gateway,
		t:       t,
	}

	t.Cleanup(func() {
		server.Close()
		gateway.Close()
		hub.Shutdown(context.Background())
		env.CleanAll()
	})

	// Clean before test to ensure isolation
	env.CleanAll()

	return env
}
