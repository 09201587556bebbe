//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/pkg/db"
	"github.com/eqtlab/paycache-syncer/pkg/postgres"
	"github.com/eqtlab/paycache-syncer/storage/storetest"
	"github.com/eqtlab/paycache-syncer/syncer"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("paycache"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
			}
		}()

		url, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			return 1
		}

		cfg := postgres.Config{URL: url, MaxConns: 10, MigrationsPath: "file://../../migrations"}
		if err := postgres.Migrate(cfg); err != nil {
			fmt.Printf("Failed to migrate database: %v\n", err)
			return 1
		}

		testPool, err = postgres.Connect(ctx, cfg)
		if err != nil {
			fmt.Printf("Failed to connect to database: %v\n", err)
			return 1
		}
		defer testPool.Close()

		return m.Run()
	}()

	os.Exit(code)
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := New(db.NewDB(testPool, zap.NewNop()))
	require.NoError(t, s.Wipe(context.Background()))
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) syncer.Store {
		return newTestStorage(t)
	})
}

func TestUpsertBatchWithRepeatedToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	res, err := s.UpsertBatch(ctx, storetest.Account, []syncer.PaymentRecord{
		storetest.Payment("1", "2024-01-01T00:00:00Z", "INV42"),
		storetest.Payment("1", "2024-01-01T00:00:00Z", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)

	records, err := syncer.Collect(s.IterateByAccountCreatedRange(ctx, storetest.Account, syncer.Range{}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "INV42", records[0].Memo)
}

func TestRepairMemoNormalized(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.UpsertBatch(ctx, storetest.Account, []syncer.PaymentRecord{
		storetest.Payment("1", "2024-01-01T00:00:00Z", " inv  42 "),
	})
	require.NoError(t, err)
	_, err = testPool.Exec(ctx, `update payments set memo_normalized = null`)
	require.NoError(t, err)

	repaired, err := s.RepairMemoNormalized(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	records, err := syncer.Collect(s.IterateByAccountNormalizedMemoRange(ctx, storetest.Account, "inv 42", syncer.Range{}))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
