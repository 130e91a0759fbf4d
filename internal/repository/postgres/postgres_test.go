package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/config"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/repotest"
)

// testDSNEnv names a disposable database. Its tables are truncated.
const testDSNEnv = "ALEXANDER_TEST_POSTGRES_URL"

func TestRepositories(t *testing.T) {
	url := os.Getenv(testDSNEnv)
	if url == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx := context.Background()

	db, err := NewDB(ctx, config.DatabaseConfig{Driver: "postgres", URL: url}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	repotest.Run(t, func(t *testing.T) *repository.Repositories {
		_, err := db.Pool.Exec(ctx, `TRUNCATE reservations, books, categories, users RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return db.Repositories()
	})
}
