package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dh2mqtt/internal/connection"
	"github.com/nerrad567/dh2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/dh2mqtt/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_RecordAndRecent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	transitions := []connection.Transition{
		{From: connection.StateDisconnected, To: connection.StateConnecting, At: base},
		{From: connection.StateConnecting, To: connection.StateConnected, At: base.Add(time.Second)},
		{
			From:   connection.StateConnected,
			To:     connection.StateDisconnected,
			Reason: connection.ErrWatchdogTimeout,
			At:     base.Add(31 * time.Second),
		},
	}
	for _, tr := range transitions {
		require.NoError(t, repo.Record(ctx, tr))
	}

	events, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	latest := events[0]
	assert.Equal(t, "connected", latest.From)
	assert.Equal(t, "disconnected", latest.To)
	assert.Equal(t, connection.ErrWatchdogTimeout.Error(), latest.Reason)
	assert.True(t, latest.OccurredAt.Equal(base.Add(31*time.Second)))

	assert.Equal(t, "disconnected", events[2].From)
	assert.Equal(t, "connecting", events[2].To)
	assert.Empty(t, events[2].Reason)
	assert.Greater(t, events[0].ID, events[2].ID)
}

func TestSQLiteRepository_RecentLimit(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, connection.Transition{
			From:   connection.StateConnected,
			To:     connection.StateDisconnected,
			Reason: errors.New("loss"),
		}))
	}

	events, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestSQLiteRepository_RecordStampsTime(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	require.NoError(t, repo.Record(ctx, connection.Transition{
		From: connection.StateDisconnected,
		To:   connection.StateConnecting,
	}))

	events, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].OccurredAt.After(before))
}

func TestSQLiteRepository_RecentEmpty(t *testing.T) {
	repo := openTestRepo(t)

	events, err := repo.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
