package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/models"
)

// testStore connects to the database named by DATABASE_URL and applies
// migrations. Tests using it are skipped when no database is available.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping database-backed test")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, ApplyMigrations(ctx, pool, zap.NewNop()))
	return NewStore(pool)
}

func deleteGrant(t *testing.T, s *Store, externalID string) {
	t.Helper()
	_, err := s.pool.Exec(context.Background(),
		"DELETE FROM grants WHERE external_id = $1", externalID)
	require.NoError(t, err)
}

func TestUpsertGrantIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const id = "testsrc_idempotent-upsert"
	deleteGrant(t, s, id)
	t.Cleanup(func() { deleteGrant(t, s, id) })

	g := models.NormalizedGrant{
		ExternalID:  id,
		Source:      "testsrc",
		Title:       "Community Buildings Fund",
		Funder:      "Test Trust",
		FunderType:  models.FunderTrust,
		Description: "Capital grants for village halls.",
	}
	require.NoError(t, s.UpsertGrant(ctx, g))

	first, err := s.GetGrant(ctx, id)
	require.NoError(t, err)
	require.True(t, first.IsActive)

	// Deactivate out of band, then re-crawl with a changed title. The row
	// must refresh in place: same first_seen_at, reactivated, no duplicate.
	_, err = s.pool.Exec(ctx,
		"UPDATE grants SET is_active = FALSE WHERE external_id = $1", id)
	require.NoError(t, err)

	g.Title = "Community Buildings Fund 2026"
	require.NoError(t, s.UpsertGrant(ctx, g))

	second, err := s.GetGrant(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "Community Buildings Fund 2026", second.Title)
	assert.True(t, second.IsActive)
	assert.True(t, second.FirstSeenAt.Equal(first.FirstSeenAt),
		"first_seen_at changed across re-upsert: %v -> %v", first.FirstSeenAt, second.FirstSeenAt)
	assert.False(t, second.LastSeenAt.Before(first.LastSeenAt))

	var count int
	require.NoError(t, s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM grants WHERE external_id = $1", id).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExpireGrantsSkipsRolling(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	const rollingID = "testsrc_rolling-past-deadline"
	const datedID = "testsrc_dated-past-deadline"
	for _, id := range []string{rollingID, datedID} {
		deleteGrant(t, s, id)
	}
	t.Cleanup(func() {
		for _, id := range []string{rollingID, datedID} {
			deleteGrant(t, s, id)
		}
	})

	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, s.UpsertGrant(ctx, models.NormalizedGrant{
		ExternalID: rollingID,
		Source:     "testsrc",
		Title:      "Rolling Small Grants",
		IsRolling:  true,
		Deadline:   &past,
	}))
	require.NoError(t, s.UpsertGrant(ctx, models.NormalizedGrant{
		ExternalID: datedID,
		Source:     "testsrc",
		Title:      "Closed Round",
		Deadline:   &past,
	}))

	expired, err := s.ExpireGrants(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Contains(t, expired, datedID)
	assert.NotContains(t, expired, rollingID)

	rolling, err := s.GetGrant(ctx, rollingID)
	require.NoError(t, err)
	assert.True(t, rolling.IsActive)

	dated, err := s.GetGrant(ctx, datedID)
	require.NoError(t, err)
	assert.False(t, dated.IsActive)
}
