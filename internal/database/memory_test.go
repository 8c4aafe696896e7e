package database

import (
	"context"
	"testing"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetLatest(ctx, "owner-1")
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	r, err := store.AppendReading(ctx, "owner-1", models.SensorSnapshot{HeartRate: models.IntPtr(66)})
	require.NoError(t, err)
	require.NotNil(t, r.Timestamp)
	require.NoError(t, store.UpsertLatest(ctx, r))

	latest, err := store.GetLatest(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, latest.ID)

	log, err := store.QueryReadings(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, log, 1)

	all, err := store.ListLatest(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
