package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"caregiver-companion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory Store with injectable failures.
type fakeStore struct {
	mu       sync.Mutex
	now      time.Time
	seq      int
	log      []models.Reading
	latest   map[string]models.Reading
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		latest: make(map[string]models.Reading),
	}
}

func (f *fakeStore) AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return models.Reading{}, f.failWith
	}
	f.seq++
	ts := f.now.Add(time.Duration(f.seq) * time.Second)
	r := models.Reading{ID: fmt.Sprintf("entry-%d", f.seq), OwnerID: ownerID, Snapshot: snap.Clone(), Timestamp: &ts}
	f.log = append(f.log, r)
	return r, nil
}

func (f *fakeStore) UpsertLatest(ctx context.Context, reading models.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.latest[reading.OwnerID] = reading
	return nil
}

func (f *fakeStore) GetLatest(ctx context.Context, ownerID string) (models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return models.Reading{}, f.failWith
	}
	r, ok := f.latest[ownerID]
	if !ok {
		return models.Reading{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []models.Reading
	// reverse insertion order so the gateway has to sort
	for i := len(f.log) - 1; i >= 0; i-- {
		if f.log[i].OwnerID == ownerID {
			out = append(out, f.log[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ListLatest(ctx context.Context) ([]models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []models.Reading
	for _, r := range f.latest {
		out = append(out, r)
	}
	return out, nil
}

func newGateway(store Store) *Gateway {
	return New(store, DefaultBreakerSettings(), zap.NewNop())
}

func TestSave_RequiresOwner(t *testing.T) {
	g := newGateway(newFakeStore())

	_, err := g.Save(context.Background(), models.NewPlaceholderSnapshot(), "")

	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSave_AppendsAndUpsertsLatest(t *testing.T) {
	store := newFakeStore()
	g := newGateway(store)
	ctx := context.Background()

	id1, err := g.Save(ctx, models.SensorSnapshot{HeartRate: models.IntPtr(70)}, "owner-1")
	require.NoError(t, err)
	id2, err := g.Save(ctx, models.SensorSnapshot{HeartRate: models.IntPtr(72)}, "owner-1")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Len(t, store.log, 2)

	latest, found, err := g.LoadLatest(ctx, "owner-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id2, latest.ID)
	assert.Equal(t, 72, *latest.Snapshot.HeartRate)
}

func TestSave_TransportFailureIsRemoteUnavailable(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection reset")
	g := newGateway(store)

	_, err := g.Save(context.Background(), models.NewPlaceholderSnapshot(), "owner-1")

	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLoadLatest_MissingIsAbsenceNotError(t *testing.T) {
	g := newGateway(newFakeStore())

	_, found, err := g.LoadLatest(context.Background(), "nobody")

	assert.NoError(t, err)
	assert.False(t, found)
}

func TestLoadLatest_RequiresOwner(t *testing.T) {
	g := newGateway(newFakeStore())

	_, _, err := g.LoadLatest(context.Background(), "")

	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLoadHistory_NewestFirstAndTruncated(t *testing.T) {
	store := newFakeStore()
	g := newGateway(store)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := g.Save(ctx, models.SensorSnapshot{HeartRate: models.IntPtr(60 + i)}, "owner-1")
		require.NoError(t, err)
	}
	_, err := g.Save(ctx, models.SensorSnapshot{HeartRate: models.IntPtr(99)}, "owner-2")
	require.NoError(t, err)

	got, err := g.LoadHistory(ctx, "owner-1", 3)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, 64, *got[0].Snapshot.HeartRate)
	assert.Equal(t, 63, *got[1].Snapshot.HeartRate)
	assert.Equal(t, 62, *got[2].Snapshot.HeartRate)
}

func TestNewestFirst_MissingTimestampSortsOldest(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	readings := []models.Reading{
		{ID: "no-ts"},
		{ID: "old", Timestamp: &t1},
		{ID: "new", Timestamp: &t2},
	}

	got := NewestFirst(readings, 0)

	assert.Equal(t, []string{"new", "old", "no-ts"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("timeout")
	g := newGateway(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.Save(ctx, models.NewPlaceholderSnapshot(), "owner-1")
		require.ErrorIs(t, err, ErrRemoteUnavailable)
	}

	store.failWith = nil
	_, err := g.Save(ctx, models.NewPlaceholderSnapshot(), "owner-1")

	assert.ErrorIs(t, err, ErrRemoteUnavailable, "breaker should reject while open")
	assert.Empty(t, store.log)
}

func TestSamples_ProjectsHeartRate(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	got := Samples([]models.Reading{
		{Snapshot: models.SensorSnapshot{HeartRate: models.IntPtr(77)}, Timestamp: &ts},
		{Snapshot: models.NewPlaceholderSnapshot()},
		{Snapshot: models.SensorSnapshot{HeartRate: models.IntPtr(70)}},
	})

	require.Len(t, got, 2)
	assert.Equal(t, models.NewHistorySample(77, ts), got[0])
	assert.Equal(t, 70, got[1].Value)
	assert.Empty(t, got[1].Timestamp)
}
