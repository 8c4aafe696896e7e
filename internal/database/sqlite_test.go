package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func TestRepository_AppendAndLatest(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	r1, err := repo.AppendReading(ctx, "owner-1", models.SensorSnapshot{HeartRate: models.IntPtr(70), MentalState: models.MentalCalm})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertLatest(ctx, r1))
	r2, err := repo.AppendReading(ctx, "owner-1", models.SensorSnapshot{HeartRate: models.IntPtr(74)})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertLatest(ctx, r2))

	latest, err := repo.GetLatest(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)
	assert.Equal(t, 74, *latest.Snapshot.HeartRate)
	require.NotNil(t, latest.Timestamp)
	assert.True(t, latest.Timestamp.Equal(*r2.Timestamp))

	log, err := repo.QueryReadings(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, log, 2)

	all, err := repo.ListLatest(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepository_GetLatestMissing(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetLatest(context.Background(), "nobody")

	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestRepository_UnparsableTimestampIsNil(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, err := repo.db.Exec(`INSERT INTO readings (id, owner_id, snapshot, recorded_at) VALUES ('bad', 'owner-1', '{}', 'garbage')`)
	require.NoError(t, err)

	log, err := repo.QueryReadings(ctx, "owner-1")
	require.NoError(t, err)

	require.Len(t, log, 1)
	assert.Nil(t, log[0].Timestamp)
}

func TestRepository_WithGateway(t *testing.T) {
	repo := newTestRepository(t)
	g := gateway.New(repo, gateway.DefaultBreakerSettings(), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := g.Save(ctx, models.SensorSnapshot{HeartRate: models.IntPtr(60 + i)}, "owner-1")
		require.NoError(t, err)
	}

	history, err := g.LoadHistory(ctx, "owner-1", 20)
	require.NoError(t, err)
	require.Len(t, history, 20)
	assert.Equal(t, 84, *history[0].Snapshot.HeartRate)
	assert.Equal(t, 65, *history[19].Snapshot.HeartRate)
}

func TestRepository_TransportFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO readings").WillReturnError(errors.New("disk I/O error"))

	repo := NewRepositoryWithDB(db, zap.NewNop())
	g := gateway.New(repo, gateway.DefaultBreakerSettings(), zap.NewNop())

	_, err = g.Save(context.Background(), models.NewPlaceholderSnapshot(), "owner-1")

	assert.ErrorIs(t, err, gateway.ErrRemoteUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LatestQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, owner_id, snapshot, recorded_at FROM latest_readings").
		WithArgs("owner-1").
		WillReturnError(errors.New("database is locked"))

	repo := NewRepositoryWithDB(db, zap.NewNop())
	g := gateway.New(repo, gateway.DefaultBreakerSettings(), zap.NewNop())

	_, found, err := g.LoadLatest(context.Background(), "owner-1")

	assert.False(t, found)
	assert.ErrorIs(t, err, gateway.ErrRemoteUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Profiles(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.UpsertProfile(ctx, models.PatientProfile{
		OwnerID: "owner-1",
		Name:    "John Doe",
		Age:     65,
		Medical: models.MedicalInfo{Conditions: []string{"Diabetes"}},
		EmergencyContact: models.EmergencyContact{
			Name: "Jane Doe", Relationship: "Daughter", Phone: "555-0100",
		},
	})
	require.NoError(t, err)

	updated, err := repo.UpsertProfile(ctx, models.PatientProfile{OwnerID: "owner-1", Name: "John A. Doe", Age: 66})
	require.NoError(t, err)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	got, err := repo.GetProfile(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "John A. Doe", got.Name)
	assert.Equal(t, 66, got.Age)

	list, err := repo.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.DeleteProfile(ctx, "owner-1"))
	_, err = repo.GetProfile(ctx, "owner-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.ErrorIs(t, repo.DeleteProfile(ctx, "owner-1"), ErrProfileNotFound)
}

func TestRepository_Alerts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	first := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveAlert(ctx, models.EmergencyAlert{
		ID: "a1", OwnerID: "owner-1", Message: "fell down", Status: models.AlertPending, CreatedAt: first,
	}))
	require.NoError(t, repo.SaveAlert(ctx, models.EmergencyAlert{
		ID: "a2", OwnerID: "owner-1", Message: "chest pain", Location: "kitchen",
		Snapshot: models.SensorSnapshot{HeartRate: models.IntPtr(99)}, Status: models.AlertPending,
		CreatedAt: first.Add(time.Minute),
	}))

	list, err := repo.ListAlerts(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, 99, *list[0].Snapshot.HeartRate)
	assert.Equal(t, "kitchen", list[0].Location)

	acked, err := repo.AcknowledgeAlert(ctx, "a1", "nurse-7", first.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)
	assert.Equal(t, "nurse-7", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	_, err = repo.AcknowledgeAlert(ctx, "missing", "nurse-7", first)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}
