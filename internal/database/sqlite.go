package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Fixed-width UTC timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Repository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewRepository(dbPath string, logger *zap.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection also keeps ":memory:"
	// databases shared across calls.
	db.SetMaxOpenConns(1)

	repo := NewRepositoryWithDB(db, logger)
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepositoryWithDB wraps an already opened database without touching the
// schema.
func NewRepositoryWithDB(db *sql.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger, now: time.Now}
}

func (r *Repository) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS readings (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        snapshot TEXT NOT NULL,
        recorded_at TEXT
    );`,
		`CREATE INDEX IF NOT EXISTS idx_readings_owner ON readings (owner_id);`,
		`CREATE TABLE IF NOT EXISTS latest_readings (
        owner_id TEXT PRIMARY KEY,
        id TEXT NOT NULL,
        snapshot TEXT NOT NULL,
        recorded_at TEXT
    );`,
		`CREATE TABLE IF NOT EXISTS patients (
        owner_id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        age INTEGER,
        contact TEXT NOT NULL,
        medical TEXT NOT NULL,
        emergency_contact TEXT NOT NULL,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );`,
		`CREATE TABLE IF NOT EXISTS emergency_alerts (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        message TEXT NOT NULL,
        location TEXT,
        snapshot TEXT NOT NULL,
        status TEXT NOT NULL,
        created_at TEXT NOT NULL,
        acknowledged_by TEXT,
        acknowledged_at TEXT
    );`,
	}
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return models.Reading{}, err
	}
	ts := r.now().UTC()
	reading := models.Reading{ID: uuid.NewString(), OwnerID: ownerID, Snapshot: snap.Clone(), Timestamp: &ts}

	query := `INSERT INTO readings (id, owner_id, snapshot, recorded_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, reading.ID, ownerID, string(payload), ts.Format(timeFormat)); err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

func (r *Repository) UpsertLatest(ctx context.Context, reading models.Reading) error {
	payload, err := json.Marshal(reading.Snapshot)
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO latest_readings (owner_id, id, snapshot, recorded_at) VALUES (?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, reading.OwnerID, reading.ID, string(payload), formatTime(reading.Timestamp))
	return err
}

func (r *Repository) GetLatest(ctx context.Context, ownerID string) (models.Reading, error) {
	query := `SELECT id, owner_id, snapshot, recorded_at FROM latest_readings WHERE owner_id = ?`
	reading, err := r.scanReading(r.db.QueryRowContext(ctx, query, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reading{}, gateway.ErrNotFound
	}
	return reading, err
}

func (r *Repository) QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error) {
	query := `SELECT id, owner_id, snapshot, recorded_at FROM readings WHERE owner_id = ?`
	return r.queryReadings(ctx, query, ownerID)
}

func (r *Repository) ListLatest(ctx context.Context) ([]models.Reading, error) {
	query := `SELECT id, owner_id, snapshot, recorded_at FROM latest_readings`
	return r.queryReadings(ctx, query)
}

func (r *Repository) queryReadings(ctx context.Context, query string, args ...interface{}) ([]models.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		reading, err := r.scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanReading(row rowScanner) (models.Reading, error) {
	var reading models.Reading
	var payload string
	var recordedAt sql.NullString
	if err := row.Scan(&reading.ID, &reading.OwnerID, &payload, &recordedAt); err != nil {
		return models.Reading{}, err
	}
	if err := json.Unmarshal([]byte(payload), &reading.Snapshot); err != nil {
		return models.Reading{}, fmt.Errorf("decode snapshot %s: %w", reading.ID, err)
	}
	reading.Timestamp = r.parseTime(recordedAt, reading.ID)
	return reading, nil
}

// parseTime returns nil for missing or unparsable values so the reading
// sorts as the oldest.
func (r *Repository) parseTime(value sql.NullString, id string) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(timeFormat, value.String)
	if err != nil {
		r.logger.Warn("could not parse timestamp from DB", zap.String("id", id), zap.String("value", value.String), zap.Error(err))
		return nil
	}
	return &t
}

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func (r *Repository) Close() {
	r.db.Close()
}
