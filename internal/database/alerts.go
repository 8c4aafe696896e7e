package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"caregiver-companion/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

func (r *Repository) SaveAlert(ctx context.Context, a models.EmergencyAlert) error {
	snap, err := json.Marshal(a.Snapshot)
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO emergency_alerts (id, owner_id, message, location, snapshot, status, created_at, acknowledged_by, acknowledged_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		a.ID, a.OwnerID, a.Message, a.Location, string(snap), string(a.Status),
		a.CreatedAt.UTC().Format(timeFormat), nullString(a.AcknowledgedBy), formatTime(a.AcknowledgedAt))
	return err
}

func (r *Repository) AcknowledgeAlert(ctx context.Context, id, by string, at time.Time) (models.EmergencyAlert, error) {
	query := `UPDATE emergency_alerts SET status = ?, acknowledged_by = ?, acknowledged_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(models.AlertAcknowledged), by, at.UTC().Format(timeFormat), id)
	if err != nil {
		return models.EmergencyAlert{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.EmergencyAlert{}, ErrAlertNotFound
	}
	return r.GetAlert(ctx, id)
}

func (r *Repository) GetAlert(ctx context.Context, id string) (models.EmergencyAlert, error) {
	query := `SELECT id, owner_id, message, location, snapshot, status, created_at, acknowledged_by, acknowledged_at FROM emergency_alerts WHERE id = ?`
	a, err := r.scanAlert(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmergencyAlert{}, ErrAlertNotFound
	}
	return a, err
}

// ListAlerts returns the owner's alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, ownerID string) ([]models.EmergencyAlert, error) {
	query := `SELECT id, owner_id, message, location, snapshot, status, created_at, acknowledged_by, acknowledged_at FROM emergency_alerts WHERE owner_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.EmergencyAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *Repository) scanAlert(row rowScanner) (models.EmergencyAlert, error) {
	var a models.EmergencyAlert
	var location, ackBy, ackAt sql.NullString
	var snap, status, createdAt string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Message, &location, &snap, &status, &createdAt, &ackBy, &ackAt); err != nil {
		return models.EmergencyAlert{}, err
	}
	if err := json.Unmarshal([]byte(snap), &a.Snapshot); err != nil {
		return models.EmergencyAlert{}, err
	}
	a.Location = location.String
	a.Status = models.AlertStatus(status)
	a.AcknowledgedBy = ackBy.String
	if created := r.parseTime(sql.NullString{String: createdAt, Valid: true}, a.ID); created != nil {
		a.CreatedAt = *created
	}
	a.AcknowledgedAt = r.parseTime(ackAt, a.ID)
	return a, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
