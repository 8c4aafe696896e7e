package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"caregiver-companion/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// UpsertProfile stores the owner's profile, keeping the original creation time.
func (r *Repository) UpsertProfile(ctx context.Context, p models.PatientProfile) (models.PatientProfile, error) {
	now := r.now().UTC()
	p.UpdatedAt = now
	if existing, err := r.GetProfile(ctx, p.OwnerID); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else if errors.Is(err, ErrProfileNotFound) {
		p.CreatedAt = now
	} else {
		return models.PatientProfile{}, err
	}

	contact, err := json.Marshal(p.Contact)
	if err != nil {
		return models.PatientProfile{}, err
	}
	medical, err := json.Marshal(p.Medical)
	if err != nil {
		return models.PatientProfile{}, err
	}
	emergency, err := json.Marshal(p.EmergencyContact)
	if err != nil {
		return models.PatientProfile{}, err
	}

	query := `INSERT OR REPLACE INTO patients (owner_id, name, age, contact, medical, emergency_contact, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		p.OwnerID, p.Name, p.Age, string(contact), string(medical), string(emergency),
		p.CreatedAt.Format(timeFormat), p.UpdatedAt.Format(timeFormat))
	if err != nil {
		return models.PatientProfile{}, err
	}
	return p, nil
}

func (r *Repository) GetProfile(ctx context.Context, ownerID string) (models.PatientProfile, error) {
	query := `SELECT owner_id, name, age, contact, medical, emergency_contact, created_at, updated_at FROM patients WHERE owner_id = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PatientProfile{}, ErrProfileNotFound
	}
	return p, err
}

func (r *Repository) ListProfiles(ctx context.Context) ([]models.PatientProfile, error) {
	query := `SELECT owner_id, name, age, contact, medical, emergency_contact, created_at, updated_at FROM patients ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.PatientProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (r *Repository) DeleteProfile(ctx context.Context, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE owner_id = ?`, ownerID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func scanProfile(row rowScanner) (models.PatientProfile, error) {
	var p models.PatientProfile
	var age sql.NullInt64
	var contact, medical, emergency, createdAt, updatedAt string
	if err := row.Scan(&p.OwnerID, &p.Name, &age, &contact, &medical, &emergency, &createdAt, &updatedAt); err != nil {
		return models.PatientProfile{}, err
	}
	p.Age = int(age.Int64)
	if err := json.Unmarshal([]byte(contact), &p.Contact); err != nil {
		return models.PatientProfile{}, err
	}
	if err := json.Unmarshal([]byte(medical), &p.Medical); err != nil {
		return models.PatientProfile{}, err
	}
	if err := json.Unmarshal([]byte(emergency), &p.EmergencyContact); err != nil {
		return models.PatientProfile{}, err
	}
	p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	p.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return p, nil
}
