package api

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/go-chi/chi/v5"
)

const patientHistoryLimit = 10

type patientSummary struct {
	OwnerID string                 `json:"ownerId"`
	Latest  models.Reading         `json:"latest"`
	Profile *models.PatientProfile `json:"profile,omitempty"`
}

type patientDetail struct {
	OwnerID string                `json:"ownerId"`
	Latest  models.Reading        `json:"latest"`
	Profile models.PatientProfile `json:"profile"`
	History []models.Reading      `json:"history"`
}

type sensorValue struct {
	OwnerID   string     `json:"ownerId"`
	Value     string     `json:"value"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type ackRequest struct {
	By string `json:"by" validate:"required,max=100"`
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	latest, err := s.deps.Readings.ListLatest(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	profiles, err := s.deps.Profiles.ListProfiles(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	byOwner := make(map[string]models.PatientProfile, len(profiles))
	for _, p := range profiles {
		byOwner[p.OwnerID] = p
	}

	// Owners without a profile are listed too, with the profile omitted.
	out := make([]patientSummary, 0, len(latest))
	for _, reading := range latest {
		summary := patientSummary{OwnerID: reading.OwnerID, Latest: reading}
		if p, ok := byOwner[reading.OwnerID]; ok {
			summary.Profile = &p
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	writeJSON(w, http.StatusOK, out)
}

// getPatient requires both a saved reading and a profile.
func (s *Server) getPatient(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	latest, found, err := s.deps.Readings.LoadLatest(r.Context(), ownerID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, gateway.ErrNotFound)
		return
	}
	profile, err := s.deps.Profiles.GetProfile(r.Context(), ownerID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	history, err := s.deps.Readings.LoadHistory(r.Context(), ownerID, patientHistoryLimit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, patientDetail{OwnerID: ownerID, Latest: latest, Profile: profile, History: history})
}

func (s *Server) getSensorField(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")
	if _, _, ok := models.NewPlaceholderSnapshot().Field(field); !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown sensor field %q", field))
		return
	}
	latest, err := s.deps.Readings.ListLatest(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make([]sensorValue, 0, len(latest))
	for _, reading := range latest {
		value, set, _ := reading.Snapshot.Field(field)
		if !set {
			continue
		}
		out = append(out, sensorValue{OwnerID: reading.OwnerID, Value: value, Timestamp: reading.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alert, err := s.deps.Alerts.Acknowledge(r.Context(), chi.URLParam(r, "alertID"), req.By)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
