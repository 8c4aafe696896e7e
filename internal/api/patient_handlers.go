package api

import (
	"errors"
	"net/http"

	"caregiver-companion/internal/emergency"
	"caregiver-companion/internal/models"
)

type alertFailure struct {
	Error string                `json:"error"`
	Alert models.EmergencyAlert `json:"alert"`
}

func (s *Server) sendEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergency.AlertRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	alert, err := s.deps.Alerts.Send(r.Context(), ownerFrom(r.Context()), req)
	if errors.Is(err, emergency.ErrDeliveryFailed) {
		writeJSON(w, http.StatusBadGateway, alertFailure{Error: err.Error(), Alert: alert})
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

func (s *Server) listEmergencies(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Alerts.List(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if alerts == nil {
		alerts = []models.EmergencyAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfile(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.PatientProfile
	if err := s.decodeAndValidate(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile.OwnerID = ownerFrom(r.Context())
	saved, err := s.deps.Profiles.UpsertProfile(r.Context(), profile)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Profiles.DeleteProfile(r.Context(), ownerFrom(r.Context())); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
