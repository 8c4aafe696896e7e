// Package simulator produces a plausible, slowly varying vital-signs
// snapshot without sensor hardware.
package simulator

import (
	"time"

	"caregiver-companion/internal/models"
)

const (
	MinHeartRate = 55
	MaxHeartRate = 100

	OxygenChance  = 0.3
	GlucoseChance = 0.2
	MentalChance  = 0.1
	HistoryChance = 0.2

	DefaultBattery = "Good"
)

// ClampHeartRate bounds v to the closed interval [MinHeartRate, MaxHeartRate].
func ClampHeartRate(v int) int {
	if v < MinHeartRate {
		return MinHeartRate
	}
	if v > MaxHeartRate {
		return MaxHeartRate
	}
	return v
}

type Simulator struct {
	source   VitalsSource
	snapshot models.SensorSnapshot
}

func New(source VitalsSource) *Simulator {
	return &Simulator{source: source, snapshot: models.NewPlaceholderSnapshot()}
}

// Snapshot returns a copy of the current reading.
func (s *Simulator) Snapshot() models.SensorSnapshot {
	return s.snapshot.Clone()
}

// Restore replaces the current reading, e.g. with the last persisted one.
func (s *Simulator) Restore(snap models.SensorSnapshot) {
	s.snapshot = snap.Clone()
}

// Disconnect marks the reading as no longer live without touching the values.
func (s *Simulator) Disconnect() {
	s.snapshot.ConnectionStatus = models.Disconnected
}

// Connect draws a fresh initial reading.
func (s *Simulator) Connect(now time.Time) models.SensorSnapshot {
	s.snapshot = models.SensorSnapshot{
		HeartRate:        models.IntPtr(s.source.HeartRate()),
		OxygenLevel:      models.IntPtr(s.source.Oxygen()),
		GlucoseLevel:     models.IntPtr(s.source.Glucose()),
		MentalState:      s.source.MentalState(),
		BatteryLevel:     DefaultBattery,
		ConnectionStatus: models.Connected,
		LastSyncTime:     &now,
	}
	return s.Snapshot()
}

// Tick mutates the reading once. It returns a history sample when this tick
// was selected for the trend record.
func (s *Simulator) Tick(now time.Time) (models.SensorSnapshot, *models.HistorySample) {
	var hr int
	if s.snapshot.HeartRate != nil {
		hr = *s.snapshot.HeartRate
	} else {
		hr = s.source.HeartRate()
	}
	hr = ClampHeartRate(hr + s.source.Fluctuation())
	s.snapshot.HeartRate = models.IntPtr(hr)

	if s.source.Roll() < OxygenChance || s.snapshot.OxygenLevel == nil {
		s.snapshot.OxygenLevel = models.IntPtr(s.source.Oxygen())
	}
	if s.source.Roll() < GlucoseChance || s.snapshot.GlucoseLevel == nil {
		s.snapshot.GlucoseLevel = models.IntPtr(s.source.Glucose())
	}
	if s.source.Roll() < MentalChance || s.snapshot.MentalState == "" {
		s.snapshot.MentalState = s.source.MentalState()
	}
	s.snapshot.LastSyncTime = &now

	var sample *models.HistorySample
	if s.source.Roll() < HistoryChance {
		h := models.NewHistorySample(hr, now)
		sample = &h
	}
	return s.Snapshot(), sample
}
