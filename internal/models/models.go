package models

import (
	"strconv"
	"time"
)

// Placeholder is rendered for vitals that have not been populated yet.
const Placeholder = "--"

type MentalState string

const (
	MentalCalm    MentalState = "Calm"
	MentalAlert   MentalState = "Alert"
	MentalRelaxed MentalState = "Relaxed"
	MentalFocused MentalState = "Focused"
)

// MentalStates is the fixed enumeration the simulator draws from.
var MentalStates = []MentalState{MentalCalm, MentalAlert, MentalRelaxed, MentalFocused}

type ConnectionStatus string

const (
	Disconnected ConnectionStatus = "Disconnected"
	Connected    ConnectionStatus = "Connected"
)

// SensorSnapshot is the current vital-signs reading for one subject.
// Nil fields have not been populated yet.
type SensorSnapshot struct {
	HeartRate        *int             `json:"heartRate"`
	OxygenLevel      *int             `json:"oxygenLevel"`
	GlucoseLevel     *int             `json:"glucoseLevel"`
	MentalState      MentalState      `json:"mentalState,omitempty"`
	BatteryLevel     string           `json:"batteryLevel,omitempty"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	LastSyncTime     *time.Time       `json:"lastSyncTime"`
}

// NewPlaceholderSnapshot returns the unset snapshot shown before monitoring starts.
func NewPlaceholderSnapshot() SensorSnapshot {
	return SensorSnapshot{ConnectionStatus: Disconnected}
}

// Clone returns a deep copy so callers can hand the snapshot to other goroutines.
func (s SensorSnapshot) Clone() SensorSnapshot {
	out := s
	out.HeartRate = cloneInt(s.HeartRate)
	out.OxygenLevel = cloneInt(s.OxygenLevel)
	out.GlucoseLevel = cloneInt(s.GlucoseLevel)
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return out
}

// Field renders a single named field, using the placeholder when unset.
// ok is false for unknown field names.
func (s SensorSnapshot) Field(name string) (value string, set bool, ok bool) {
	switch name {
	case "heartRate":
		value, set = formatInt(s.HeartRate)
	case "oxygenLevel":
		value, set = formatInt(s.OxygenLevel)
	case "glucoseLevel":
		value, set = formatInt(s.GlucoseLevel)
	case "mentalState":
		value, set = formatString(string(s.MentalState))
	case "batteryLevel":
		value, set = formatString(s.BatteryLevel)
	case "connectionStatus":
		value, set = formatString(string(s.ConnectionStatus))
	case "lastSyncTime":
		if s.LastSyncTime == nil {
			value = Placeholder
		} else {
			value, set = s.LastSyncTime.Format("15:04:05"), true
		}
	default:
		return "", false, false
	}
	return value, set, true
}

// HistorySample is one point of the heart-rate trend.
type HistorySample struct {
	Value     int    `json:"value"`
	Timestamp string `json:"timestamp"`
}

func NewHistorySample(value int, at time.Time) HistorySample {
	return HistorySample{Value: value, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

// Time parses the sample timestamp; unparsable values report the zero time.
func (h HistorySample) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, h.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Reading is a durable copy of a snapshot as kept by a store.
type Reading struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	Snapshot  SensorSnapshot `json:"snapshot"`
	Timestamp *time.Time     `json:"timestamp"`
}

// SortTime is the reading timestamp, or the zero time when it is unknown.
func (r Reading) SortTime() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	return *r.Timestamp
}

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
)

type NotificationKind string

const (
	NotifyConnecting       NotificationKind = "connecting"
	NotifyConnected        NotificationKind = "connected"
	NotifyPaused           NotificationKind = "paused"
	NotifySaveFailed       NotificationKind = "save_failed"
	NotifyLoadFailed       NotificationKind = "load_failed"
	NotifyAlertSent        NotificationKind = "alert_sent"
	NotifyAlertAcknowledge NotificationKind = "alert_acknowledged"
)

// Notification is a transient, non-blocking message for the display layer.
type Notification struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"ownerId,omitempty"`
	Kind        NotificationKind  `json:"kind"`
	Level       NotificationLevel `json:"level"`
	Message     string            `json:"message"`
	Dismissible bool              `json:"dismissible"`
	Time        time.Time         `json:"time"`
}

// View is what the display layer renders for the signed-in owner.
type View struct {
	OwnerID      string          `json:"ownerId,omitempty"`
	Snapshot     SensorSnapshot  `json:"snapshot"`
	History      []HistorySample `json:"history"`
	IsMonitoring bool            `json:"isMonitoring"`
	IsConnected  bool            `json:"isConnected"`
	Pulse        int             `json:"pulse"`
}

type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
)

// EmergencyAlert is raised by a patient and fanned out to caregivers.
type EmergencyAlert struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	Message        string         `json:"message"`
	Location       string         `json:"location,omitempty"`
	Snapshot       SensorSnapshot `json:"snapshot"`
	Status         AlertStatus    `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	AcknowledgedBy string         `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
}

// AlertAck is the caregiver acknowledgement consumed from the ack topic.
type AlertAck struct {
	AlertID string `json:"alertId"`
	By      string `json:"by"`
}

type ContactInfo struct {
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty" validate:"omitempty,max=200"`
}

type MedicalInfo struct {
	BloodType           string     `json:"bloodType,omitempty" validate:"omitempty,max=5"`
	Height              string     `json:"height,omitempty"`
	Weight              string     `json:"weight,omitempty"`
	LastCheckup         *time.Time `json:"lastCheckup,omitempty"`
	Conditions          []string   `json:"conditions"`
	Medications         []string   `json:"medications"`
	DietaryRestrictions []string   `json:"dietaryRestrictions"`
}

type EmergencyContact struct {
	Name         string `json:"name,omitempty" validate:"omitempty,max=100"`
	Relationship string `json:"relationship,omitempty" validate:"omitempty,max=50"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

// PatientProfile is the single profile schema kept per owner.
type PatientProfile struct {
	OwnerID          string           `json:"ownerId"`
	Name             string           `json:"name" validate:"required,max=100"`
	Age              int              `json:"age,omitempty" validate:"gte=0,lte=150"`
	Contact          ContactInfo      `json:"contact"`
	Medical          MedicalInfo      `json:"medical"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// IntPtr is a small helper for populating nullable vitals.
func IntPtr(v int) *int {
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatInt(p *int) (string, bool) {
	if p == nil {
		return Placeholder, false
	}
	return strconv.Itoa(*p), true
}

func formatString(s string) (string, bool) {
	if s == "" {
		return Placeholder, false
	}
	return s, true
}
