// Package gateway is the persistence contract the monitor consumes: save the
// current snapshot, reload the latest one and a bounded page of history.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"caregiver-companion/internal/models"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultHistoryLimit matches the in-memory trend length.
const DefaultHistoryLimit = 20

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrNotFound is returned by stores for a missing latest reading. The
	// gateway turns it into an absence rather than an error.
	ErrNotFound = errors.New("reading not found")
)

// Store is the document store behind the gateway.
type Store interface {
	// AppendReading adds to the owner's history log with a store-assigned
	// timestamp and returns the new entry.
	AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error)
	// UpsertLatest overwrites the owner's latest reading.
	UpsertLatest(ctx context.Context, reading models.Reading) error
	GetLatest(ctx context.Context, ownerID string) (models.Reading, error)
	// QueryReadings returns the owner's log in no particular order.
	QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error)
	// ListLatest returns the latest reading of every owner.
	ListLatest(ctx context.Context) ([]models.Reading, error)
}

type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

type Gateway struct {
	store   Store
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func New(store Store, settings BreakerSettings, logger *zap.Logger) *Gateway {
	g := &Gateway{store: store, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "persistence-gateway",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})
	return g
}

// Save appends the snapshot to the owner's log and then overwrites the
// owner's latest copy. It returns the id of the appended log entry.
func (g *Gateway) Save(ctx context.Context, snap models.SensorSnapshot, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrNotAuthenticated
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		reading, err := g.store.AppendReading(ctx, ownerID, snap)
		if err != nil {
			return nil, fmt.Errorf("append reading: %w", err)
		}
		if err := g.store.UpsertLatest(ctx, reading); err != nil {
			return nil, fmt.Errorf("upsert latest: %w", err)
		}
		return reading.ID, nil
	})
	if err != nil {
		return "", remote(err)
	}
	id := out.(string)
	g.logger.Debug("sensor data saved", zap.String("owner_id", ownerID), zap.String("entry_id", id))
	return id, nil
}

// LoadLatest returns the owner's most recent saved reading. found is false
// when nothing has been saved yet.
func (g *Gateway) LoadLatest(ctx context.Context, ownerID string) (reading models.Reading, found bool, err error) {
	if ownerID == "" {
		return models.Reading{}, false, ErrNotAuthenticated
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.store.GetLatest(ctx, ownerID)
	})
	if errors.Is(err, ErrNotFound) {
		return models.Reading{}, false, nil
	}
	if err != nil {
		return models.Reading{}, false, remote(err)
	}
	return out.(models.Reading), true, nil
}

// LoadHistory returns up to max readings, newest first. Readings without a
// timestamp sort as the oldest.
func (g *Gateway) LoadHistory(ctx context.Context, ownerID string, max int) ([]models.Reading, error) {
	if ownerID == "" {
		return nil, ErrNotAuthenticated
	}
	if max <= 0 {
		max = DefaultHistoryLimit
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.store.QueryReadings(ctx, ownerID)
	})
	if err != nil {
		return nil, remote(err)
	}
	return NewestFirst(out.([]models.Reading), max), nil
}

// ListLatest returns every owner's latest reading.
func (g *Gateway) ListLatest(ctx context.Context) ([]models.Reading, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.store.ListLatest(ctx)
	})
	if err != nil {
		return nil, remote(err)
	}
	return out.([]models.Reading), nil
}

// NewestFirst sorts readings by descending timestamp and truncates to max.
func NewestFirst(readings []models.Reading, max int) []models.Reading {
	sorted := make([]models.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortTime().After(sorted[j].SortTime())
	})
	if max > 0 && len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

// Samples projects readings onto heart-rate history samples, skipping
// readings without a heart rate.
func Samples(readings []models.Reading) []models.HistorySample {
	out := make([]models.HistorySample, 0, len(readings))
	for _, r := range readings {
		if r.Snapshot.HeartRate == nil {
			continue
		}
		s := models.HistorySample{Value: *r.Snapshot.HeartRate}
		if r.Timestamp != nil {
			s.Timestamp = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		out = append(out, s)
	}
	return out
}

func remote(err error) error {
	if errors.Is(err, ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
}
