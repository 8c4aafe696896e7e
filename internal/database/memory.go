package database

import (
	"context"
	"sync"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps readings in process. It backs the "memory" store backend
// and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	log    map[string][]models.Reading
	latest map[string]models.Reading
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		log:    make(map[string][]models.Reading),
		latest: make(map[string]models.Reading),
	}
}

func (m *MemoryStore) AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UTC()
	r := models.Reading{ID: uuid.NewString(), OwnerID: ownerID, Snapshot: snap.Clone(), Timestamp: &ts}
	m.log[ownerID] = append(m.log[ownerID], r)
	return r, nil
}

func (m *MemoryStore) UpsertLatest(ctx context.Context, reading models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[reading.OwnerID] = reading
	return nil
}

func (m *MemoryStore) GetLatest(ctx context.Context, ownerID string) (models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[ownerID]
	if !ok {
		return models.Reading{}, gateway.ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Reading, len(m.log[ownerID]))
	copy(out, m.log[ownerID])
	return out, nil
}

func (m *MemoryStore) ListLatest(ctx context.Context) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Reading, 0, len(m.latest))
	for _, r := range m.latest {
		out = append(out, r)
	}
	return out, nil
}
