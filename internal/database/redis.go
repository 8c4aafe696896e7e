package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore keeps the latest reading under <prefix>latest:<owner>, the log
// as a list under <prefix>readings:<owner> and the set of owners under
// <prefix>owners. Timestamps come from the redis server clock.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) latestKey(ownerID string) string {
	return s.prefix + "latest:" + ownerID
}

func (s *RedisStore) logKey(ownerID string) string {
	return s.prefix + "readings:" + ownerID
}

func (s *RedisStore) ownersKey() string {
	return s.prefix + "owners"
}

func (s *RedisStore) AppendReading(ctx context.Context, ownerID string, snap models.SensorSnapshot) (models.Reading, error) {
	ts, err := s.client.Time(ctx).Result()
	if err != nil {
		return models.Reading{}, err
	}
	ts = ts.UTC()
	reading := models.Reading{ID: uuid.NewString(), OwnerID: ownerID, Snapshot: snap.Clone(), Timestamp: &ts}
	payload, err := json.Marshal(reading)
	if err != nil {
		return models.Reading{}, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.logKey(ownerID), payload)
		pipe.SAdd(ctx, s.ownersKey(), ownerID)
		return nil
	})
	if err != nil {
		return models.Reading{}, err
	}
	return reading, nil
}

func (s *RedisStore) UpsertLatest(ctx context.Context, reading models.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.latestKey(reading.OwnerID), payload, 0)
		pipe.SAdd(ctx, s.ownersKey(), reading.OwnerID)
		return nil
	})
	return err
}

func (s *RedisStore) GetLatest(ctx context.Context, ownerID string) (models.Reading, error) {
	raw, err := s.client.Get(ctx, s.latestKey(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Reading{}, gateway.ErrNotFound
	}
	if err != nil {
		return models.Reading{}, err
	}
	return decodeReading(raw)
}

func (s *RedisStore) QueryReadings(ctx context.Context, ownerID string) ([]models.Reading, error) {
	raws, err := s.client.LRange(ctx, s.logKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	readings := make([]models.Reading, 0, len(raws))
	for _, raw := range raws {
		r, err := decodeReading(raw)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (s *RedisStore) ListLatest(ctx context.Context) ([]models.Reading, error) {
	owners, err := s.client.SMembers(ctx, s.ownersKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, nil
	}
	keys := make([]string, len(owners))
	for i, owner := range owners {
		keys[i] = s.latestKey(owner)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	readings := make([]models.Reading, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		r, err := decodeReading(raw)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func decodeReading(raw string) (models.Reading, error) {
	var r models.Reading
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return models.Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}
