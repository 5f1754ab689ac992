package database

import (
	"context"
	"strconv"
	"sync"
	"time"

	"eeg-backend/internal/models"
)

// MemoryDB keeps rows in process. Used for dry runs and tests.
type MemoryDB struct {
	mu         sync.RWMutex
	engagement []models.EngagementRecord
	raw        []models.RawRecord
	nextID     int64
}

// NewMemoryDB creates an empty in-memory store
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{}
}

// Persist appends both rows under one lock
func (m *MemoryDB) Persist(ctx context.Context, eng models.EngagementRecord, raw models.RawRecord) (models.PersistResult, error) {
	if err := ctx.Err(); err != nil {
		return models.PersistResult{}, persistErr("memory", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	engID := m.nextID
	m.nextID++
	rawID := m.nextID

	m.engagement = append(m.engagement, eng)
	m.raw = append(m.raw, raw)

	return models.PersistResult{
		EngagementID: strconv.FormatInt(engID, 10),
		RawID:        strconv.FormatInt(rawID, 10),
	}, nil
}

// EngagementBetween returns engagement rows with start <= timestamp <= end
func (m *MemoryDB) EngagementBetween(_ context.Context, start, end time.Time) ([]models.EngagementRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.EngagementRecord
	for _, r := range m.engagement {
		if inRange(r.Timestamp, start, end) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// RawBetween returns raw rows with start <= timestamp <= end
func (m *MemoryDB) RawBetween(_ context.Context, start, end time.Time) ([]models.RawRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.RawRecord
	for _, r := range m.raw {
		if inRange(r.Timestamp, start, end) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Len returns the number of persisted epochs
func (m *MemoryDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engagement)
}

func (m *MemoryDB) Close() error { return nil }

func inRange(ts, start, end time.Time) bool {
	if unbounded(start, end) {
		return true
	}
	return !ts.Before(start) && !ts.After(end)
}
