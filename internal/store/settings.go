package store

import (
	"context"
	"sync"
	"time"
)

// SettingsStore persists the activation flag mirror.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, isActive bool) (Settings, error)
}

// MemSettings is the process-lifetime settings singleton (id 1).
type MemSettings struct {
	mu     sync.Mutex
	rec    Settings
	closed bool
	now    func() time.Time
}

func NewMemSettings() *MemSettings {
	return &MemSettings{
		rec: Settings{ID: 1, IsActive: false, LastUpdated: time.Now()},
		now: time.Now,
	}
}

func (s *MemSettings) Get(ctx context.Context) (Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Settings{}, ErrUnavailable
	}
	return s.rec, nil
}

// Update sets isActive and always refreshes LastUpdated, even when the value
// did not change.
func (s *MemSettings) Update(ctx context.Context, isActive bool) (Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Settings{}, ErrUnavailable
	}
	s.rec.IsActive = isActive
	s.rec.LastUpdated = s.now()
	return s.rec, nil
}

func (s *MemSettings) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
