package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"audiolink/internal/eventbus"
)

const (
	// DefaultCapacity bounds the activity log.
	DefaultCapacity = 100
	// DefaultListLimit is used when List is called with a negative limit.
	DefaultListLimit = 50
)

// LogStore is the activity log seen by handlers and the HTTP facade.
type LogStore interface {
	Append(ctx context.Context, e Entry) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Clear(ctx context.Context) error
}

// MemLog keeps the newest Capacity records, newest first.
//
// Ids come from a counter that is never reset, so evicted or cleared ids are
// never handed out again.
type MemLog struct {
	mu       sync.Mutex
	records  []Record // newest first
	capacity int
	lastID   uint64
	closed   bool

	bus eventbus.Publisher
	now func() time.Time
}

type LogOption func(*MemLog)

// WithCapacity overrides DefaultCapacity (values <= 0 are ignored).
func WithCapacity(n int) LogOption {
	return func(l *MemLog) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithPublisher makes the log publish append/clear events.
func WithPublisher(p eventbus.Publisher) LogOption {
	return func(l *MemLog) {
		if p != nil {
			l.bus = p
		}
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) LogOption {
	return func(l *MemLog) {
		if now != nil {
			l.now = now
		}
	}
}

func NewMemLog(opts ...LogOption) *MemLog {
	l := &MemLog{
		capacity: DefaultCapacity,
		bus:      eventbus.Nop,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.records = make([]Record, 0, l.capacity+1)
	return l
}

func (l *MemLog) Append(ctx context.Context, e Entry) (Record, error) {
	_ = ctx
	if !e.Type.Valid() || strings.TrimSpace(e.Message) == "" {
		return Record{}, ErrInvalidEntry
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Record{}, ErrUnavailable
	}
	l.lastID++
	r := Record{
		ID:          l.lastID,
		Timestamp:   l.now(),
		Type:        e.Type,
		Message:     e.Message,
		ChannelID:   e.ChannelID,
		UserID:      e.UserID,
		FileName:    e.FileName,
		DownloadURL: e.DownloadURL,
	}
	if e.FileSize != nil {
		r.FileSize = Size(*e.FileSize)
	}

	// insert at front, evict from the tail
	l.records = append(l.records, Record{})
	copy(l.records[1:], l.records)
	l.records[0] = r
	if len(l.records) > l.capacity {
		clear(l.records[l.capacity:])
		l.records = l.records[:l.capacity]
	}
	l.mu.Unlock()

	l.bus.Publish(eventbus.Event{Type: EventLogAppended, Data: r})
	return r, nil
}

// List returns up to limit records, newest first. A negative limit means
// DefaultListLimit. The returned slice is a copy.
func (l *MemLog) List(ctx context.Context, limit int) ([]Record, error) {
	_ = ctx
	if limit < 0 {
		limit = DefaultListLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrUnavailable
	}
	n := min(limit, len(l.records))
	out := make([]Record, n)
	copy(out, l.records[:n])
	return out, nil
}

// Clear empties the log. The id counter keeps going.
func (l *MemLog) Clear(ctx context.Context) error {
	_ = ctx
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrUnavailable
	}
	clear(l.records)
	l.records = l.records[:0]
	l.mu.Unlock()

	l.bus.Publish(eventbus.Event{Type: EventLogCleared})
	return nil
}

// Len is the number of records currently held.
func (l *MemLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Close makes every later call fail with ErrUnavailable.
func (l *MemLog) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
