package store

import (
	"errors"
	"time"
)

var (
	// ErrInvalidEntry is returned by Append when type or message is missing.
	ErrInvalidEntry = errors.New("log entry requires type and message")
	// ErrUnavailable reports a store that cannot serve requests (closed).
	ErrUnavailable = errors.New("store unavailable")
)

// EntryType classifies a log record.
type EntryType string

const (
	// TypeAction is a bot action (activation, reply sent, startup).
	// The wire value matches the dashboard contract.
	TypeAction   EntryType = "BOT_ACTION"
	TypeDetected EntryType = "DETECTED"
	TypeError    EntryType = "ERROR"
)

func (t EntryType) Valid() bool {
	switch t {
	case TypeAction, TypeDetected, TypeError:
		return true
	}
	return false
}

// Entry is what callers hand to LogStore.Append.
type Entry struct {
	Type        EntryType
	Message     string
	ChannelID   string
	UserID      string
	FileName    string
	FileSize    *int64
	DownloadURL string
}

// Record is an immutable log record as stored and served.
type Record struct {
	ID          uint64    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        EntryType `json:"type"`
	Message     string    `json:"message"`
	ChannelID   string    `json:"channelId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	FileName    string    `json:"fileName,omitempty"`
	FileSize    *int64    `json:"fileSize,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
}

// Settings is the singleton settings record.
type Settings struct {
	ID          int       `json:"id"`
	IsActive    bool      `json:"isActive"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Size is a convenience for Entry.FileSize.
func Size(n int64) *int64 { return &n }

// Event types published on the bus.
const (
	EventLogAppended = "log.appended"
	EventLogCleared  = "log.cleared"
)
