// Package activation owns the process-wide "is the bot allowed to act" flag.
package activation

import (
	"context"
	"fmt"
	"sync/atomic"

	"audiolink/internal/eventbus"
	"audiolink/internal/store"
	logx "audiolink/pkg/logx"
)

// EventChanged is published after every Set.
const EventChanged = "activation.changed"

// Change is the payload of EventChanged.
type Change struct {
	IsActive bool   `json:"isActive"`
	Source   string `json:"source"`
}

// Controller holds the authoritative in-memory flag. IsActive is a lock-free
// read for the message hot path; Set mirrors changes into the settings store.
type Controller struct {
	active   atomic.Bool
	settings store.SettingsStore
	bus      eventbus.Publisher
	log      logx.Logger
}

// New seeds the flag from the settings record.
func New(ctx context.Context, settings store.SettingsStore, bus eventbus.Publisher, log logx.Logger) (*Controller, error) {
	if bus == nil {
		bus = eventbus.Nop
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{settings: settings, bus: bus, log: log}
	if settings != nil {
		rec, err := settings.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		c.active.Store(rec.IsActive)
	}
	return c, nil
}

// Activate sets the flag. Persisting is the caller's job (see Set).
func (c *Controller) Activate() { c.active.Store(true) }

// Deactivate clears the flag. Persisting is the caller's job (see Set).
func (c *Controller) Deactivate() { c.active.Store(false) }

func (c *Controller) IsActive() bool { return c.active.Load() }

// Set flips the flag and then writes the settings record. If the write fails
// the flag change stands; the divergence is logged and the error returned.
func (c *Controller) Set(ctx context.Context, active bool, source string) (store.Settings, error) {
	if active {
		c.Activate()
	} else {
		c.Deactivate()
	}
	c.bus.Publish(eventbus.Event{Type: EventChanged, Data: Change{IsActive: active, Source: source}})

	if c.settings == nil {
		return store.Settings{ID: 1, IsActive: active}, nil
	}
	rec, err := c.settings.Update(ctx, active)
	if err != nil {
		c.log.Warn("settings out of sync with activation flag",
			logx.Bool("flag", active),
			logx.String("source", source),
			logx.Err(err),
		)
		return store.Settings{}, fmt.Errorf("persist settings: %w", err)
	}
	c.log.Info("activation changed", logx.Bool("active", active), logx.String("source", source))
	return rec, nil
}
