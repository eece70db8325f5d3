// Package store persists local events, statuses and session credentials.
package store

import (
	"context"
	"fmt"

	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stagecal/stagecal/internal/session"
)

// EventStore is the local event collection. ListEvents returns events in
// insertion order. Lookups of unknown ids return *errors.ErrNotFound.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]*models.Event, error)
	UpdateEvent(ctx context.Context, ev *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// StatusStore is the status collection, also in insertion order.
type StatusStore interface {
	CreateStatus(ctx context.Context, st *models.Status) error
	GetStatus(ctx context.Context, id string) (*models.Status, error)
	ListStatuses(ctx context.Context) ([]*models.Status, error)
	UpdateStatus(ctx context.Context, st *models.Status) error
	DeleteStatus(ctx context.Context, id string) error
}

// Store is everything the service persists.
type Store interface {
	EventStore
	StatusStore
	session.Store
	session.Purger
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)

// Open builds the store selected by cfg.Driver.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite, "":
		return OpenSQLite(cfg.Path)
	case config.DriverPostgres:
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
