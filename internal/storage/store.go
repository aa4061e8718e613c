package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"zonewatch/internal/config"
	"zonewatch/internal/model"
)

// Store persists zone transitions and raw observations for offline review.
// The core never depends on it for correctness: all alarm state is
// in-memory and rebuilt through the startup-silence rule on restart.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveTransition(ctx context.Context, tr model.Transition) error
	SaveObservations(ctx context.Context, obs []model.Observation) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
