package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"zonewatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/zonewatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transitions (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			beacon_id TEXT NOT NULL,
			from_zone TEXT NOT NULL,
			to_zone TEXT NOT NULL,
			rssi INTEGER NOT NULL,
			reason TEXT,
			zone_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_ts ON transitions(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_beacon ON transitions(beacon_id)`,
		`CREATE TABLE IF NOT EXISTS observations (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			beacon_id TEXT NOT NULL,
			rssi INTEGER NOT NULL,
			gateway_id TEXT,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observations_beacon_ts ON observations(beacon_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveTransition(ctx context.Context, tr model.Transition) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (ts, beacon_id, from_zone, to_zone, rssi, reason, zone_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tr.Timestamp.UTC(),
		tr.BeaconID,
		string(tr.From),
		string(tr.To),
		tr.RSSI,
		string(tr.Reason),
		tr.ZoneID,
	)
	return err
}

func (s *postgresStore) SaveObservations(ctx context.Context, obs []model.Observation) error {
	if s.db == nil || len(obs) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO observations (ts, beacon_id, rssi, gateway_id, source)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, o := range obs {
		ts := o.ObservedAt
		if ts.IsZero() {
			ts = nowUTC()
		}
		if _, err := stmt.ExecContext(ctx,
			ts.UTC(),
			o.BeaconID,
			o.RSSI,
			o.GatewayID,
			o.Source,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
