package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"zonewatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:zonewatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
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
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
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

func (s *sqliteStore) SaveTransition(ctx context.Context, tr model.Transition) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (ts, beacon_id, from_zone, to_zone, rssi, reason, zone_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveObservations(ctx context.Context, obs []model.Observation) error {
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
		VALUES (?, ?, ?, ?, ?)`)
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
