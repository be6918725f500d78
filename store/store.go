// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package store archives published snapshots and geocoded coordinates in DuckDB.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/rs/zerolog/log"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/spatial"
)

// ErrNoSnapshot is returned by LoadLatestSnapshot when nothing was archived yet.
var ErrNoSnapshot = errors.New("no archived snapshot")

// DefaultRetain is the number of snapshots kept by SaveSnapshot.
const DefaultRetain = 48

// Store is the DuckDB archive.
type Store struct {
	db     *sql.DB
	retain int
}

// New wraps an open database. Call CreateSchema before use.
func New(db *sql.DB) *Store {
	return &Store{db: db, retain: DefaultRetain}
}

// Open opens (or creates) the database at path and its schema. An empty path
// opens an in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	s := New(db)
	if err := s.CreateSchema(ctx); err != nil {
		return nil, errors.Join(err, db.Close())
	}

	return s, nil
}

// SetRetain changes how many snapshots are kept. Values below one keep one.
func (s *Store) SetRetain(n int) {
	s.retain = max(n, 1)
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSchema creates the tables.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			version UBIGINT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			cycle_id VARCHAR NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshot_tabs (
			version UBIGINT NOT NULL,
			tab_id VARCHAR NOT NULL,
			record VARCHAR,
			warnings VARCHAR NOT NULL,
			PRIMARY KEY (version, tab_id)
		);

		CREATE TABLE IF NOT EXISTS coordinates (
			address_key VARCHAR PRIMARY KEY,
			address VARCHAR NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			h3_res7 UBIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	return nil
}

// SaveSnapshot archives snap and prunes the oldest snapshots.
func (s *Store) SaveSnapshot(ctx context.Context, snap *dispatch.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots(version, created_at, cycle_id) VALUES (?, ?, ?)`,
		snap.Version(), snap.CreatedAt().UTC(), snap.CycleID(),
	); err != nil {
		return fmt.Errorf("inserting snapshot %d: %w", snap.Version(), err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_tabs(version, tab_id, record, warnings) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for tab, status := range snap.Status().Tabs {
		var record sql.NullString

		if r, ok := snap.Record(tab); ok {
			b, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encoding record %s: %w", tab, err)
			}

			record = sql.NullString{String: string(b), Valid: true}
		}

		warnings, err := json.Marshal(status.Warnings)
		if err != nil {
			return fmt.Errorf("encoding warnings of %s: %w", tab, err)
		}

		if _, err = stmt.ExecContext(ctx, snap.Version(), tab, record, string(warnings)); err != nil {
			return fmt.Errorf("inserting tab %s: %w", tab, err)
		}
	}

	if snap.Version() > uint64(s.retain) {
		oldest := snap.Version() - uint64(s.retain)

		if _, err = tx.ExecContext(ctx, `DELETE FROM snapshot_tabs WHERE version <= ?`, oldest); err != nil {
			return fmt.Errorf("pruning tabs: %w", err)
		}

		if _, err = tx.ExecContext(ctx, `DELETE FROM snapshots WHERE version <= ?`, oldest); err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
	}

	return tx.Commit()
}

// LoadLatestSnapshot rebuilds the most recent archived snapshot.
func (s *Store) LoadLatestSnapshot(ctx context.Context) (*dispatch.Snapshot, error) {
	var (
		version   uint64
		createdAt time.Time
		cycleID   string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT version, created_at, cycle_id FROM snapshots ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &createdAt, &cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}

	if err != nil {
		return nil, fmt.Errorf("loading latest snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tab_id, record, warnings FROM snapshot_tabs WHERE version = ? ORDER BY tab_id`, version)
	if err != nil {
		return nil, fmt.Errorf("loading tabs of snapshot %d: %w", version, err)
	}
	defer rows.Close()

	records := map[string]*calendar.LocationRecord{}
	warnings := map[string][]string{}

	for rows.Next() {
		var (
			tab, w string
			record sql.NullString
		)

		if err := rows.Scan(&tab, &record, &w); err != nil {
			return nil, err
		}

		if record.Valid {
			r := &calendar.LocationRecord{}
			if err := json.Unmarshal([]byte(record.String), r); err != nil {
				return nil, fmt.Errorf("decoding record %s: %w", tab, err)
			}

			records[tab] = r
		}

		var list []string
		if err := json.Unmarshal([]byte(w), &list); err != nil {
			return nil, fmt.Errorf("decoding warnings of %s: %w", tab, err)
		}

		warnings[tab] = list
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dispatch.NewSnapshot(version, createdAt, cycleID, records, warnings), nil
}

// Restore returns the snapshot to serve on start. When the latest snapshot can't
// be rebuilt, an empty snapshot carrying the latest archived version is returned so
// that later publishes don't reuse archived versions.
func (s *Store) Restore(ctx context.Context) (*dispatch.Snapshot, error) {
	snap, err := s.LoadLatestSnapshot(ctx)
	if err == nil || errors.Is(err, ErrNoSnapshot) {
		return snap, err
	}

	var version sql.NullInt64
	if qerr := s.db.QueryRowContext(ctx, `SELECT max(version) FROM snapshots`).Scan(&version); qerr != nil {
		return nil, errors.Join(err, fmt.Errorf("reading latest version: %w", qerr))
	}

	if !version.Valid {
		return nil, err
	}

	log.Warn().Err(err).Int64("version", version.Int64).Msg("archived snapshot unreadable, continuing its numbering")

	return dispatch.NewSnapshot(uint64(version.Int64), time.Time{}, "", nil, nil), nil
}

// LoadCoordinates returns every stored coordinate keyed by normalized address.
func (s *Store) LoadCoordinates(ctx context.Context) (map[string]spatial.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address_key, lat, lng FROM coordinates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := map[string]spatial.Point{}

	for rows.Next() {
		var (
			key string
			p   spatial.Point
		)

		if err := rows.Scan(&key, &p.Lat, &p.Lng); err != nil {
			return nil, err
		}

		ret[key] = p
	}

	return ret, rows.Err()
}

// SaveCoordinate stores the coordinate of an address along with its H3 cell.
func (s *Store) SaveCoordinate(ctx context.Context, key, address string, p spatial.Point) error {
	cell, err := p.Cell(spatial.DefaultCellResolution)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO coordinates(address_key, address, lat, lng, h3_res7)
		VALUES (?, ?, ?, ?, ?)`,
		key, address, p.Lat, p.Lng, cell,
	)
	if err != nil {
		return fmt.Errorf("saving coordinate of %q: %w", address, err)
	}

	return nil
}

// CountCoordinatesInCell returns how many stored addresses fall in the H3 cell.
func (s *Store) CountCoordinatesInCell(ctx context.Context, cell uint64) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM coordinates WHERE h3_res7 = ?`, cell).Scan(&n)

	return n, err
}
