// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/dispatch"
	"github.com/jcodagnone/haulsheet/spatial"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	if err := s.CreateSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return s
}

func TestCreateSchema(t *testing.T) {
	s := setupTestStore(t)

	for _, table := range []string{"snapshots", "snapshot_tabs", "coordinates"} {
		var name string

		err := s.DB().QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}

	// idempotent
	require.NoError(t, s.CreateSchema(context.Background()))
}

func testSnapshot(version uint64, at time.Time) *dispatch.Snapshot {
	fresh := &calendar.LocationRecord{
		TabID:         "kelowna",
		DisplayName:   "Kelowna",
		StreetAddress: "12 Lake Rd",
		Prices: calendar.Calendar{
			{Block: 0, Weekday: time.Sunday, Day: 5}:    13900,
			{Block: 0, Weekday: time.Saturday, Day: 11}: 0,
		},
		Status:      calendar.StatusOK,
		RefreshedAt: at,
	}
	stale := &calendar.LocationRecord{
		TabID:       "vernon",
		Prices:      calendar.Calendar{{Block: 1, Weekday: time.Monday, Day: 13}: 15050},
		Status:      calendar.StatusPartial,
		Warnings:    []string{"block 0: missing price row"},
		RefreshedAt: at.Add(-time.Hour),
	}

	return dispatch.NewSnapshot(version, at, "cycle-1",
		map[string]*calendar.LocationRecord{"kelowna": fresh, "vernon": stale},
		map[string][]string{
			"vernon":    {"fetch failed (transient): timeout"},
			"penticton": {"fetch failed (permanent): tab not found"},
		},
	)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.LoadLatestSnapshot(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	at := time.Date(2026, time.April, 1, 10, 30, 0, 123000, time.UTC)
	want := testSnapshot(7, at)

	require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(6, at.Add(-time.Hour))))
	require.NoError(t, s.SaveSnapshot(ctx, want))

	got, err := s.LoadLatestSnapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), got.Version())
	assert.True(t, at.Equal(got.CreatedAt()), "created at %v", got.CreatedAt())
	assert.Equal(t, "cycle-1", got.CycleID())

	if diff := cmp.Diff(want.Records(), got.Records()); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(want.Status(), got.Status()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSnapshot_Prunes(t *testing.T) {
	s := setupTestStore(t)
	s.SetRetain(2)

	ctx := context.Background()
	at := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	for v := uint64(1); v <= 4; v++ {
		require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(v, at.Add(time.Duration(v)*time.Hour))))
	}

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT count(*) FROM snapshots").Scan(&n))
	assert.Equal(t, 2, n)

	require.NoError(t, s.DB().QueryRow("SELECT count(DISTINCT version) FROM snapshot_tabs").Scan(&n))
	assert.Equal(t, 2, n)

	// a version can't be archived twice
	require.Error(t, s.SaveSnapshot(ctx, testSnapshot(4, at)))
}

func TestRestore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Restore(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	at := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(1, at)))
	require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(2, at.Add(time.Hour))))

	snap, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version())
	assert.Equal(t, 2, snap.Len())

	_, err = s.DB().Exec(`UPDATE snapshot_tabs SET record = '{bad' WHERE version = 2 AND tab_id = 'kelowna'`)
	require.NoError(t, err)

	_, err = s.LoadLatestSnapshot(ctx)
	require.Error(t, err)

	snap, err = s.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Version())
	assert.Equal(t, 0, snap.Len())

	// numbering continues after the unreadable snapshot
	require.NoError(t, s.SaveSnapshot(ctx, testSnapshot(snap.Version()+1, at.Add(2*time.Hour))))
}

func TestCoordinates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := spatial.Point{Lat: 49.8880, Lng: -119.4960}

	require.NoError(t, s.SaveCoordinate(ctx, "12 lake rd", "12 Lake Rd", p))
	require.NoError(t, s.SaveCoordinate(ctx, "1 main st", "1 Main St", spatial.Point{Lat: 50.26, Lng: -119.27}))
	// replacing keeps one row per key
	require.NoError(t, s.SaveCoordinate(ctx, "12 lake rd", "12 LAKE RD", p))

	got, err := s.LoadCoordinates(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, p, got["12 lake rd"])

	cell, err := p.Cell(spatial.DefaultCellResolution)
	require.NoError(t, err)

	n, err := s.CountCoordinatesInCell(ctx, cell)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
