// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/geo"
	"github.com/jcodagnone/haulsheet/sheet"
	"github.com/jcodagnone/haulsheet/spatial"
)

const goodTab = `Address,1 Main St
SUNDAY,MONDAY,TUESDAY,WEDNESDAY,THURSDAY,FRIDAY,SATURDAY
5,6,7,8,9,10,11
139,139,139,139,139,139,199
`

// fakeFetcher answers from a table of per-tab functions.
type fakeFetcher struct {
	mu    sync.Mutex
	tabs  map[string]func(ctx context.Context) (string, error)
	calls int
}

func (f *fakeFetcher) set(tab string, fn func(ctx context.Context) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tabs[tab] = fn
}

func (f *fakeFetcher) Fetch(ctx context.Context, _, tabID string) (string, error) {
	f.mu.Lock()
	fn := f.tabs[tabID]
	f.calls++
	f.mu.Unlock()

	if fn == nil {
		return "", &sheet.TransportError{Kind: sheet.KindPermanent, TabID: tabID, Message: "tab not found"}
	}

	return fn(ctx)
}

func content(raw string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return raw, nil }
}

func hang(ctx context.Context) (string, error) {
	<-ctx.Done()

	return "", &sheet.TransportError{Kind: sheet.KindTransient, Message: "timeout", Err: ctx.Err()}
}

func failing(context.Context) (string, error) {
	return "", &sheet.TransportError{Kind: sheet.KindTransient, Message: "unexpected status 502"}
}

func newTestScheduler(f sheet.Fetcher, tabs ...string) (*Scheduler, *Cache) {
	cache := NewCache()

	return NewScheduler(f, cache, Options{
		SheetID:      "sheet",
		Tabs:         tabs,
		Interval:     time.Hour,
		FetchTimeout: 50 * time.Millisecond,
	}), cache
}

func TestCache_EmptySnapshot(t *testing.T) {
	c := NewCache()

	s := c.Snapshot()
	require.NotNil(t, s)
	assert.Equal(t, uint64(0), s.Version())
	assert.Empty(t, s.Records())

	_, ok := s.Record("A")
	assert.False(t, ok)

	c.Publish(nil)
	assert.Same(t, s, c.Snapshot())
}

func TestRefresh_FreshAndCarried(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){
		"A": content(goodTab),
		"B": content(goodTab),
	}}
	s, cache := newTestScheduler(f, "A", "B")

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version())

	priorB, ok := first.Record("B")
	require.True(t, ok)

	f.set("B", hang)

	second, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, second, cache.Snapshot())
	assert.Equal(t, uint64(2), second.Version())

	a, _ := second.Record("A")
	assert.Equal(t, calendar.StatusOK, a.Status)
	assert.Equal(t, second.CreatedAt(), a.RefreshedAt)

	b, _ := second.Record("B")
	assert.Same(t, priorB, b, "B must be carried forward unchanged")

	require.Len(t, second.Warnings("B"), 1)
	assert.Contains(t, second.Warnings("B")[0], "fetch failed (transient)")
	assert.Empty(t, second.Warnings("A"))

	status := second.Status()
	assert.True(t, status.Tabs["B"].Stale)
	assert.False(t, status.Tabs["A"].Stale)
	assert.Equal(t, StateIdle, s.State())
}

func TestRefresh_AllFetchesFail(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){
		"A": content(goodTab),
		"B": content(goodTab),
	}}

	now := time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(f, "A", "B")
	s.options.Now = func() time.Time { return now }

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)

	f.set("A", failing)
	f.set("B", failing)

	now = now.Add(time.Hour)

	second, err := s.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Version()+1, second.Version())
	assert.Equal(t, now, second.CreatedAt())
	assert.Equal(t, first.Records(), second.Records())

	for _, tab := range []string{"A", "B"} {
		assert.NotEmpty(t, second.Warnings(tab), tab)
		assert.Equal(t, "OK", second.Status().Tabs[tab].Status)
	}
}

func TestRefresh_FirstRunWithoutTabs(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){"A": failing}}
	s, cache := newTestScheduler(f, "A", "B")

	_, err := s.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
	assert.Equal(t, uint64(0), cache.Snapshot().Version())
}

func TestRefresh_FailedParse(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){
		"A": content(goodTab),
		"B": content("just,some,text\n"),
	}}
	s, _ := newTestScheduler(f, "A", "B")

	first, err := s.Refresh(context.Background())
	require.NoError(t, err)

	// a first-ever failed parse is published as is
	b, ok := first.Record("B")
	require.True(t, ok)
	assert.Equal(t, calendar.StatusFailed, b.Status)
	assert.Contains(t, first.Warnings("B"), calendar.WarnNoHeader)

	f.set("B", content(goodTab))

	second, err := s.Refresh(context.Background())
	require.NoError(t, err)

	good, _ := second.Record("B")
	assert.Equal(t, calendar.StatusOK, good.Status)

	f.set("A", content(""))
	f.set("B", content("\xff\xfe"))

	third, err := s.Refresh(context.Background())
	require.NoError(t, err)

	for _, tab := range []string{"A", "B"} {
		r, _ := third.Record(tab)
		assert.Equal(t, calendar.StatusOK, r.Status, tab)
		assert.Contains(t, third.Warnings(tab), "parse failed, keeping previous record", tab)
	}
}

func TestRefresh_ConcurrentReaders(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){
		"A": content(goodTab),
		"B": content(goodTab),
		"C": content(goodTab),
	}}
	s, cache := newTestScheduler(f, "A", "B", "C")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for ctx.Err() == nil {
				snap := cache.Snapshot()
				if snap.Version() == 0 {
					continue
				}

				// every record of a snapshot belongs to the same cycle
				for _, r := range snap.Records() {
					if !r.RefreshedAt.Equal(snap.CreatedAt()) {
						t.Errorf("record %s from %v in snapshot %v", r.TabID, r.RefreshedAt, snap.CreatedAt())
					}
				}
			}
		}()
	}

	for range 20 {
		_, err := s.Refresh(context.Background())
		require.NoError(t, err)
	}

	cancel()
	wg.Wait()

	assert.Equal(t, uint64(20), cache.Snapshot().Version())
}

type recordingArchive struct {
	versions []uint64
	err      error
}

func (a *recordingArchive) SaveSnapshot(_ context.Context, s *Snapshot) error {
	a.versions = append(a.versions, s.Version())

	return a.err
}

func TestRefresh_ArchiveAndHooks(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){"A": content(goodTab)}}
	archive := &recordingArchive{err: errors.New("disk full")}

	var done atomic.Int32

	s := NewScheduler(f, NewCache(), Options{
		Tabs:      []string{"A", "missing"},
		Archive:   archive,
		OnTabDone: func(string) { done.Add(1) },
	})

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err, "archive failures are not fatal")
	assert.Equal(t, []uint64{1}, archive.versions)
	assert.Equal(t, int32(2), done.Load())

	assert.Equal(t, "MISSING", snap.Status().Tabs["missing"].Status)
	assert.Contains(t, snap.Warnings("missing")[0], "fetch failed (permanent)")
}

func TestNewScheduler_ClampsInterval(t *testing.T) {
	s := NewScheduler(&fakeFetcher{}, NewCache(), Options{Interval: time.Second})
	assert.Equal(t, MinRefreshInterval, s.Interval())

	s = NewScheduler(&fakeFetcher{}, NewCache(), Options{})
	assert.Equal(t, DefaultRefreshInterval, s.Interval())
}

func TestRun_Trigger(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){"A": content(goodTab)}}
	s, cache := newTestScheduler(f, "A")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	go func() { errc <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return cache.Snapshot().Version() == 1 }, time.Second, time.Millisecond)

	// the interval is an hour, only a trigger can start the second cycle
	s.Trigger()
	s.Trigger()

	require.Eventually(t, func() bool { return cache.Snapshot().Version() >= 2 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestService(t *testing.T) {
	f := &fakeFetcher{tabs: map[string]func(context.Context) (string, error){"A": content(goodTab)}}
	s, cache := newTestScheduler(f, "A")

	geocoder := geo.GeocoderFunc(func(_ context.Context, address string) (spatial.Point, error) {
		if address == "1 Main St" || address == "customer" {
			return spatial.Point{Lat: 49, Lng: -123}, nil
		}

		return spatial.Point{}, &geo.GeocodeError{Type: geo.ErrorTypeNotFound, Message: "not found"}
	})
	svc := NewService(cache, geo.NewMatcher(geo.NewCoordinateCache(geocoder, nil, nil), geo.DefaultTieEpsilon), s)

	// empty cache answers none
	_, ok := svc.ClosestLocation(context.Background(), "customer")
	assert.False(t, ok)

	_, ok = svc.GetLocation("A")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), svc.LastRefreshStatus().Version)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	m, ok := svc.ClosestLocation(context.Background(), "customer")
	require.True(t, ok)
	assert.Equal(t, "A", m.TabID)

	r, ok := svc.GetLocation("A")
	require.True(t, ok)
	assert.Equal(t, "1 Main St", r.StreetAddress)
	assert.Len(t, svc.Locations(), 1)

	_, ok = svc.ClosestLocation(context.Background(), "elsewhere")
	assert.False(t, ok)

	svc.TriggerRefresh()
	assert.Len(t, s.trigger, 1)
}
