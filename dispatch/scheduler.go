// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/metrics"
	"github.com/jcodagnone/haulsheet/sheet"
)

// MinRefreshInterval is the shortest interval Run accepts.
const MinRefreshInterval = 30 * time.Second

// Defaults used when Options leaves a field unset.
const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultFetchTimeout    = 20 * time.Second
)

// ErrNoSnapshot is returned when a cycle fetched no tab and there is no earlier
// snapshot to fall back on.
var ErrNoSnapshot = errors.New("no tab could be fetched and there is no previous snapshot")

// State is the phase of the refresh cycle.
type State int32

// Refresh cycle phases.
const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateValidating
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateParsing:
		return "PARSING"
	case StateValidating:
		return "VALIDATING"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

// Archive keeps a copy of every published snapshot.
type Archive interface {
	SaveSnapshot(ctx context.Context, s *Snapshot) error
}

// Options configures a Scheduler.
type Options struct {
	SheetID string
	Tabs    []string
	// Interval between the end of a cycle and the start of the next one.
	Interval time.Duration
	// FetchTimeout bounds each tab fetch.
	FetchTimeout   time.Duration
	MaxConcurrency int

	Archive Archive
	Metrics *metrics.Recorder
	// OnTabDone is called once per tab after its fetch finishes, from the fetching goroutine.
	OnTabDone func(tabID string)
	Now       func() time.Time
}

// Scheduler refreshes the cache from the vendor sheet.
type Scheduler struct {
	fetcher sheet.Fetcher
	cache   *Cache
	options Options

	state   atomic.Int32
	trigger chan struct{}
	// one cycle at a time
	mu sync.Mutex
}

// NewScheduler creates a scheduler publishing into cache. Intervals below
// MinRefreshInterval are raised to it.
func NewScheduler(fetcher sheet.Fetcher, cache *Cache, options Options) *Scheduler {
	if options.Interval <= 0 {
		options.Interval = DefaultRefreshInterval
	}

	if options.Interval < MinRefreshInterval {
		log.Warn().
			Dur("interval", options.Interval).
			Dur("min", MinRefreshInterval).
			Msg("refresh interval too short, using minimum")

		options.Interval = MinRefreshInterval
	}

	if options.FetchTimeout <= 0 {
		options.FetchTimeout = DefaultFetchTimeout
	}

	if options.MaxConcurrency <= 0 {
		options.MaxConcurrency = runtime.NumCPU()
	}

	if options.Now == nil {
		options.Now = time.Now
	}

	return &Scheduler{
		fetcher: fetcher,
		cache:   cache,
		options: options,
		trigger: make(chan struct{}, 1),
	}
}

// Interval returns the effective refresh interval.
func (s *Scheduler) Interval() time.Duration {
	return s.options.Interval
}

// State returns the current phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Trigger asks Run to start a cycle now. It never blocks; triggers received
// while a cycle is pending are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately and then every Interval, or sooner when triggered,
// until ctx is done. Failed cycles are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("refresh cycle failed")
		}

		timer := time.NewTimer(s.options.Interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
		}
	}
}

type fetchResult struct {
	raw string
	err error
}

// fetchAll fetches every tab with at most MaxConcurrency requests in flight.
func (s *Scheduler) fetchAll(ctx context.Context) map[string]fetchResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]fetchResult, len(s.options.Tabs))
	)

	semaphore := make(chan struct{}, s.options.MaxConcurrency)

	for _, tab := range s.options.Tabs {
		wg.Add(1)

		go func(tab string) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.options.FetchTimeout)
			raw, err := s.fetcher.Fetch(fetchCtx, s.options.SheetID, tab)
			cancel()

			mu.Lock()
			results[tab] = fetchResult{raw: raw, err: err}
			mu.Unlock()

			if s.options.OnTabDone != nil {
				s.options.OnTabDone(tab)
			}
		}(tab)
	}

	wg.Wait()

	return results
}

func parseTab(tab, raw string) *calendar.LocationRecord {
	g, err := sheet.Normalize(raw)
	if err != nil {
		return &calendar.LocationRecord{
			TabID:    tab,
			Prices:   calendar.Calendar{},
			Status:   calendar.StatusFailed,
			Warnings: []string{fmt.Sprintf("normalize: %v", err)},
		}
	}

	return calendar.Parse(tab, g)
}

func fetchWarning(err error) string {
	kind := sheet.KindTransient.String()
	if sheet.IsPermanent(err) {
		kind = sheet.KindPermanent.String()
	}

	return fmt.Sprintf("fetch failed (%s): %v", kind, err)
}

// Refresh runs one cycle and returns the published snapshot. Tabs that fail
// to fetch or parse keep the record of the previous snapshot. It returns
// ErrNoSnapshot, publishing nothing, when no tab was fetched and nothing was
// published before.
func (s *Scheduler) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.setState(StateIdle)

	start := time.Now()
	cycleID := uuid.NewString()
	logger := log.With().Str("cycle", cycleID).Logger()
	prev := s.cache.Snapshot()

	logger.Info().Int("tabs", len(s.options.Tabs)).Uint64("version", prev.Version()).Msg("refresh started")

	s.setState(StateFetching)
	fetched := s.fetchAll(ctx)

	s.setState(StateParsing)

	parsed := make(map[string]*calendar.LocationRecord, len(fetched))

	for tab, res := range fetched {
		if res.err == nil {
			parsed[tab] = parseTab(tab, res.raw)
		}
	}

	s.setState(StateValidating)

	// archived timestamps keep microseconds
	now := s.options.Now().Truncate(time.Microsecond)
	records, warnings := s.reconcile(logger, prev, fetched, parsed, now)

	if len(parsed) == 0 && prev.Version() == 0 {
		s.options.Metrics.RecordCycle(metrics.CycleFailed, time.Since(start))

		return nil, ErrNoSnapshot
	}

	s.setState(StatePublishing)

	next := NewSnapshot(prev.Version()+1, now, cycleID, records, warnings)
	s.cache.Publish(next)

	s.options.Metrics.SetVersion(next.Version())
	s.options.Metrics.RecordCycle(metrics.CyclePublished, time.Since(start))

	logger.Info().
		Uint64("version", next.Version()).
		Int("records", next.Len()).
		Int("fetched", len(parsed)).
		Dur("took", time.Since(start)).
		Msg("snapshot published")

	if s.options.Archive != nil {
		if err := s.options.Archive.SaveSnapshot(ctx, next); err != nil {
			logger.Warn().Err(err).Msg("archiving snapshot")
		}
	}

	return next, nil
}

// reconcile merges this cycle's parses with the previous snapshot: fetch and
// parse failures carry the previous record forward when there is one.
func (s *Scheduler) reconcile(
	logger zerolog.Logger,
	prev *Snapshot,
	fetched map[string]fetchResult,
	parsed map[string]*calendar.LocationRecord,
	now time.Time,
) (map[string]*calendar.LocationRecord, map[string][]string) {
	records := make(map[string]*calendar.LocationRecord, len(s.options.Tabs))
	warnings := map[string][]string{}

	for _, tab := range s.options.Tabs {
		old, hasOld := prev.Record(tab)

		if err := fetched[tab].err; err != nil {
			warnings[tab] = append(warnings[tab], fetchWarning(err))

			if hasOld {
				records[tab] = old

				s.options.Metrics.RecordTab("carried")
			} else {
				s.options.Metrics.RecordTab("fetch_error")
			}

			logger.Warn().Err(err).Str("tab", tab).Bool("carried", hasOld).Msg("fetch failed")

			continue
		}

		r := parsed[tab]
		r.RefreshedAt = now

		warnings[tab] = append(warnings[tab], r.Warnings...)
		s.options.Metrics.RecordTab(r.Status.String())

		if r.Status == calendar.StatusFailed && hasOld && old.Usable() {
			warnings[tab] = append(warnings[tab], "parse failed, keeping previous record")
			records[tab] = old

			logger.Warn().Str("tab", tab).Strs("warnings", r.Warnings).Msg("parse failed, keeping previous record")

			continue
		}

		if r.Status != calendar.StatusOK {
			logger.Warn().Str("tab", tab).Str("status", r.Status.String()).Strs("warnings", r.Warnings).Msg("tab parsed with warnings")
		}

		records[tab] = r
	}

	return records, warnings
}
