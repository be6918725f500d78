// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package calendar

import (
	"slices"
	"time"
)

// how far ahead of the cursor a day key may land.
const resolveHorizon = 62

// ResolveDates maps the synthetic keys of c to dates, taking anchor's month as the
// month the sheet starts in. The first week of a month usually begins in the
// previous one, so the walk starts six days before the first of the month.
// Keys are visited in order; each one takes the first date on or after the
// previous match whose day of month and weekday agree. Keys that can't be placed
// within resolveHorizon days are left out.
func ResolveDates(c Calendar, anchor time.Time) map[DayKey]time.Time {
	keys := make([]DayKey, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, DayKey.Compare)

	year, month, _ := anchor.Date()
	cursor := time.Date(year, month, 1, 0, 0, 0, 0, anchor.Location()).AddDate(0, 0, -6)

	ret := make(map[DayKey]time.Time, len(keys))

	for _, k := range keys {
		for i := 0; i <= resolveHorizon; i++ {
			d := cursor.AddDate(0, 0, i)
			if d.Day() == k.Day && d.Weekday() == k.Weekday {
				ret[k] = d
				cursor = d

				break
			}
		}
	}

	return ret
}

// PricesFor returns the prices of c that fall in month, keyed by date.
func PricesFor(c Calendar, month time.Time) map[time.Time]Price {
	ret := map[time.Time]Price{}

	for k, d := range ResolveDates(c, month) {
		if d.Month() == month.Month() && d.Year() == month.Year() {
			ret[d] = c[k]
		}
	}

	return ret
}
