// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package calendar turns normalized vendor tabs into location records with an
// hourly price calendar.
package calendar

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ParseStatus summarizes how much of a tab could be understood.
type ParseStatus int

const (
	// StatusOK means every month block produced entries.
	StatusOK ParseStatus = iota
	// StatusPartial means some blocks failed but at least one entry was produced.
	StatusPartial
	// StatusFailed means no calendar entry was produced.
	StatusFailed
)

func (s ParseStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusPartial:
		return "PARTIAL"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ParseStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ParseStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*s = StatusOK
	case "PARTIAL":
		*s = StatusPartial
	case "FAILED":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown parse status %q", b)
	}

	return nil
}

// DayKey identifies a calendar cell. Sheets don't carry year or month, so a day is
// addressed by the block it appears in, its weekday column and its day of month.
type DayKey struct {
	Block   int          `json:"block"`
	Weekday time.Weekday `json:"weekday"`
	Day     int          `json:"day"`
}

// Compare orders keys by block, then weekday column, then day.
func (k DayKey) Compare(o DayKey) int {
	if k.Block != o.Block {
		return k.Block - o.Block
	}

	if k.Weekday != o.Weekday {
		return int(k.Weekday) - int(o.Weekday)
	}

	return k.Day - o.Day
}

// Calendar maps day keys to hourly prices. A zero price is an explicit entry.
type Calendar map[DayKey]Price

// Entry is one calendar cell.
type Entry struct {
	DayKey
	Price Price `json:"price"`
}

// Entries returns the calendar sorted by key.
func (c Calendar) Entries() []Entry {
	ret := make([]Entry, 0, len(c))
	for k, p := range c {
		ret = append(ret, Entry{DayKey: k, Price: p})
	}

	slices.SortFunc(ret, func(a, b Entry) int { return a.Compare(b.DayKey) })

	return ret
}

// MarshalJSON encodes the calendar as a sorted list of entries.
func (c Calendar) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Entries())
}

// UnmarshalJSON decodes the list produced by MarshalJSON.
func (c *Calendar) UnmarshalJSON(b []byte) error {
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}

	ret := make(Calendar, len(entries))
	for _, e := range entries {
		ret[e.DayKey] = e.Price
	}

	*c = ret

	return nil
}

// Contact is a named person reachable by phone.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LocationRecord is the parsed content of one vendor tab.
// Records are built once per refresh and never modified after being published.
type LocationRecord struct {
	TabID             string      `json:"tab_id"`
	DisplayName       string      `json:"display_name,omitempty"`
	OperationsContact *Contact    `json:"operations_contact,omitempty"`
	SalesPhone        string      `json:"sales_phone,omitempty"`
	ETransferEmail    string      `json:"e_transfer_email,omitempty"`
	TerminalID        string      `json:"terminal_id,omitempty"`
	StreetAddress     string      `json:"street_address,omitempty"`
	TruckCapacityNote string      `json:"truck_capacity_note,omitempty"`
	Prices            Calendar    `json:"prices"`
	Status            ParseStatus `json:"parse_status"`
	Warnings          []string    `json:"warnings,omitempty"`
	RefreshedAt       time.Time   `json:"last_refreshed_at"`
}

// Price returns the hourly price for key, and whether the sheet listed it.
func (r *LocationRecord) Price(key DayKey) (Price, bool) {
	p, ok := r.Prices[key]

	return p, ok
}

// Usable reports whether the record may be served to dispatch.
func (r *LocationRecord) Usable() bool {
	return r != nil && r.Status != StatusFailed
}
