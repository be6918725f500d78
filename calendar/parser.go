// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jcodagnone/haulsheet/sheet"
	"github.com/jcodagnone/haulsheet/utils/textutils"
)

// Warnings attached to records that couldn't be parsed.
const (
	WarnEmptySheet = "empty sheet"
	WarnNoHeader   = "no weekday header found"
	WarnNoEntries  = "no calendar entries found"
)

// weekday names in the order vendors lay out their calendars.
var weekdayNames = [7][]string{
	time.Sunday:    {"sunday", "sun"},
	time.Monday:    {"monday", "mon"},
	time.Tuesday:   {"tuesday", "tue", "tues"},
	time.Wednesday: {"wednesday", "wed"},
	time.Thursday:  {"thursday", "thu", "thur", "thurs"},
	time.Friday:    {"friday", "fri"},
	time.Saturday:  {"saturday", "sat"},
}

func isWeekday(cell string, day time.Weekday) bool {
	s := strings.TrimSuffix(textutils.LowerASCIIFolding(cell), ".")
	for _, name := range weekdayNames[day] {
		if s == name {
			return true
		}
	}

	return false
}

// headerColumn returns the column where a SUNDAY..SATURDAY run starts in row r.
func headerColumn(g sheet.Grid, r int) (int, bool) {
	for start := 0; start+7 <= g.Width(r); start++ {
		match := true

		for d := time.Sunday; d <= time.Saturday; d++ {
			if !isWeekday(g.Cell(r, start+int(d)), d) {
				match = false

				break
			}
		}

		if match {
			return start, true
		}
	}

	return 0, false
}

// weekday header found while scanning the grid.
type header struct {
	row, col int
}

func findHeaders(g sheet.Grid) []header {
	var ret []header

	for r := 0; r < g.Rows(); r++ {
		if col, ok := headerColumn(g, r); ok {
			ret = append(ret, header{row: r, col: col})
		}
	}

	return ret
}

// nextFilledRow returns the first non-blank row in [from, limit), or -1.
func nextFilledRow(g sheet.Grid, from, limit int) int {
	for r := from; r < limit; r++ {
		if !g.BlankRow(r) {
			return r
		}
	}

	return -1
}

func parseDay(s string) (int, bool) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}

	return d, true
}

// counts the header columns holding a valid day of month in row r.
func dayCells(g sheet.Grid, h header, r int) int {
	n := 0

	for c := 0; c < 7; c++ {
		if _, ok := parseDay(g.Cell(r, h.col+c)); ok {
			n++
		}
	}

	return n
}

// blockResult is the outcome of one day row / price row pair.
type blockResult struct {
	entries int
	reason  string
}

// parseBlocks reads the day/price row pairs that follow header h, up to limit.
// The first pair is always attempted; further pairs are read while the next
// filled row looks like a day row.
func parseBlocks(g sheet.Grid, h header, limit int, seq *int, prices Calendar) []blockResult {
	var results []blockResult

	from := h.row + 1

	for first := true; ; first = false {
		dayRow := nextFilledRow(g, from, limit)
		if !first && (dayRow < 0 || dayCells(g, h, dayRow) == 0) {
			break
		}

		block := *seq
		*seq++

		if dayRow < 0 {
			results = append(results, blockResult{reason: "missing day row"})

			break
		}

		priceRow := nextFilledRow(g, dayRow+1, limit)
		if priceRow < 0 {
			results = append(results, blockResult{reason: "missing price row"})

			break
		}

		n := 0

		for c := 0; c < 7; c++ {
			day, ok := parseDay(g.Cell(dayRow, h.col+c))
			if !ok {
				continue
			}

			price, err := ParsePrice(g.Cell(priceRow, h.col+c))
			if err != nil {
				continue
			}

			prices[DayKey{Block: block, Weekday: time.Weekday(c), Day: day}] = price
			n++
		}

		res := blockResult{entries: n}
		if n == 0 {
			res.reason = "no parseable day and price cells"
		}

		results = append(results, res)
		from = priceRow + 1
	}

	return results
}

// Parse builds the LocationRecord for one tab. It never fails: problems are
// reported through the record status and warnings.
func Parse(tabID string, g sheet.Grid) *LocationRecord {
	record := &LocationRecord{
		TabID:  tabID,
		Prices: Calendar{},
	}

	if g.Rows() == 0 {
		record.fail(WarnEmptySheet)

		return record
	}

	headers := findHeaders(g)

	metadataEnd := g.Rows()
	if len(headers) > 0 {
		metadataEnd = headers[0].row
	}

	for r := 0; r < metadataEnd; r++ {
		extractMetadata(record, g[r])
	}

	if len(headers) == 0 {
		record.fail(WarnNoHeader)

		return record
	}

	seq, failed := 0, 0

	for i, h := range headers {
		limit := g.Rows()
		if i+1 < len(headers) {
			limit = headers[i+1].row
		}

		first := seq

		for j, res := range parseBlocks(g, h, limit, &seq, record.Prices) {
			if res.reason != "" {
				failed++

				record.Warnings = append(record.Warnings, fmt.Sprintf("block %d: %s", first+j, res.reason))
			}
		}
	}

	switch {
	case len(record.Prices) == 0:
		record.fail(WarnNoEntries)
	case failed > 0:
		record.Status = StatusPartial
	default:
		record.Status = StatusOK
	}

	return record
}

func (r *LocationRecord) fail(warning string) {
	r.Status = StatusFailed
	r.Prices = Calendar{}
	r.Warnings = append(r.Warnings, warning)
}

////////////////////////////////////////////////////
// Metadata

// metadataField couples the labels vendors use for a field with its setter.
type metadataField struct {
	labels []string
	set    func(r *LocationRecord, value string)
	isSet  func(r *LocationRecord) bool
}

// most specific labels first: "sales" must not shadow "sales number".
var metadataFields = []metadataField{
	{
		labels: []string{"operations manager", "operations contact", "ops manager", "operations", "ops"},
		set:    func(r *LocationRecord, v string) { r.OperationsContact = parseContact(v) },
		isSet:  func(r *LocationRecord) bool { return r.OperationsContact != nil },
	},
	{
		labels: []string{"sales number", "sales phone", "sales line", "sales #", "sales"},
		set:    func(r *LocationRecord, v string) { r.SalesPhone = v },
		isSet:  func(r *LocationRecord) bool { return r.SalesPhone != "" },
	},
	{
		labels: []string{"e-transfer", "etransfer", "e transfer", "interac"},
		set:    func(r *LocationRecord, v string) { r.ETransferEmail = v },
		isSet:  func(r *LocationRecord) bool { return r.ETransferEmail != "" },
	},
	{
		labels: []string{"terminal id", "terminal #", "terminal"},
		set:    func(r *LocationRecord, v string) { r.TerminalID = v },
		isSet:  func(r *LocationRecord) bool { return r.TerminalID != "" },
	},
	{
		labels: []string{"truck count", "truck capacity", "number of trucks", "# of trucks", "trucks"},
		set:    func(r *LocationRecord, v string) { r.TruckCapacityNote = v },
		isSet:  func(r *LocationRecord) bool { return r.TruckCapacityNote != "" },
	},
	{
		labels: []string{"street address", "address"},
		set:    func(r *LocationRecord, v string) { r.StreetAddress = v },
		isSet:  func(r *LocationRecord) bool { return r.StreetAddress != "" },
	},
	{
		labels: []string{"location name", "location", "city", "branch"},
		set:    func(r *LocationRecord, v string) { r.DisplayName = v },
		isSet:  func(r *LocationRecord) bool { return r.DisplayName != "" },
	},
}

// matchLabel finds the field labeled by cell. It returns the field index and the
// number of runes of the cell taken by the label.
func matchLabel(cell string) (int, int, bool) {
	folded := textutils.LowerASCIIFolding(cell)

	for i, field := range metadataFields {
		for _, label := range field.labels {
			if !strings.HasPrefix(folded, label) {
				continue
			}

			// the label must end at a word boundary
			rest := []rune(folded[len(label):])
			if len(rest) > 0 && (unicode.IsLetter(rest[0]) || unicode.IsDigit(rest[0])) {
				continue
			}

			return i, len([]rune(label)), true
		}
	}

	return 0, 0, false
}

const valueSeparators = ":=-–"

// a separator inside a longer label phrase, as in "E-Transfer Email: ..."
var inlineSeparator = regexp.MustCompile(`[:=](\s|$)`)

// inlineValue returns the value written after the label in the same cell, or ""
// when the rest of the cell is more label text.
func inlineValue(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}

	if strings.ContainsRune(valueSeparators, []rune(rest)[0]) {
		return strings.TrimSpace(strings.TrimLeft(rest, valueSeparators+" \t"))
	}

	if loc := inlineSeparator.FindStringIndex(rest); loc != nil {
		return strings.TrimSpace(rest[loc[1]:])
	}

	return ""
}

// extractMetadata sets the fields labeled in row. A value either follows a
// separator in the labeled cell or fills the following cells up to the next label.
func extractMetadata(record *LocationRecord, row []string) {
	for i := 0; i < len(row); i++ {
		field, labelRunes, ok := matchLabel(row[i])
		if !ok {
			continue
		}

		value := inlineValue(string([]rune(row[i])[labelRunes:]))

		if value == "" {
			var parts []string

			for i+1 < len(row) {
				if _, _, isLabel := matchLabel(row[i+1]); isLabel {
					break
				}

				i++

				if row[i] != "" {
					parts = append(parts, row[i])
				}
			}

			value = strings.Join(parts, " ")
		}

		f := metadataFields[field]
		if value != "" && !f.isSet(record) {
			f.set(record, value)
		}
	}
}

var phonePattern = regexp.MustCompile(`\+?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)

// parseContact splits "Jane Smith 604-555-0101" into name and phone.
func parseContact(v string) *Contact {
	c := &Contact{}

	if loc := phonePattern.FindStringIndex(v); loc != nil {
		c.Phone = v[loc[0]:loc[1]]
		v = v[:loc[0]] + v[loc[1]:]
	}

	c.Name = strings.Trim(v, " \t,;:/-()")

	if c.Name == "" && c.Phone == "" {
		return nil
	}

	return c
}
