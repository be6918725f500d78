// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package sheet fetches vendor pricing tabs and normalizes them into text grids.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jcodagnone/haulsheet/utils/htmlutils"
)

// ErrUndecodable is returned when the raw tab is not valid UTF-8 text.
var ErrUndecodable = errors.New("tab content is not decodable text")

// Grid is a row-major table of trimmed cells. Rows may have different lengths.
type Grid [][]string

// Rows returns the number of rows.
func (g Grid) Rows() int {
	return len(g)
}

// Cell returns the cell at row r, column c, or "" when out of range.
func (g Grid) Cell(r, c int) string {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) {
		return ""
	}

	return g[r][c]
}

// Width returns the length of row r.
func (g Grid) Width(r int) int {
	if r < 0 || r >= len(g) {
		return 0
	}

	return len(g[r])
}

// BlankRow reports whether every cell of row r is empty.
func (g Grid) BlankRow(r int) bool {
	for c := 0; c < g.Width(r); c++ {
		if g[r][c] != "" {
			return false
		}
	}

	return true
}

// Normalize converts a raw tab export into a Grid. Published HTML pages are
// flattened from their first table; anything else is read as CSV.
func Normalize(raw string) (Grid, error) {
	if !utf8.ValidString(raw) {
		return nil, ErrUndecodable
	}

	raw = strings.TrimPrefix(raw, "\ufeff")
	if strings.TrimSpace(raw) == "" {
		return Grid{}, nil
	}

	var (
		rows [][]string
		err  error
	)

	if strings.HasPrefix(strings.TrimSpace(raw), "<") {
		rows, err = htmlRows(raw)
	} else {
		rows, err = csvRows(raw)
	}

	if err != nil {
		return nil, err
	}

	grid := make(Grid, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = strings.TrimSpace(cell)
		}

		grid[i] = cells
	}

	return grid, nil
}

func csvRows(raw string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1 // ragged rows are the norm
	reader.LazyQuotes = true

	var rows [][]string

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}

		rows = append(rows, record)
	}

	return rows, nil
}

func htmlRows(raw string) ([][]string, error) {
	n, err := htmlutils.AsNode(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	table := htmlutils.FindElement(n, "table")
	if table == nil {
		return nil, nil
	}

	rows, err := htmlutils.TableRows(table)
	if err != nil {
		return nil, fmt.Errorf("reading html table: %w", err)
	}

	return rows, nil
}
