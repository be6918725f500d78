// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jcodagnone/haulsheet/calendar"
	"github.com/jcodagnone/haulsheet/sheet"
	"github.com/spf13/cobra"
)

var (
	parseTabID string
	parseMonth string
)

type datedPrice struct {
	Date  string         `json:"date"`
	Price calendar.Price `json:"price"`
}

type parseOutput struct {
	*calendar.LocationRecord
	Dates []datedPrice `json:"dates,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <file.csv>",
	Short: "Parse an exported tab and print its location record",
	Long: `
parse runs a CSV export of one tab through the same normalizer and calendar
parser used by refresh. With --month the calendar is also laid out on the
dates of that month.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		tabID := parseTabID
		if tabID == "" {
			tabID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		var record *calendar.LocationRecord

		g, err := sheet.Normalize(string(raw))
		if err != nil {
			record = &calendar.LocationRecord{
				TabID:    tabID,
				Status:   calendar.StatusFailed,
				Prices:   calendar.Calendar{},
				Warnings: []string{"normalize: " + err.Error()},
			}
		} else {
			record = calendar.Parse(tabID, g)
		}

		out := parseOutput{LocationRecord: record}

		if parseMonth != "" {
			month, err := time.Parse("2006-01", parseMonth)
			if err != nil {
				return fmt.Errorf("invalid month %q, expected YYYY-MM: %w", parseMonth, err)
			}

			for d, p := range calendar.PricesFor(record.Prices, month) {
				out.Dates = append(out.Dates, datedPrice{Date: d.Format(time.DateOnly), Price: p})
			}

			slices.SortFunc(out.Dates, func(a, b datedPrice) int { return strings.Compare(a.Date, b.Date) })
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseTabID, "tab", "", "tab id of the record (defaults to the file name)")
	parseCmd.Flags().StringVar(&parseMonth, "month", "", "resolve dates for month YYYY-MM")
	rootCmd.AddCommand(parseCmd)
}
