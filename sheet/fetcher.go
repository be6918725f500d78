// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"github.com/jcodagnone/haulsheet/utils/htmlutils"
)

// Fetcher retrieves the raw text of one tab of a spreadsheet.
// Failures are reported as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, sheetID, tabID string) (string, error)
}

// maximum accepted export size.
const maxExportBytes = 8 << 20

// DefaultExportBaseURL is the public host serving spreadsheet exports.
const DefaultExportBaseURL = "https://docs.google.com/spreadsheets/d/"

// CSVExportFetcher downloads tabs of a link-shared spreadsheet as CSV. Tabs with a
// known gid use the plain export, which keeps every cell as typed. Other tabs go
// through the visualization export, which addresses tabs by name but coerces each
// column to a single type and may blank cells of the minority type.
type CSVExportFetcher struct {
	client  *http.Client
	baseURL string
	gids    map[string]string
}

// NewCSVExportFetcher creates a fetcher using client. An empty baseURL selects the
// public export host.
func NewCSVExportFetcher(client *http.Client, baseURL string) *CSVExportFetcher {
	if baseURL == "" {
		baseURL = DefaultExportBaseURL
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &CSVExportFetcher{client: client, baseURL: baseURL}
}

// SetTabGIDs sets the gid of the tabs that should use the plain export.
func (f *CSVExportFetcher) SetTabGIDs(gids map[string]string) {
	f.gids = maps.Clone(gids)
}

func (f *CSVExportFetcher) exportURL(sheetID, tabID string) string {
	if gid, ok := f.gids[tabID]; ok {
		params := url.Values{}
		params.Set("format", "csv")
		params.Set("gid", gid)

		return f.baseURL + url.PathEscape(sheetID) + "/export?" + params.Encode()
	}

	params := url.Values{}
	params.Set("tqx", "out:csv")
	params.Set("sheet", tabID)

	return f.baseURL + url.PathEscape(sheetID) + "/gviz/tq?" + params.Encode()
}

// Fetch implements Fetcher.
func (f *CSVExportFetcher) Fetch(ctx context.Context, sheetID, tabID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.exportURL(sheetID, tabID), nil)
	if err != nil {
		return "", &TransportError{Kind: KindPermanent, TabID: tabID, Message: "building request", Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", transportFailure(tabID, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(tabID, resp.StatusCode)
	}

	r, err := htmlutils.AsReader(resp, "text/csv", "text/html", "text/plain")
	if err != nil {
		return "", &TransportError{Kind: KindPermanent, TabID: tabID, Message: "unexpected body", Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(r, maxExportBytes+1))
	if err != nil {
		return "", transportFailure(tabID, err)
	}

	if len(body) > maxExportBytes {
		return "", &TransportError{
			Kind:    KindPermanent,
			TabID:   tabID,
			Message: fmt.Sprintf("export larger than %d bytes", maxExportBytes),
		}
	}

	// a shared-link export that lost its sharing answers 200 with a sign-in page
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		if _, err := htmlutils.AsNode(strings.NewReader(string(body))); errors.Is(err, htmlutils.ErrSignInRequired) {
			return "", &TransportError{Kind: KindPermanent, TabID: tabID, Message: "sheet is not shared", Err: err}
		}
	}

	return string(body), nil
}
