// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package htmlutils

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func TestNode2string(t *testing.T) {
	tests := []struct {
		fail     bool
		expected string
		input    string
	}{
		{false, "foo bar", "<div><pre>foo</pre><span>bar</span>"},
		{false, "139", "<td> 139 </td>"},
		{true, "", "<span>a�o</span>"},
	}

	for _, test := range tests {
		n, err := html.Parse(strings.NewReader(test.input))
		if err != nil {
			t.Fatalf("parsing HTML `%s': %s", test.input, err)
		}

		sb := strings.Builder{}

		err = Node2string(n, &sb)
		if !test.fail && err != nil {
			t.Errorf("unexpected error: %s", err)
		} else if test.fail && err == nil {
			t.Errorf("didn't fail: %s", test.input)
		}

		if got := sb.String(); got != test.expected {
			t.Errorf("`%s': expected `%v' but got `%v'", test.input, test.expected, got)
		}
	}
}

func TestAsReader_WithNonOKStatus(t *testing.T) {
	const msg = "status 404"

	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}

	_, err := AsReader(resp, "text/html")
	if err == nil || err.Error() != msg {
		t.Fatalf("expected %q, got %v", msg, err)
	}
}

func TestAsReader_MediaType(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader("{}")),
	}

	if _, err := AsReader(resp, "text/csv", "text/html"); err == nil {
		t.Fatal("expected media type error")
	}

	resp = &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/csv; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader("a,b\n")),
	}

	r, err := AsReader(resp, "text/csv", "text/html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	if string(body) != "a,b\n" {
		t.Errorf("body = %q", body)
	}
}

func TestAsNode_SignIn(t *testing.T) {
	_, err := AsNode(strings.NewReader("<html><head><title>Sign in - Google Accounts</title></head><body></body></html>"))
	if !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("expected ErrSignInRequired, got %v", err)
	}
}

func TestTableRows(t *testing.T) {
	const page = `<html><head><title>Rates</title></head><body>
<table>
  <thead><tr><th></th><th>A</th><th>B</th></tr></thead>
  <tbody>
    <tr><th>1</th><td>Address</td><td>123 <b>Main</b> St</td></tr>
    <tr><th>2</th><td></td></tr>
  </tbody>
</table>
<table><tr><td>ignored</td></tr></table>
</body></html>`

	n, err := AsNode(strings.NewReader(page))
	if err != nil {
		t.Fatalf("AsNode() error = %v", err)
	}

	table := FindElement(n, "table")
	if table == nil {
		t.Fatal("table not found")
	}

	rows, err := TableRows(table)
	if err != nil {
		t.Fatalf("TableRows() error = %v", err)
	}

	want := [][]string{
		{"", "A", "B"},
		{"1", "Address", "123 Main St"},
		{"2", ""},
	}

	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("TableRows() mismatch (-want +got):\n%s", diff)
	}
}
