// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package htmlutils provides utility functions for working with HTML.
package htmlutils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Node2string appends the text content of n to sb, separating text nodes by a single space.
func Node2string(n *html.Node, sb *strings.Builder) (err error) {
	if n.Type == html.TextNode {
		tmp := strings.TrimSpace(strings.ReplaceAll(n.Data, "\u00a0", " "))

		// a REPLACEMENT CHARACTER (U+FFFD) means the body was decoded with the wrong charset
		if strings.ContainsRune(tmp, utf8.RuneError) {
			return fmt.Errorf("charset missmatch found: `%s'", tmp)
		}

		tmp = strings.ReplaceAll(tmp, "\n", " ")

		if len(tmp) > 0 {
			if sb.Len() != 0 {
				sb.WriteByte(' ')
			}

			sb.WriteString(tmp)
		}

		return nil
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if err = Node2string(child, sb); err != nil {
			break
		}
	}

	return err
}

// Validates that the response media type is one of the expected ones.
func hasContentType(media string, expected ...string) bool {
	for _, e := range expected {
		if strings.EqualFold(e, media[0:min(len(media), len(e))]) {
			return true
		}
	}

	return false
}

// AsReader converts an HTTP response body to an io.Reader with the correct charset.
// The response must be a 200 carrying one of the accepted media types.
func AsReader(resp *http.Response, accepted ...string) (io.Reader, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	media := resp.Header.Get("Content-Type")
	if len(accepted) > 0 && !hasContentType(media, accepted...) {
		return nil, fmt.Errorf("media type is %s", media)
	}

	rr, err := charset.NewReader(resp.Body, media)
	if err != nil {
		return nil, err
	}

	return rr, nil
}

// AsNode parses an io.Reader as an HTML node.
func AsNode(r io.Reader) (*html.Node, error) {
	n, err := html.Parse(r)
	if nil != err {
		return nil, fmt.Errorf("parsing body as HTML: %w", err)
	}

	if err := failIfSignIn(n); err != nil {
		return nil, err
	}

	return n, nil
}

// ErrSignInRequired is returned when a published sheet answers with a sign-in page,
// which happens when the sheet stops being public.
var ErrSignInRequired = errors.New("sign-in required")

func failIfSignIn(n *html.Node) (err error) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && strings.EqualFold("title", child.Data) {
			sb := strings.Builder{}

			err = Node2string(child, &sb)
			if err != nil {
				break
			}

			if strings.HasPrefix(strings.ToLower(sb.String()), "sign in") {
				err = ErrSignInRequired

				break
			}
		} else if child.Type == html.ElementNode && strings.EqualFold("body", child.Data) {
			// we're done
			break
		} else {
			err = failIfSignIn(child)
			if err != nil {
				break
			}
		}
	}

	return err
}

// FindElement returns the first element named tag in document order, or nil.
func FindElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(tag, n.Data) {
		return n
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := FindElement(child, tag); found != nil {
			return found
		}
	}

	return nil
}

// TableRows flattens the rows of table into their cell texts. Nested tbody/thead
// sections are traversed; rows of nested tables are not.
func TableRows(table *html.Node) ([][]string, error) {
	var rows [][]string

	var visit func(n *html.Node) error

	visit = func(n *html.Node) error {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}

			switch strings.ToLower(child.Data) {
			case "thead", "tbody", "tfoot":
				if err := visit(child); err != nil {
					return err
				}
			case "tr":
				row, err := rowCells(child)
				if err != nil {
					return err
				}

				rows = append(rows, row)
			}
		}

		return nil
	}

	if err := visit(table); err != nil {
		return nil, err
	}

	return rows, nil
}

func rowCells(tr *html.Node) ([]string, error) {
	var (
		cells []string
		sb    strings.Builder
	)

	for child := tr.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}

		if !strings.EqualFold("td", child.Data) && !strings.EqualFold("th", child.Data) {
			continue
		}

		sb.Reset()

		if err := Node2string(child, &sb); err != nil {
			return nil, err
		}

		cells = append(cells, sb.String())
	}

	return cells, nil
}
