// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// ClientOptions configures the HTTP clients used to reach sheet exports and geocoders.
type ClientOptions struct {
	// UserAgent is the User-Agent header sent with every request.
	UserAgent string
	// Timeout bounds a whole request. Callers usually also pass a context deadline.
	Timeout time.Duration
	// TraceWriter, when set, receives an abbreviated dump of each transaction.
	TraceWriter io.Writer
	// TraceBody includes bodies in the dump.
	TraceBody bool
}

// NewClient builds an http.Client with connection limits, optional tracing and
// default headers. Redirects are followed: published sheets redirect to a CDN host.
func NewClient(options ClientOptions) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       4,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	userAgent := "haulsheet/unknown"
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &AppendRequestHeadersRoundTripper{
			Headers: map[string]string{
				"User-Agent": userAgent,
				"Accept":     "*/*",
			},
			Transport: &LoggingRoundTripper{
				Writer:    options.TraceWriter,
				DumpBody:  options.TraceBody,
				Transport: transport,
			},
		},
	}
}

/////////////////////////////////////////
/// RountTrippers

// LoggingRoundTripper adds a very primitive logging to a http transaction.
// Query parameters that carry credentials are redacted.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// query parameters never written to the trace.
var secretParams = []string{"key", "access_token"}

// RedactURL returns u as a string with credential parameters replaced.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	redacted := false

	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")

			redacted = true
		}
	}

	if !redacted {
		return u.String()
	}

	c := *u
	c.RawQuery = q.Encode()

	return c.String()
}

// reduce the content the lines.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 256, 512

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			line = line[0:maxChars] + "…"
		}

		if strings.HasPrefix(strings.ToLower(line), "authorization:") {
			line = "Authorization: REDACTED"
		}

		lines[i] = fmt.Sprintf("%c %s", prefix, line)
	}

	return lines
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	dump, err := httputil.DumpRequestOut(req, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := strings.Split(string(dump), "\n")
	if len(lines) > 0 {
		lines[0] = fmt.Sprintf("%s %s", req.Method, RedactURL(req.URL))
	}

	lines = append(abbreviate(lines, '>'), "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP response: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP response: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to a clone of the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.Headers {
		if clone.Header.Get(k) == "" {
			clone.Header.Set(k, v)
		}
	}

	return t.Transport.RoundTrip(clone)
}
