// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package sheet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind tells transient fetch failures apart from permanent ones.
type ErrorKind int

const (
	// KindTransient covers timeouts, network errors and 5xx answers.
	KindTransient ErrorKind = iota
	// KindPermanent covers missing tabs, revoked sharing and bad requests.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindPermanent {
		return "permanent"
	}

	return "transient"
}

// TransportError is returned by fetchers when a tab cannot be retrieved.
type TransportError struct {
	Kind    ErrorKind
	TabID   string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("fetching tab %q: %s", e.TabID, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a TransportError that retrying won't fix.
func IsPermanent(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == KindPermanent
	}

	return false
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyStatus maps an HTTP status from the sheet host to a TransportError.
func classifyStatus(tabID string, statusCode int) *TransportError {
	switch statusCode {
	case http.StatusNotFound:
		return &TransportError{Kind: KindPermanent, TabID: tabID, Message: "tab not found"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &TransportError{Kind: KindPermanent, TabID: tabID, Message: "access denied"}
	case http.StatusBadRequest:
		return &TransportError{Kind: KindPermanent, TabID: tabID, Message: "bad request"}
	case http.StatusTooManyRequests:
		return &TransportError{Kind: KindTransient, TabID: tabID, Message: "rate limited"}
	default:
		return &TransportError{
			Kind:    KindTransient,
			TabID:   tabID,
			Message: fmt.Sprintf("unexpected status %d", statusCode),
		}
	}
}

// transportFailure wraps a client-side failure (dial, timeout, cancellation).
func transportFailure(tabID string, err error) *TransportError {
	msg := "network error"
	if IsTimeout(err) {
		msg = "timeout"
	}

	return &TransportError{Kind: KindTransient, TabID: tabID, Message: msg, Err: err}
}
