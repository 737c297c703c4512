package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/util"
)

// Kind classifies a provider failure. Every kind is recoverable by moving on
// to the next candidate; the distinction exists for logs and the attempt
// monitor.
type Kind string

const (
	KindTransient Kind = "transient" // network failure, timeout, 5xx
	KindAuth      Kind = "auth"      // 401/403, bad or revoked credential
	KindQuota     Kind = "quota"     // 429, rate limit or exhausted quota
	KindMalformed Kind = "malformed" // success status, unexpected schema
	KindEmpty     Kind = "empty"     // success status, expected field present but blank
)

// Error is the normalized failure of one provider call.
type Error struct {
	Provider   string
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind. Errors that did not come from an adapter
// are treated as transient.
func KindOf(err error) Kind {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return KindTransient
}

// RetryAfterOf returns the provider's retry hint, or zero when it sent none.
func RetryAfterOf(err error) time.Duration {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.RetryAfter
	}
	return 0
}

// KindForStatus maps an HTTP status code onto the taxonomy.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindQuota
	default:
		return KindTransient
	}
}

// TransportError wraps a failure that happened before a response arrived.
func TransportError(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out: %w", err)
	}
	return &Error{Provider: provider, Kind: KindTransient, Err: err}
}

// StatusError builds an error from a non-2xx response. It reads (and
// restores) the body for the error message and quota retry hints.
func StatusError(provider string, resp *http.Response) *Error {
	kind := KindForStatus(resp.StatusCode)
	var retryAfter time.Duration
	if kind == KindQuota {
		retryAfter = ParseRetryDelay(resp)
	}
	var snippet string
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		snippet = strings.TrimSpace(util.TruncateLog(string(body), 256))
	}
	if snippet == "" {
		snippet = http.StatusText(resp.StatusCode)
	}
	return &Error{
		Provider:   provider,
		Kind:       kind,
		Status:     resp.StatusCode,
		RetryAfter: retryAfter,
		Err:        errors.New(snippet),
	}
}

// MalformedError reports a response whose expected text field was absent.
func MalformedError(provider, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

// EmptyError reports a response whose text field was present but blank.
func EmptyError(provider string) *Error {
	return &Error{Provider: provider, Kind: KindEmpty, Err: errors.New("provider returned empty text")}
}
