// Package upstream defines the contract shared by every inference provider
// adapter (primary ML service and backup language-model APIs) and the error
// taxonomy their failures are normalized into.
package upstream

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultMaxOutputTokens bounds open chat answers.
	DefaultMaxOutputTokens = 1024
	// DefaultTemperature matches what the primary service samples with.
	DefaultTemperature = 0.7
)

// Request is a single completion request. It is built per inbound call and
// never mutated once handed to a provider.
type Request struct {
	Prompt          string
	SessionID       string
	System          string // provider-specific instruction frame, empty for the primary
	MaxOutputTokens int
	Temperature     float64
}

// WithDefaults fills unset sampling fields.
func (r Request) WithDefaults() Request {
	if r.MaxOutputTokens <= 0 {
		r.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if r.Temperature <= 0 {
		r.Temperature = DefaultTemperature
	}
	return r
}

// Provider issues exactly one completion call and normalizes the vendor
// envelope into plain text. Implementations never retry; a failed call
// returns an *Error.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// NewHTTPClient returns the client adapters use when none is injected.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
