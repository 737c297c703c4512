package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Provider: "groq", Kind: KindQuota})
	if got := KindOf(err); got != KindQuota {
		t.Fatalf("KindOf() = %q, want quota", got)
	}
	if got := KindOf(errors.New("boom")); got != KindTransient {
		t.Fatalf("KindOf(plain) = %q, want transient", got)
	}
}

func TestRetryAfterOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Provider: "gemini", Kind: KindQuota, RetryAfter: 7 * time.Second})
	if got := RetryAfterOf(err); got != 7*time.Second {
		t.Fatalf("RetryAfterOf() = %v, want 7s", got)
	}
	if got := RetryAfterOf(errors.New("boom")); got != 0 {
		t.Fatalf("RetryAfterOf(plain) = %v, want 0", got)
	}
}

func TestStatusError_ReadsRetryDelayFromBody(t *testing.T) {
	body := `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"3.5s"}]}}`
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
	err := StatusError("gemini", resp)
	if err.Kind != KindQuota {
		t.Fatalf("kind = %q, want quota", err.Kind)
	}
	if err.RetryAfter != 3500*time.Millisecond {
		t.Fatalf("RetryAfter = %v", err.RetryAfter)
	}
	if !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Fatalf("error message should carry body snippet: %q", err.Error())
	}
}

func TestStatusError_EmptyBodyFallsBackToStatusText(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(bytes.NewReader(nil))}
	err := StatusError("primary", resp)
	if err.Kind != KindTransient {
		t.Fatalf("kind = %q", err.Kind)
	}
	if want := "primary: transient (status 503): Service Unavailable"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransportError_Timeout(t *testing.T) {
	err := TransportError("claude", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected deadline to remain in chain")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestParseRetryDelay_Header(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"12"}}}
	if got := ParseRetryDelay(resp); got != 12*time.Second {
		t.Fatalf("ParseRetryDelay() = %v", got)
	}
	if got := ParseRetryDelay(nil); got != 0 {
		t.Fatalf("ParseRetryDelay(nil) = %v", got)
	}
}

func TestRequestWithDefaults(t *testing.T) {
	req := Request{Prompt: "hi"}.WithDefaults()
	if req.MaxOutputTokens != DefaultMaxOutputTokens || req.Temperature != DefaultTemperature {
		t.Fatalf("unexpected defaults: %+v", req)
	}
	req = Request{MaxOutputTokens: 1000, Temperature: 0.2}.WithDefaults()
	if req.MaxOutputTokens != 1000 || req.Temperature != 0.2 {
		t.Fatalf("explicit values overwritten: %+v", req)
	}
}
