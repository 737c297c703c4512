package geminikey

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func newTestProvider(rt roundTripperFunc) *Provider {
	return NewProviderWithClient(catalog.Descriptor{
		Name:       "gemini",
		Kind:       catalog.KindGemini,
		BaseURL:    "https://generativelanguage.googleapis.com",
		Model:      "gemini-1.5-flash",
		Credential: "server-key",
		Timeout:    time.Minute,
	}, &http.Client{Transport: rt})
}

func TestComplete_SendsKeyPromptAndFrame(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	p := newTestProvider(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Spray "},{"text":"mancozeb."}]}}]}`), nil
	})

	text, err := p.Complete(context.Background(), upstream.Request{
		Prompt:          "How to treat late blight?",
		System:          "You are AgroShakti.",
		MaxOutputTokens: 1000,
		Temperature:     0.7,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Spray mancozeb." {
		t.Fatalf("Complete() = %q", text)
	}
	if gotPath != "/v1/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected upstream path: %s", gotPath)
	}
	if gotKey != "server-key" {
		t.Fatalf("expected key=server-key, got %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 1 {
		t.Fatalf("unexpected contents: %+v", gotBody.Contents)
	}
	if got := *gotBody.Contents[0].Parts[0].Text; got != "You are AgroShakti.\n\nHow to treat late blight?" {
		t.Fatalf("unexpected prompt text: %q", got)
	}
	if gotBody.GenerationConfig.MaxOutputTokens != 1000 {
		t.Fatalf("maxOutputTokens = %d", gotBody.GenerationConfig.MaxOutputTokens)
	}
}

func TestComplete_EnvelopeFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want upstream.Kind
	}{
		{"no candidates", `{"candidates":[]}`, upstream.KindMalformed},
		{"blocked", `{"promptFeedback":{"blockReason":"SAFETY"}}`, upstream.KindMalformed},
		{"no content", `{"candidates":[{"finishReason":"MAX_TOKENS"}]}`, upstream.KindMalformed},
		{"parts without text", `{"candidates":[{"content":{"parts":[{}]}}]}`, upstream.KindMalformed},
		{"blank text", `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, upstream.KindEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(func(r *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, tc.body), nil
			})
			_, err := p.Complete(context.Background(), upstream.Request{Prompt: "hi"})
			if got := upstream.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestComplete_QuotaCarriesRetryDelay(t *testing.T) {
	p := newTestProvider(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests,
			`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","details":[{"retryDelay":"20s"}]}}`), nil
	})
	_, err := p.Complete(context.Background(), upstream.Request{Prompt: "hi"})
	upErr, ok := err.(*upstream.Error)
	if !ok {
		t.Fatalf("expected *upstream.Error, got %T", err)
	}
	if upErr.Kind != upstream.KindQuota || upErr.RetryAfter != 20*time.Second {
		t.Fatalf("unexpected error: %+v", upErr)
	}
}

func TestComplete_VertexPublisherPath(t *testing.T) {
	var gotURL string
	p := NewProviderWithClient(catalog.Descriptor{
		Name:       "vertex",
		Kind:       catalog.KindVertex,
		Model:      "google/gemini-2.0-flash",
		Credential: "vertex-key",
	}, &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Irrigate at dawn."}]}}]}`), nil
	})})

	text, err := p.Complete(context.Background(), upstream.Request{Prompt: "When to irrigate?"})
	if err != nil || text != "Irrigate at dawn." {
		t.Fatalf("Complete() = %q, %v", text, err)
	}
	want := "https://aiplatform.googleapis.com/v1/publishers/google/models/gemini-2.0-flash:generateContent?key=vertex-key"
	if gotURL != want {
		t.Fatalf("url = %s, want %s", gotURL, want)
	}
}
