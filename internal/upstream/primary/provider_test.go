package primary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

func newTestProvider(t *testing.T, d catalog.Descriptor, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	d.BaseURL = srv.URL
	if d.Timeout == 0 {
		d.Timeout = 5 * time.Second
	}
	return NewProvider(context.Background(), d)
}

func TestComplete_PostsMessageAndSession(t *testing.T) {
	var got chatRequest
	var gotPath string
	p := newTestProvider(t, catalog.Descriptor{Name: "primary"}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = io.WriteString(w, `{"success":true,"response":"Irrigate every 7 days.","session_id":"s1","model":"alpaca"}`)
	})

	text, err := p.Complete(context.Background(), upstream.Request{Prompt: "wheat irrigation", SessionID: "s1", System: "ignored"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "Irrigate every 7 days." {
		t.Fatalf("Complete() = %q", text)
	}
	if gotPath != "/chatbot" || got.Message != "wheat irrigation" || got.SessionID != "s1" {
		t.Fatalf("unexpected request %s %+v", gotPath, got)
	}
}

func TestComplete_EnvelopeFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want upstream.Kind
	}{
		{"missing response", `{"success":true}`, upstream.KindMalformed},
		{"reported failure", `{"success":false,"error":"model not loaded"}`, upstream.KindMalformed},
		{"not json", `Internal error`, upstream.KindMalformed},
		{"blank response", `{"success":true,"response":"  "}`, upstream.KindEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, catalog.Descriptor{Name: "primary"}, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := p.Complete(context.Background(), upstream.Request{Prompt: "hi"})
			if got := upstream.KindOf(err); got != tc.want {
				t.Fatalf("kind = %q, want %q (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestComplete_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, catalog.Descriptor{Name: "primary", Timeout: 50 * time.Millisecond}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := p.Complete(context.Background(), upstream.Request{Prompt: "hi"})
	if got := upstream.KindOf(err); got != upstream.KindTransient {
		t.Fatalf("kind = %q, want transient (err %v)", got, err)
	}
}

func TestDiseaseCure(t *testing.T) {
	var got cureRequest
	p := newTestProvider(t, catalog.Descriptor{Name: "primary", Credential: "svc-key"}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/disease-cure" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "svc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = io.WriteString(w, `{"success":true,"cure_recommendation":"Apply copper oxychloride."}`)
	})

	conf := 0.91
	text, err := p.DiseaseCure(context.Background(), "Tomato Early Blight", &conf, "https://img/1.jpg")
	if err != nil {
		t.Fatalf("DiseaseCure() error = %v", err)
	}
	if text != "Apply copper oxychloride." {
		t.Fatalf("DiseaseCure() = %q", text)
	}
	if got.DiseaseName != "Tomato Early Blight" || got.Confidence == nil || *got.Confidence != 0.91 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestComplete_OAuthClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	var gotAuth string
	p := newTestProvider(t, catalog.Descriptor{
		Name: "primary",
		OAuth: &catalog.OAuth{
			TokenURL:     tokenSrv.URL,
			ClientID:     "agro-backend",
			ClientSecret: "secret",
		},
	}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"success":true,"response":"ok"}`)
	})

	if _, err := p.Complete(context.Background(), upstream.Request{Prompt: "hi"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.EqualFold(gotAuth, "Bearer tok-123") {
		t.Fatalf("expected bearer token from client credentials, got %q", gotAuth)
	}
}
