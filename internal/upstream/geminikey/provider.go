// Package geminikey calls Gemini generateContent with a server-side API key,
// either on Google AI Studio or on Vertex AI.
package geminikey

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/keyproxy"
)

const (
	defaultBaseURL       = "https://generativelanguage.googleapis.com"
	defaultVertexBaseURL = "https://aiplatform.googleapis.com"
	defaultModel         = "gemini-1.5-flash"
	defaultTimeout       = 60 * time.Second
)

type part struct {
	Text *string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *content `json:"content"`
		FinishReason string   `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Provider issues generateContent calls.
type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	vertex     bool
	headers    http.Header
	httpClient *http.Client
}

// NewProvider creates a Provider from a catalog descriptor.
func NewProvider(d catalog.Descriptor) *Provider {
	return NewProviderWithClient(d, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(d catalog.Descriptor, httpClient *http.Client) *Provider {
	vertex := d.Kind == catalog.KindVertex
	baseURL := strings.TrimSpace(d.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
		if vertex {
			baseURL = defaultVertexBaseURL
		}
	}
	model := strings.TrimPrefix(strings.TrimSpace(d.Model), "google/")
	if model == "" {
		model = defaultModel
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(timeout)
	}
	headers := http.Header{}
	for k, v := range d.StaticHeaders {
		headers.Set(k, v)
	}
	return &Provider{
		name:       d.Name,
		apiKey:     strings.TrimSpace(d.Credential),
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		vertex:     vertex,
		headers:    headers,
		httpClient: httpClient,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Complete sends the prompt, with the instruction frame prepended as the
// first part, and returns the concatenated text of the first candidate.
func (p *Provider) Complete(ctx context.Context, req upstream.Request) (string, error) {
	req = req.WithDefaults()

	target, err := url.Parse(p.endpoint())
	if err != nil {
		return "", upstream.MalformedError(p.name, "invalid target URL: %v", err)
	}

	body, err := keyproxy.MarshalBody(buildRequest(req))
	if err != nil {
		return "", &upstream.Error{Provider: p.name, Kind: upstream.KindMalformed, Err: err}
	}

	httpReq, err := keyproxy.BuildUpstreamRequest(ctx, target, p.headers, body, p.apiKey)
	if err != nil {
		return "", upstream.TransportError(p.name, err)
	}

	var resp generateResponse
	if err := keyproxy.PostJSON(ctx, p.httpClient, p.name, httpReq, &resp); err != nil {
		return "", err
	}
	return p.extractText(resp)
}

// endpoint maps the model onto AI Studio's /v1/models or Vertex's publisher
// path.
func (p *Provider) endpoint() string {
	if p.vertex {
		return fmt.Sprintf("%s/v1/publishers/google/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
	}
	return fmt.Sprintf("%s/v1/models/%s:generateContent", p.baseURL, url.PathEscape(p.model))
}

func buildRequest(req upstream.Request) generateRequest {
	text := req.Prompt
	if system := strings.TrimSpace(req.System); system != "" {
		text = system + "\n\n" + req.Prompt
	}
	return generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: &text}}}},
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
}

func (p *Provider) extractText(resp generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", upstream.MalformedError(p.name, "prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", upstream.MalformedError(p.name, "response has no candidates")
	}
	c := resp.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 {
		return "", upstream.MalformedError(p.name, "candidate has no content parts (finish reason %q)", resp.Candidates[0].FinishReason)
	}

	var b strings.Builder
	found := false
	for _, pt := range c.Parts {
		if pt.Text == nil {
			continue
		}
		found = true
		b.WriteString(*pt.Text)
	}
	if !found {
		return "", upstream.MalformedError(p.name, "candidate parts carry no text")
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", upstream.EmptyError(p.name)
	}
	return text, nil
}
