// Package openaicompat calls OpenAI-compatible chat completion APIs (Groq,
// OpenRouter and similar) through go-openai.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

const defaultTimeout = 60 * time.Second

// headerTransport sets static attribution headers (OpenRouter wants
// HTTP-Referer and X-Title) on every outbound request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range t.headers {
			req.Header.Set(k, v)
		}
	}
	if t.base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// Provider issues one chat completion per call.
type Provider struct {
	name   string
	model  string
	client *openai.Client
}

func NewProvider(d catalog.Descriptor) *Provider {
	return NewProviderWithClient(d, nil)
}

// NewProviderWithClient wraps httpClient's transport with the static header
// injector. A nil httpClient gets a fresh one bounded by the descriptor timeout.
func NewProviderWithClient(d catalog.Descriptor, httpClient *http.Client) *Provider {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(timeout)
	}
	headers := make(map[string]string, len(d.StaticHeaders))
	for k, v := range d.StaticHeaders {
		headers[k] = v
	}

	config := openai.DefaultConfig(strings.TrimSpace(d.Credential))
	if baseURL := strings.TrimRight(strings.TrimSpace(d.BaseURL), "/"); baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{
		Timeout:   httpClient.Timeout,
		Transport: &headerTransport{base: httpClient.Transport, headers: headers},
	}

	return &Provider{
		name:   d.Name,
		model:  strings.TrimSpace(d.Model),
		client: openai.NewClientWithConfig(config),
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req upstream.Request) (string, error) {
	req = req.WithDefaults()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", p.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", upstream.MalformedError(p.name, "response has no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", upstream.EmptyError(p.name)
	}
	return text, nil
}

func (p *Provider) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &apiErr):
		return &upstream.Error{
			Provider: p.name,
			Kind:     upstream.KindForStatus(apiErr.HTTPStatusCode),
			Status:   apiErr.HTTPStatusCode,
			Err:      errors.New(apiErr.Message),
		}
	case errors.As(err, &reqErr):
		return &upstream.Error{
			Provider: p.name,
			Kind:     upstream.KindForStatus(reqErr.HTTPStatusCode),
			Status:   reqErr.HTTPStatusCode,
			Err:      reqErr,
		}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return upstream.MalformedError(p.name, "decode response: %v", err)
	case ctx.Err() != nil:
		return upstream.TransportError(p.name, ctx.Err())
	default:
		return upstream.TransportError(p.name, err)
	}
}
