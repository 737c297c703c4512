// Package claude calls the Anthropic Messages API through anthropic-sdk-go.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

const (
	defaultModel   = "claude-3-5-haiku-latest"
	defaultTimeout = 60 * time.Second
)

type Provider struct {
	name   string
	model  string
	client anthropic.Client
}

func NewProvider(d catalog.Descriptor) *Provider {
	return NewProviderWithClient(d, nil)
}

func NewProviderWithClient(d catalog.Descriptor, httpClient *http.Client) *Provider {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(timeout)
	}
	model := strings.TrimSpace(d.Model)
	if model == "" {
		model = defaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(d.Credential)),
		option.WithHTTPClient(httpClient),
		// one call per attempt; the orchestrator owns fallback
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(d.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	for k, v := range d.StaticHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &Provider{
		name:   d.Name,
		model:  model,
		client: anthropic.NewClient(opts...),
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Complete(ctx context.Context, req upstream.Request) (string, error) {
	req = req.WithDefaults()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(req.MaxOutputTokens),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt))},
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.classify(ctx, err)
	}
	if message == nil || len(message.Content) == 0 {
		return "", upstream.MalformedError(p.name, "message has no content blocks")
	}

	var b strings.Builder
	found := false
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			found = true
			b.WriteString(tb.Text)
		}
	}
	if !found {
		return "", upstream.MalformedError(p.name, "message has no text blocks (stop reason %q)", message.StopReason)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", upstream.EmptyError(p.name)
	}
	return text, nil
}

func (p *Provider) classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &apiErr):
		return &upstream.Error{
			Provider: p.name,
			Kind:     upstream.KindForStatus(apiErr.StatusCode),
			Status:   apiErr.StatusCode,
			Err:      err,
		}
	case errors.As(err, &syntaxErr):
		return upstream.MalformedError(p.name, "decode response: %v", err)
	case ctx.Err() != nil:
		return upstream.TransportError(p.name, ctx.Err())
	default:
		return upstream.TransportError(p.name, err)
	}
}
