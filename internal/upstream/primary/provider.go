// Package primary talks to the in-house ML inference service: the chatbot
// endpoint that backs every chat turn and the dedicated disease-cure
// endpoint.
package primary

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/keyproxy"
)

const defaultTimeout = 30 * time.Second

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Success   *bool   `json:"success"`
	Response  *string `json:"response"`
	SessionID string  `json:"session_id"`
	Model     string  `json:"model"`
	Error     string  `json:"error"`
}

type cureRequest struct {
	DiseaseName string   `json:"disease_name"`
	Confidence  *float64 `json:"confidence,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

type cureResponse struct {
	Success            *bool   `json:"success"`
	CureRecommendation *string `json:"cure_recommendation"`
	Error              string  `json:"error"`
}

// Provider is the primary inference service client.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	headers    http.Header
	httpClient *http.Client
}

// NewProvider builds the client. When the descriptor carries OAuth
// client-credentials, requests are authorized with a cached bearer token.
func NewProvider(ctx context.Context, d catalog.Descriptor) *Provider {
	return NewProviderWithClient(ctx, d, nil)
}

func NewProviderWithClient(ctx context.Context, d catalog.Descriptor, httpClient *http.Client) *Provider {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(timeout)
	}
	if d.OAuth != nil {
		cfg := clientcredentials.Config{
			ClientID:     d.OAuth.ClientID,
			ClientSecret: d.OAuth.ClientSecret,
			TokenURL:     d.OAuth.TokenURL,
			Scopes:       d.OAuth.Scopes,
		}
		oauthClient := cfg.Client(context.WithValue(ctx, oauth2.HTTPClient, httpClient))
		oauthClient.Timeout = httpClient.Timeout
		httpClient = oauthClient
	}

	headers := http.Header{}
	for k, v := range d.StaticHeaders {
		headers.Set(k, v)
	}

	name := d.Name
	if name == "" {
		name = catalog.PrimaryID
	}
	return &Provider{
		name:       name,
		baseURL:    strings.TrimRight(strings.TrimSpace(d.BaseURL), "/"),
		apiKey:     strings.TrimSpace(d.Credential),
		headers:    headers,
		httpClient: httpClient,
	}
}

func (p *Provider) Name() string {
	return p.name
}

// Complete posts the prompt to /chatbot. The service applies its own
// instruction frame, so req.System is ignored.
func (p *Provider) Complete(ctx context.Context, req upstream.Request) (string, error) {
	var resp chatResponse
	if err := p.post(ctx, "/chatbot", chatRequest{Message: req.Prompt, SessionID: req.SessionID}, &resp); err != nil {
		return "", err
	}
	if resp.Success != nil && !*resp.Success {
		return "", upstream.MalformedError(p.name, "service reported failure: %s", strings.TrimSpace(resp.Error))
	}
	if resp.Response == nil {
		return "", upstream.MalformedError(p.name, "response field missing")
	}
	text := strings.TrimSpace(*resp.Response)
	if text == "" {
		return "", upstream.EmptyError(p.name)
	}
	return text, nil
}

// DiseaseCure asks the dedicated cure endpoint for treatment advice.
func (p *Provider) DiseaseCure(ctx context.Context, diseaseName string, confidence *float64, imageURL string) (string, error) {
	var resp cureResponse
	body := cureRequest{DiseaseName: diseaseName, Confidence: confidence, ImageURL: imageURL}
	if err := p.post(ctx, "/disease-cure", body, &resp); err != nil {
		return "", err
	}
	if resp.Success != nil && !*resp.Success {
		return "", upstream.MalformedError(p.name, "service reported failure: %s", strings.TrimSpace(resp.Error))
	}
	if resp.CureRecommendation == nil {
		return "", upstream.MalformedError(p.name, "cure_recommendation field missing")
	}
	text := strings.TrimSpace(*resp.CureRecommendation)
	if text == "" {
		return "", upstream.EmptyError(p.name)
	}
	return text, nil
}

func (p *Provider) post(ctx context.Context, path string, payload any, out any) error {
	target, err := url.Parse(p.baseURL + path)
	if err != nil {
		return upstream.MalformedError(p.name, "invalid base URL: %v", err)
	}
	body, err := keyproxy.MarshalBody(payload)
	if err != nil {
		return &upstream.Error{Provider: p.name, Kind: upstream.KindMalformed, Err: err}
	}
	req, err := keyproxy.BuildUpstreamRequest(ctx, target, p.headers, body, "")
	if err != nil {
		return upstream.TransportError(p.name, err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
	return keyproxy.PostJSON(ctx, p.httpClient, p.name, req, out)
}
