// Package keyproxy builds and executes JSON POSTs against key-authenticated
// inference endpoints, mapping transport and status failures onto the
// upstream error taxonomy.
package keyproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

// maxResponseBytes caps how much of a provider answer is buffered.
const maxResponseBytes = 4 << 20

// BuildUpstreamRequest creates a JSON POST by:
// - cloning the target query and injecting the server-side key (when set)
// - copying sanitized static headers
func BuildUpstreamRequest(
	ctx context.Context,
	target *url.URL,
	headers http.Header,
	body []byte,
	apiKey string,
) (*http.Request, error) {
	if target == nil {
		return nil, fmt.Errorf("target URL is required")
	}

	targetCopy := *target
	if key := strings.TrimSpace(apiKey); key != "" {
		query := CloneValues(target.Query())
		query.Set("key", key)
		targetCopy.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetCopy.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	CopyForwardHeaders(req.Header, headers)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func CloneValues(values url.Values) url.Values {
	cloned := make(url.Values, len(values))
	for k, arr := range values {
		cp := make([]string, len(arr))
		copy(cp, arr)
		cloned[k] = cp
	}
	return cloned
}

// CopyForwardHeaders copies headers except credentials and hop-by-hop ones.
func CopyForwardHeaders(dst, src http.Header) {
	for k, values := range src {
		canonical := http.CanonicalHeaderKey(k)
		if shouldSkipRequestHeader(canonical) {
			continue
		}
		for _, v := range values {
			dst.Add(canonical, v)
		}
	}
}

func shouldSkipRequestHeader(header string) bool {
	switch header {
	case "Authorization",
		"X-Goog-Api-Key",
		"Accept-Encoding",
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization":
		return true
	default:
		return false
	}
}

// PostJSON sends req and decodes a 2xx answer into out.
// Failures come back as *upstream.Error tagged with provider.
func PostJSON(ctx context.Context, client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return upstream.TransportError(provider, ctxErr)
		}
		return upstream.TransportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstream.StatusError(provider, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return upstream.TransportError(provider, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return upstream.MalformedError(provider, "decode response: %v", err)
	}
	return nil
}

// MarshalBody encodes payload for BuildUpstreamRequest.
func MarshalBody(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return body, nil
}
