// Package translate renders English answers into the farmer's language.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/text/language"

	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/keyproxy"
)

const (
	DefaultEndpoint = "https://libretranslate.de/translate"
	defaultTimeout  = 15 * time.Second
	sourceLanguage  = "en"
)

// Translator translates English text into target (an ISO 639-1 code).
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// NormalizeLanguage reduces a BCP 47 tag such as "hi-IN" to its base ISO 639
// code.
func NormalizeLanguage(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", false
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", false
	}
	base, conf := t.Base()
	if conf == language.No {
		return "", false
	}
	return base.String(), true
}

// NeedsTranslation reports whether an answer must be translated for lang.
func NeedsTranslation(lang string) bool {
	code, ok := NormalizeLanguage(lang)
	return ok && code != sourceLanguage
}

// OrKeep translates text into lang and keeps the English text when
// translation is not needed or fails.
func OrKeep(ctx context.Context, t Translator, text, lang string) string {
	if t == nil || !NeedsTranslation(lang) {
		return text
	}
	code, _ := NormalizeLanguage(lang)
	translated, err := t.Translate(ctx, text, code)
	if err != nil {
		logging.FromContext(ctx).Warn().Str("language", code).Err(err).Msg("Translation failed, keeping English answer")
		return text
	}
	return translated
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// LibreTranslate is a client for a LibreTranslate instance.
type LibreTranslate struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewLibreTranslate(endpoint, apiKey string, httpClient *http.Client) *LibreTranslate {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(defaultTimeout)
	}
	return &LibreTranslate{
		endpoint:   strings.TrimSpace(endpoint),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
}

func (l *LibreTranslate) Translate(ctx context.Context, text, target string) (string, error) {
	code, ok := NormalizeLanguage(target)
	if !ok {
		return "", fmt.Errorf("unsupported target language %q", target)
	}
	if strings.TrimSpace(text) == "" || code == sourceLanguage {
		return text, nil
	}

	endpoint, err := url.Parse(l.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid translate endpoint: %w", err)
	}
	body, err := keyproxy.MarshalBody(libreRequest{Q: text, Source: sourceLanguage, Target: code, Format: "text", APIKey: l.apiKey})
	if err != nil {
		return "", err
	}
	req, err := keyproxy.BuildUpstreamRequest(ctx, endpoint, nil, body, "")
	if err != nil {
		return "", err
	}

	var raw json.RawMessage
	if err := keyproxy.PostJSON(ctx, l.httpClient, "libretranslate", req, &raw); err != nil {
		return "", err
	}

	result := gjson.GetBytes(raw, "translatedText")
	if !result.Exists() {
		if msg := gjson.GetBytes(raw, "error").String(); msg != "" {
			return "", fmt.Errorf("libretranslate: %s", msg)
		}
		return "", fmt.Errorf("libretranslate: translatedText missing")
	}
	translated := strings.TrimSpace(result.String())
	if translated == "" {
		return "", fmt.Errorf("libretranslate: empty translation")
	}
	return translated, nil
}
