// Package advisory turns a disease detection into a treatment prompt and
// resolves it into a cure recommendation.
package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

// CureMaxOutputTokens matches the length constraint written into the prompt.
const CureMaxOutputTokens = 1000

// SessionPrefix marks one-shot advisory sessions.
const SessionPrefix = "disease_cure_"

// Mode selects how cure advice is produced.
type Mode string

const (
	// ModeChat sends the advisory prompt through the chat fallback chain.
	ModeChat Mode = "chat"
	// ModeEndpoint asks the primary's dedicated cure endpoint first and uses
	// the chat chain when it fails.
	ModeEndpoint Mode = "endpoint"
)

// ParseMode defaults to ModeChat.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeEndpoint {
		return ModeEndpoint
	}
	return ModeChat
}

// Resolver is satisfied by *orchestrator.Orchestrator.
type Resolver interface {
	Complete(ctx context.Context, req upstream.Request) orchestrator.Result
}

// CureEndpoint is satisfied by the primary provider client.
type CureEndpoint interface {
	DiseaseCure(ctx context.Context, diseaseName string, confidence *float64, imageURL string) (string, error)
}

// Detection is what the vision model reported.
type Detection struct {
	DiseaseName string
	Confidence  *float64
	ImageURL    string
}

// Advice is the resolved recommendation.
type Advice struct {
	CureRecommendation string
	ProviderUsed       string
	Degraded           bool
	SessionID          string
}

type Synthesizer struct {
	resolver        Resolver
	endpoint        CureEndpoint
	endpointTimeout time.Duration
	mode            Mode
}

// NewSynthesizer builds a Synthesizer. endpoint may be nil, which forces
// ModeChat.
func NewSynthesizer(resolver Resolver, endpoint CureEndpoint, endpointTimeout time.Duration, mode Mode) *Synthesizer {
	if endpoint == nil {
		mode = ModeChat
	}
	return &Synthesizer{resolver: resolver, endpoint: endpoint, endpointTimeout: endpointTimeout, mode: mode}
}

// BuildAdvisory formats the treatment prompt for a detection.
func BuildAdvisory(d Detection) upstream.Request {
	name := strings.TrimSpace(d.DiseaseName)
	if name == "" {
		name = "Unknown"
	}
	confidence := "N/A"
	if d.Confidence != nil {
		confidence = fmt.Sprintf("%.3f", *d.Confidence)
	}

	var b strings.Builder
	b.WriteString("A vision model has detected the following on the farmer's crop:\n")
	fmt.Fprintf(&b, "- Disease name: %s\n", name)
	fmt.Fprintf(&b, "- Confidence score: %s\n", confidence)
	if img := strings.TrimSpace(d.ImageURL); img != "" {
		fmt.Fprintf(&b, "- Image URL (for reference): %s\n", img)
	}
	b.WriteString("\nBased on this, provide a clear, practical cure recommendation:\n")
	b.WriteString("1) Explain what this disease is in 2-3 lines.\n")
	b.WriteString("2) List step-by-step treatment actions (exact sprays/chemicals or organic options, with dosage if known).\n")
	b.WriteString("3) Mention precautions and follow-up monitoring.\n")
	b.WriteString("4) If the diagnosis might be wrong, mention what the farmer should double-check.\n")
	b.WriteString("\nGive a complete answer for this cure in less than 1000 tokens.")

	return upstream.Request{
		Prompt:          b.String(),
		SessionID:       NewSessionID(),
		MaxOutputTokens: CureMaxOutputTokens,
		Temperature:     upstream.DefaultTemperature,
	}
}

// NewSessionID returns a fresh one-shot advisory session id.
func NewSessionID() string {
	return SessionPrefix + uuid.NewString()
}

// Recommend resolves the detection into advice. Like the orchestrator it
// always returns a result; the text is passed through unchanged.
func (s *Synthesizer) Recommend(ctx context.Context, d Detection) Advice {
	req := BuildAdvisory(d)

	if s.mode == ModeEndpoint {
		text, err := s.fromEndpoint(ctx, d)
		if err == nil {
			return Advice{CureRecommendation: text, ProviderUsed: orchestrator.ProviderPrimary, SessionID: req.SessionID}
		}
		logging.FromContext(ctx).Warn().
			Str("kind", string(upstream.KindOf(err))).
			Err(err).
			Msg("Cure endpoint failed, using chat chain")
	}

	res := s.resolver.Complete(ctx, req)
	return Advice{
		CureRecommendation: res.Text,
		ProviderUsed:       res.ProviderUsed,
		Degraded:           res.Degraded,
		SessionID:          req.SessionID,
	}
}

func (s *Synthesizer) fromEndpoint(ctx context.Context, d Detection) (string, error) {
	if s.endpointTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.endpointTimeout)
		defer cancel()
	}
	text, err := s.endpoint.DiseaseCure(ctx, d.DiseaseName, d.Confidence, d.ImageURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", upstream.EmptyError(orchestrator.ProviderPrimary)
	}
	return text, nil
}
