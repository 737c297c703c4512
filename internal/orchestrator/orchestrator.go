// Package orchestrator resolves a prompt into exactly one answer: the primary
// inference service first, then the enabled backups in catalog order, and a
// fixed apology when every candidate failed.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/util"
)

const (
	ProviderPrimary = catalog.PrimaryID
	ProviderNone    = "none"
)

// SafeFailureMessage is returned when no provider produced an answer.
const SafeFailureMessage = "Sorry, AgroShakti is unable to answer right now because all advisory services are busy. Please try again in a few minutes."

// DefaultPreamble frames backup providers that have no system prompt of their own.
const DefaultPreamble = `You are AgroShakti, an AI-powered agricultural assistant created to help Indian farmers.
You are an expert in agriculture, farming schemes, crop management, soil health, irrigation,
pest and disease control, weather-based advisories, and government programs such as KCC.

Follow these rules strictly:
1. Provide accurate, practical, and farmer-friendly advice.
2. Use simple language that is easy for farmers to understand.
3. Explain concepts step by step.
4. Give examples, best practices, and precautions.
5. Do not give unsafe chemical dosages. If unsure, clearly say so.

Always respond as AgroShakti with a supportive tone.`

var tracer = otel.Tracer("agroshakti/orchestrator")

// Result is the single outcome of a resolve call.
type Result struct {
	Text         string
	ProviderUsed string
	Degraded     bool
}

// Attempt describes one provider call.
type Attempt struct {
	Provider  string
	SessionID string
	Fallback  bool
	StartedAt time.Time
	Duration  time.Duration
	Err       error // nil on success
}

// Kind is the failure kind, empty on success.
func (a Attempt) Kind() upstream.Kind {
	if a.Err == nil {
		return ""
	}
	return upstream.KindOf(a.Err)
}

// Observer is notified synchronously after every attempt. Implementations
// must not block.
type Observer interface {
	ObserveAttempt(ctx context.Context, a Attempt)
}

type Options struct {
	// Deadline bounds the whole chain when > 0. Off by default: each attempt
	// is bounded only by its provider's own timeout.
	Deadline time.Duration
	Observer Observer
}

type Orchestrator struct {
	primary        upstream.Provider
	primaryTimeout time.Duration
	candidates     []catalog.Descriptor
	backups        map[string]upstream.Provider
	opts           Options
}

// New wires the orchestrator. primary may be nil when the primary service is
// disabled; backups are keyed by descriptor name.
func New(cat *catalog.Catalog, primary upstream.Provider, backups map[string]upstream.Provider, opts Options) *Orchestrator {
	clients := make(map[string]upstream.Provider, len(backups))
	for k, v := range backups {
		clients[k] = v
	}
	return &Orchestrator{
		primary:        primary,
		primaryTimeout: cat.Primary().Timeout,
		candidates:     cat.Candidates(),
		backups:        clients,
		opts:           opts,
	}
}

// Resolve runs the chat prompt through the chain. It never fails.
func (o *Orchestrator) Resolve(ctx context.Context, prompt, sessionID string) Result {
	return o.Complete(ctx, upstream.Request{Prompt: prompt, SessionID: sessionID})
}

// Complete is Resolve with explicit sampling parameters.
func (o *Orchestrator) Complete(ctx context.Context, req upstream.Request) Result {
	ctx, span := tracer.Start(ctx, "orchestrator.resolve", trace.WithAttributes(
		attribute.String("agroshakti.session_id", req.SessionID),
	))
	defer span.End()

	logger := logging.FromContext(ctx)

	if strings.TrimSpace(req.Prompt) == "" {
		logger.Warn().Str("session_id", req.SessionID).Msg("empty prompt, returning safe failure")
		span.SetAttributes(attribute.String("agroshakti.provider_used", ProviderNone))
		return safeFailure()
	}

	if o.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Deadline)
		defer cancel()
	}

	result := o.run(ctx, req, logger)
	span.SetAttributes(
		attribute.String("agroshakti.provider_used", result.ProviderUsed),
		attribute.Bool("agroshakti.degraded", result.Degraded),
	)
	if result.ProviderUsed == ProviderNone {
		span.SetStatus(codes.Error, "all providers failed")
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, req upstream.Request, logger *zerolog.Logger) Result {
	if o.primary != nil {
		primaryReq := req
		primaryReq.System = ""
		text, err := o.attempt(ctx, o.primary, o.primaryTimeout, primaryReq, false)
		if err == nil {
			return Result{Text: text, ProviderUsed: ProviderPrimary}
		}
		warnFailure(logger, o.primary.Name(), err).Msg("Primary inference failed, falling back")
	}

	tried := 0
	for _, desc := range o.candidates {
		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Int("tried", tried).Msg("Fallback chain cut short by context")
			break
		}
		client, ok := o.backups[desc.Name]
		if !ok {
			continue
		}
		tried++

		backupReq := req
		backupReq.System = desc.SystemPrompt
		if backupReq.System == "" {
			backupReq.System = DefaultPreamble
		}

		text, err := o.attempt(ctx, client, desc.Timeout, backupReq, true)
		if err == nil {
			logger.Info().Str("provider", desc.Name).Int("attempt", tried).Msg("Fallback provider answered")
			return Result{Text: text, ProviderUsed: desc.Name, Degraded: true}
		}
		warnFailure(logger, desc.Name, err).Msg("Provider call failed, trying next")
	}

	logger.Error().Int("backups_tried", tried).Msg("All providers failed, returning safe failure")
	return safeFailure()
}

// warnFailure carries the provider's retry hint when one was sent.
func warnFailure(logger *zerolog.Logger, provider string, err error) *zerolog.Event {
	ev := logger.Warn().
		Str("provider", provider).
		Str("kind", string(upstream.KindOf(err))).
		Err(err)
	if d := upstream.RetryAfterOf(err); d > 0 {
		ev = ev.Dur("retry_after", d)
	}
	return ev
}

// attempt performs one bounded call. Panics in an adapter count as a
// transient failure of that provider.
func (o *Orchestrator) attempt(ctx context.Context, p upstream.Provider, timeout time.Duration, req upstream.Request, fallback bool) (text string, err error) {
	name := p.Name()
	ctx, span := tracer.Start(ctx, "orchestrator.attempt", trace.WithAttributes(
		attribute.String("agroshakti.provider", name),
		attribute.Bool("agroshakti.fallback", fallback),
	))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &upstream.Error{Provider: name, Kind: upstream.KindTransient, Err: fmt.Errorf("panic: %v", r)}
			text = ""
		}
		if err == nil && strings.TrimSpace(text) == "" {
			err = upstream.EmptyError(name)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(upstream.KindOf(err)))
		} else {
			logging.FromContext(ctx).Debug().
				Str("provider", name).
				Str("answer", util.TruncateLog(text, 160)).
				Msg("Provider answered")
		}
		if o.opts.Observer != nil {
			o.opts.Observer.ObserveAttempt(ctx, Attempt{
				Provider:  name,
				SessionID: req.SessionID,
				Fallback:  fallback,
				StartedAt: started,
				Duration:  time.Since(started),
				Err:       err,
			})
		}
	}()

	return p.Complete(ctx, req)
}

func safeFailure() Result {
	return Result{Text: SafeFailureMessage, ProviderUsed: ProviderNone, Degraded: true}
}
