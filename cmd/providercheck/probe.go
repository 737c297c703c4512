package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agroshakti/agroshakti-backend/internal/orchestrator"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
)

type probeResult struct {
	Name     string
	Kind     catalog.Kind
	Enabled  bool
	OK       bool
	Failure  upstream.Kind
	Duration time.Duration
	Detail   string
}

type target struct {
	desc   catalog.Descriptor
	client upstream.Provider // nil when disabled
}

// probe sends prompt once to every enabled target. Targets are probed with
// at most parallel calls in flight; results keep the input order.
func probe(ctx context.Context, targets []target, prompt string, parallel int) []probeResult {
	results := make([]probeResult, len(targets))
	if parallel < 1 {
		parallel = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, t := range targets {
		i, t := i, t
		if t.client == nil {
			results[i] = probeResult{Name: t.desc.Name, Kind: t.desc.Kind, Detail: "disabled (missing or placeholder credential)"}
			continue
		}
		g.Go(func() error {
			r := probeOne(gctx, t, prompt)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func probeOne(ctx context.Context, t target, prompt string) probeResult {
	res := probeResult{Name: t.desc.Name, Kind: t.desc.Kind, Enabled: true}

	timeout := t.desc.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := upstream.Request{Prompt: prompt, SessionID: "providercheck_" + uuid.NewString(), MaxOutputTokens: 64}.WithDefaults()
	if t.desc.Kind != catalog.KindPrimary {
		req.System = t.desc.SystemPrompt
		if req.System == "" {
			req.System = orchestrator.DefaultPreamble
		}
	}

	start := time.Now()
	text, err := t.client.Complete(ctx, req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Failure = upstream.KindOf(err)
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = strings.Join(strings.Fields(text), " ")
	return res
}
