// Package registry turns catalog descriptors into provider clients.
package registry

import (
	"context"
	"fmt"

	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/claude"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/geminikey"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/openaicompat"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/primary"
)

// Set holds one client per enabled descriptor.
type Set struct {
	Primary *primary.Provider // nil when the primary is disabled
	Backups map[string]upstream.Provider
}

// Build creates clients for the primary (if enabled) and every enabled backup.
// Disabled descriptors never get a client.
func Build(ctx context.Context, cat *catalog.Catalog) (*Set, error) {
	set := &Set{Backups: map[string]upstream.Provider{}}

	if d := cat.Primary(); d.Enabled {
		set.Primary = primary.NewProvider(ctx, d)
	}

	for _, d := range cat.Candidates() {
		p, err := New(d)
		if err != nil {
			return nil, err
		}
		set.Backups[d.Name] = p
	}
	return set, nil
}

// PrimaryProvider returns the primary as an upstream.Provider, or a nil
// interface when it is disabled.
func (s *Set) PrimaryProvider() upstream.Provider {
	if s.Primary == nil {
		return nil
	}
	return s.Primary
}

// New creates the adapter matching a backup descriptor's kind.
func New(d catalog.Descriptor) (upstream.Provider, error) {
	switch d.Kind {
	case catalog.KindGemini, catalog.KindVertex:
		return geminikey.NewProvider(d), nil
	case catalog.KindOpenAI:
		return openaicompat.NewProvider(d), nil
	case catalog.KindAnthropic:
		return claude.NewProvider(d), nil
	case catalog.KindPrimary:
		return primary.NewProvider(context.Background(), d), nil
	default:
		return nil, fmt.Errorf("provider %q: no adapter for kind %q", d.Name, d.Kind)
	}
}
