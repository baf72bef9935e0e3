package platforms

import (
	"context"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

// Registry manages the configured platform adapters.
type Registry struct {
	order    []market.Platform
	adapters map[market.Platform]Adapter
	log      *logger.Logger
}

// NewRegistry builds a registry preserving adapter order for listings.
func NewRegistry(log *logger.Logger, adapters ...Adapter) *Registry {
	if log == nil {
		log = logger.NewDefault("platforms")
	}
	r := &Registry{
		adapters: make(map[market.Platform]Adapter, len(adapters)),
		log:      log,
	}
	for _, a := range adapters {
		slug := a.Info().Slug
		r.order = append(r.order, slug)
		r.adapters[slug] = a
	}
	return r
}

// Get returns the adapter for a platform slug.
func (r *Registry) Get(slug string) (Adapter, bool) {
	a, ok := r.adapters[market.Platform(slug)]
	return a, ok
}

// Slugs returns the platform slugs in registration order.
func (r *Registry) Slugs() []market.Platform {
	out := make([]market.Platform, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.adapters[slug])
	}
	return out
}

// ListInfo returns adapter descriptors for the /platforms endpoint.
func (r *Registry) ListInfo() []Info {
	out := make([]Info, 0, len(r.order))
	for _, a := range r.All() {
		out = append(out, a.Info())
	}
	return out
}

// InitializeAll brings up every adapter. A failing adapter is logged and
// skipped so one broken venue does not take the service down.
func (r *Registry) InitializeAll(ctx context.Context) {
	for _, a := range r.All() {
		info := a.Info()
		if err := a.Initialize(ctx); err != nil {
			r.log.WithError(err).Warnf("failed to initialize platform %s", info.Name)
			continue
		}
		r.log.Infof("initialized platform: %s", info.Name)
	}
}

// CloseAll shuts down every adapter, ignoring individual failures.
func (r *Registry) CloseAll() {
	for _, a := range r.All() {
		_ = a.Close()
	}
}
