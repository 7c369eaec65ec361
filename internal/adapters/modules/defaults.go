package modules

import (
	"net/http"
	"time"
)

// DefaultRegistryOptions selects between the demo and live module sets.
type DefaultRegistryOptions struct {
	// Demo registers simulated modules only.
	Demo bool
	// DemoDelay is the unit pause of simulated modules.
	DemoDelay time.Duration

	Resolver     Resolver
	TavilyAPIKey string
	TavilyURL    string
	HTTPClient   *http.Client
}

// NewDefaultRegistry builds the registry used by the worker. Outside demo mode
// resolve and webSearch run live while the remaining modules stay simulated.
func NewDefaultRegistry(opts DefaultRegistryOptions) (*Registry, error) {
	demo := DemoModules(opts.DemoDelay)
	if opts.Demo {
		return NewRegistry(demo...)
	}

	mods := []Module{
		NewResolve(opts.Resolver),
		NewWebSearch(WebSearchOptions{
			APIKey:     opts.TavilyAPIKey,
			BaseURL:    opts.TavilyURL,
			HTTPClient: opts.HTTPClient,
		}),
	}
	for _, m := range demo {
		if m.Name() == NameResolve || m.Name() == NameWebSearch {
			continue
		}
		mods = append(mods, m)
	}
	return NewRegistry(mods...)
}
