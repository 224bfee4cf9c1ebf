package provider

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/lysyi3m/claude-rss-reader/app/cfg"
)

type Constructor func(config cfg.ProviderConfig, opts Options) (Provider, error)

// Registry maps a provider name from the config file to its constructor.
type Registry struct {
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// DefaultRegistry knows every provider shipped with the reader.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ReadwiseName, func(config cfg.ProviderConfig, opts Options) (Provider, error) {
		return NewReadwise(config, opts)
	})
	r.Register(RSSName, func(config cfg.ProviderConfig, opts Options) (Provider, error) {
		return NewRSS(config, opts)
	})
	return r
}

func (r *Registry) Register(name string, constructor Constructor) {
	r.constructors[name] = constructor
}

func (r *Registry) Build(name string, config cfg.ProviderConfig, opts Options) (Provider, error) {
	constructor, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	p, err := constructor(config, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Available returns the registered provider names, sorted.
func (r *Registry) Available() []string {
	names := lo.Keys(r.constructors)
	slices.Sort(names)
	return names
}

// BuildEnabled constructs every enabled provider. Providers that fail to
// build are logged and left out.
func (r *Registry) BuildEnabled(configs map[string]cfg.ProviderConfig, opts Options) []Provider {
	names := lo.Keys(configs)
	slices.Sort(names)

	providers := make([]Provider, 0, len(names))
	for _, name := range names {
		config := configs[name]
		if !config.Enabled {
			slog.Debug("Provider disabled, skipping", "provider", name)
			continue
		}

		p, err := r.Build(name, config, opts)
		if err != nil {
			slog.Error("Failed to initialize provider", "provider", name, "error", err)
			continue
		}

		slog.Info("Initialized provider", "provider", name)
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		slog.Warn("No providers enabled", "paths", cfg.DefaultConfigPaths())
	}

	return providers
}
