package connector

import (
	"fmt"
)

// SourceFactory builds a source connector from a source's validated
// connection params.
type SourceFactory func(params map[string]any) (Source, error)

// FeatureFactory builds a feature connector.
type FeatureFactory func() (Feature, error)

// Registry maps connector names to factories. It is built once at startup
// and passed by injection; nothing registers itself lazily at use time.
type Registry struct {
	sources  map[string]SourceFactory
	features map[string]FeatureFactory
}

func NewRegistry() *Registry {
	return &Registry{
		sources:  make(map[string]SourceFactory),
		features: make(map[string]FeatureFactory),
	}
}

func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register source: empty name or nil factory")
	}
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("register source: %q already registered", name)
	}
	r.sources[name] = factory
	return nil
}

func (r *Registry) RegisterFeature(name string, factory FeatureFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("register feature: empty name or nil factory")
	}
	if _, exists := r.features[name]; exists {
		return fmt.Errorf("register feature: %q already registered", name)
	}
	r.features[name] = factory
	return nil
}

// Source instantiates the named source connector with the given connection
// params. The factory validates params and returns a structured error for a
// malformed configuration.
func (r *Registry) Source(name string, params map[string]any) (Source, error) {
	factory, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("source connector %q: %w", name, ErrNotRegistered)
	}
	return factory(params)
}

func (r *Registry) Feature(name string) (Feature, error) {
	factory, ok := r.features[name]
	if !ok {
		return nil, fmt.Errorf("feature connector %q: %w", name, ErrNotRegistered)
	}
	return factory()
}

// SourceNames lists the registered source connector names.
func (r *Registry) SourceNames() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	return names
}

// FeatureNames lists the registered feature connector names.
func (r *Registry) FeatureNames() []string {
	names := make([]string, 0, len(r.features))
	for n := range r.features {
		names = append(names, n)
	}
	return names
}
