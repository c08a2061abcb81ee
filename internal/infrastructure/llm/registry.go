package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/config"
	"FinNewsAgent/internal/ports"
)

// Factory builds an analyzer for one provider.
type Factory func(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error)

// Registry keeps a mapping from provider names to analyzer factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry knows every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("gemini", NewGeminiAnalyzer)
	r.Register("claude", NewClaudeAnalyzer)
	r.Register("openai", NewChatGPTAnalyzer)
	r.Register("http", NewInferenceAnalyzer)
	return r
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Resolve returns a factory by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Factory, error) {
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	return nil, fmt.Errorf("ai provider %s is not registered (known: %v)", name, r.Names())
}

// Build resolves cfg.Provider and constructs the analyzer.
func (r *Registry) Build(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (ports.Analyzer, error) {
	factory, err := r.Resolve(cfg.Provider)
	if err != nil {
		return nil, err
	}
	analyzer, err := factory(ctx, cfg, logger.With().Str("provider", cfg.Provider).Logger())
	if err != nil {
		return nil, fmt.Errorf("build %s analyzer: %w", cfg.Provider, err)
	}
	return analyzer, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
