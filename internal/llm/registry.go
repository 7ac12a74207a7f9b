package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Options configures the construction of a provider-backed client.
type Options struct {
	Provider    string
	Model       string // empty selects the provider default
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// Factory builds a client for one provider.
type Factory func(opts Options) (Client, error)

// Registry is a thread-safe registry of provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for the named provider. Registering a provider
// twice is a configuration error.
func (r *Registry) Register(provider string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[provider]; exists {
		return &ConfigError{ClientError: ClientError{Message: fmt.Sprintf("provider %q already registered", provider)}}
	}
	r.factories[provider] = f
	return nil
}

// Create builds a client for opts.Provider.
func (r *Registry) Create(opts Options) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[opts.Provider]
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{ClientError: ClientError{Message: fmt.Sprintf("unknown provider %q", opts.Provider)}}
	}
	return f(opts)
}

// Providers returns all registered provider names in sorted order.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry preloaded with the gollm-backed
// providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, provider := range []string{"anthropic", "openai", "gemini", "groq", "ollama"} {
		_ = r.Register(provider, func(opts Options) (Client, error) {
			return NewGollmClient(opts)
		})
	}
	return r
}
