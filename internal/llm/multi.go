package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Router is a Client that can say which provider serves a model.
type Router interface {
	Client
	ProviderFor(model string) string
}

// MultiClient routes each model to a named provider. Models without an
// explicit route go to the default provider. Responses carry the name
// of the provider that served them so usage can be attributed per hop.
type MultiClient struct {
	providers map[string]Client
	routes    map[string]string // model → provider
	def       string
}

// NewMultiClient creates a router whose unrouted models go to the
// provider registered as defaultProvider.
func NewMultiClient(defaultProvider string) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		routes:    make(map[string]string),
		def:       defaultProvider,
	}
}

// AddProvider registers the client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel routes model to provider. A route to a provider that is
// never registered falls back to the default.
func (m *MultiClient) AddModel(model, provider string) {
	m.routes[model] = provider
}

// ProviderFor returns the provider name model is sent to.
func (m *MultiClient) ProviderFor(model string) string {
	if p, ok := m.routes[model]; ok {
		if _, registered := m.providers[p]; registered {
			return p
		}
	}
	return m.def
}

// Chat forwards to the routed provider and stamps the response with
// its name.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	name := m.ProviderFor(model)
	client := m.providers[name]
	if client == nil {
		return nil, fmt.Errorf("%w: no client for provider %q (model %q)", ErrNotConfigured, name, model)
	}
	resp, err := client.Chat(ctx, model, messages, tools)
	if err != nil {
		return nil, err
	}
	if resp.Provider == "" {
		resp.Provider = name
	}
	return resp, nil
}

// Ping checks every provider that some model routes to: the default
// plus each explicitly routed one. Failures are joined and prefixed
// with the provider name.
func (m *MultiClient) Ping(ctx context.Context) error {
	used := map[string]bool{m.def: true}
	for model := range m.routes {
		used[m.ProviderFor(model)] = true
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(used)) {
		client := m.providers[name]
		if client == nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrNotConfigured))
			continue
		}
		if err := client.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
