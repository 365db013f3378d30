package llm

// Resolved pairs a provider id with the adapter instance that serves a
// model. Resolution happens per model identifier at request time: the
// fast and full slots of one question may land on different backends.
type Resolved struct {
	ID       ProviderID
	Provider Provider
}

// modelMatcher lets a provider claim models beyond its static catalog
// (OpenRouter routes any vendor-namespaced id).
type modelMatcher interface {
	Serves(model string) bool
}

// Registry is an ordered list of providers checked in priority order.
type Registry struct {
	providers []Provider
}

func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// DefaultRegistry wires every built-in backend in resolution priority
// order.
func DefaultRegistry() *Registry {
	return NewRegistry(NewOpenAI(), NewGemini(), NewOpenRouter())
}

// ResolveProviderForModel returns the first provider whose catalog
// contains the model and for which the caller has a configured key.
// A miss is an ordinary no-match result, not an error, so each model
// slot can degrade independently.
func (r *Registry) ResolveProviderForModel(
	model string,
	apiKeys map[ProviderID]string,
) (Resolved, bool) {
	for _, p := range r.providers {
		if apiKeys[p.ID()] == "" {
			continue
		}
		if r.serves(p, model) {
			return Resolved{ID: p.ID(), Provider: p}, true
		}
	}
	return Resolved{}, false
}

func (r *Registry) serves(p Provider, model string) bool {
	if m, ok := p.(modelMatcher); ok {
		return m.Serves(model)
	}
	for _, id := range p.Models() {
		if id == model {
			return true
		}
	}
	return false
}
