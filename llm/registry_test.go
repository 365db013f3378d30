package llm

import "testing"

func TestResolveProviderForModel(t *testing.T) {
	r := DefaultRegistry()

	t.Run("routes to provider with key", func(t *testing.T) {
		keys := map[ProviderID]string{ProviderOpenAI: "sk-test"}
		resolved, ok := r.ResolveProviderForModel("gpt-4o-mini", keys)
		if !ok {
			t.Fatal("expected a match for gpt-4o-mini")
		}
		if resolved.ID != ProviderOpenAI {
			t.Errorf("resolved to %s, want openai", resolved.ID)
		}
	})

	t.Run("no key means no match", func(t *testing.T) {
		_, ok := r.ResolveProviderForModel("gpt-4o-mini", nil)
		if ok {
			t.Error("expected no match without any keys")
		}
	})

	t.Run("unknown model means no match not error", func(t *testing.T) {
		keys := map[ProviderID]string{
			ProviderOpenAI: "sk-test",
			ProviderGemini: "g-test",
		}
		_, ok := r.ResolveProviderForModel("totally-made-up", keys)
		if ok {
			t.Error("expected no match for unknown model")
		}
	})

	t.Run("slots may resolve to different providers", func(t *testing.T) {
		keys := map[ProviderID]string{
			ProviderOpenAI: "sk-test",
			ProviderGemini: "g-test",
		}
		fast, ok := r.ResolveProviderForModel("gemini-1.5-flash", keys)
		if !ok || fast.ID != ProviderGemini {
			t.Errorf("fast slot resolved to %v, want gemini", fast.ID)
		}
		full, ok := r.ResolveProviderForModel("gpt-4o", keys)
		if !ok || full.ID != ProviderOpenAI {
			t.Errorf("full slot resolved to %v, want openai", full.ID)
		}
	})

	t.Run("namespaced ids route to openrouter", func(t *testing.T) {
		keys := map[ProviderID]string{ProviderOpenRouter: "or-test"}
		resolved, ok := r.ResolveProviderForModel("mistralai/mistral-large", keys)
		if !ok || resolved.ID != ProviderOpenRouter {
			t.Errorf("resolved to %v, want openrouter", resolved.ID)
		}
	})
}
