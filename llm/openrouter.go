package llm

import (
	"context"
	"net/http"
	"strings"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter fronts many hosted models behind one OpenAI-compatible
// endpoint. Its usage block carries a server-computed cost, which is
// used verbatim instead of the local price table.
type OpenRouter struct {
	client *http.Client
}

func NewOpenRouter() *OpenRouter {
	return &OpenRouter{client: newHTTPClient()}
}

func (p *OpenRouter) ID() ProviderID { return ProviderOpenRouter }

// Models matches any namespaced identifier: OpenRouter model ids are
// always vendor-prefixed ("anthropic/...", "meta-llama/...").
func (p *OpenRouter) Models() []string {
	return []string{
		"anthropic/claude-sonnet-4",
		"anthropic/claude-3.5-haiku",
		"meta-llama/llama-3.3-70b-instruct",
		"deepseek/deepseek-chat-v3",
		"google/gemini-2.5-flash",
	}
}

func (p *OpenRouter) StreamResponse(ctx context.Context, req StreamRequest) {
	headers := map[string]string{
		"HTTP-Referer": "https://earshot.local",
		"X-Title":      "earshot",
	}
	streamChat(ctx, p.client, openRouterBaseURL, headers, req, false)
}

// Serves reports whether a model id is routable through OpenRouter:
// any vendor-namespaced identifier qualifies even when absent from the
// static catalog above.
func (p *OpenRouter) Serves(model string) bool {
	if strings.Contains(model, "/") {
		return true
	}
	for _, m := range p.Models() {
		if m == model {
			return true
		}
	}
	return false
}
