package llm

import (
	"context"
	"net/http"
	"strings"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAI streams chat completions against the OpenAI API, including
// the o-series reasoning models.
type OpenAI struct {
	client *http.Client
}

func NewOpenAI() *OpenAI {
	return &OpenAI{client: newHTTPClient()}
}

func (p *OpenAI) ID() ProviderID { return ProviderOpenAI }

func (p *OpenAI) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4.1-nano",
		"o3",
		"o3-mini",
		"o4-mini",
	}
}

// isReasoningModel reports whether the model belongs to the o-series
// reasoning tier, which takes a different request shape.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4")
}

func (p *OpenAI) StreamResponse(ctx context.Context, req StreamRequest) {
	streamChat(ctx, p.client, openAIBaseURL, nil, req, isReasoningModel(req.Model))
}
