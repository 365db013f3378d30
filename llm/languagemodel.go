package llm

import "context"

// ProviderID names one of the interchangeable LLM backends.
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderOpenRouter ProviderID = "openrouter"
	ProviderGemini     ProviderID = "gemini"
)

// StreamRequest is one streaming completion call. Tokens, completion
// and errors are delivered through the callbacks; cancellation is the
// context. A cancelled call stops invoking callbacks promptly but the
// underlying socket may linger.
type StreamRequest struct {
	Model           string
	SystemPrompt    string
	UserPrompt      string
	MaxTokens       int
	APIKey          string
	ReasoningEffort string

	OnToken    func(token string)
	OnComplete func(usage Usage)
	OnError    func(err error)
}

// Usage is the token accounting reported at stream end. When the
// provider computes cost server-side, CostUSD is set and CostKnown is
// true; otherwise callers price the counts themselves.
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	ReasoningTokens  int     `json:"reasoningTokens"`
	TotalTokens      int     `json:"totalTokens"`
	CostUSD          float64 `json:"costUsd"`
	CostKnown        bool    `json:"costKnown"`
}

// Provider is the uniform streaming contract implemented by each
// backend. Models is the static catalog used by the registry to route
// a model identifier to a backend.
type Provider interface {
	ID() ProviderID
	Models() []string
	StreamResponse(ctx context.Context, req StreamRequest)
}

// emit guards callback invocation after cancellation: once the
// request context is done no further token, complete or error
// callbacks may fire.
func emit(ctx context.Context, fn func()) {
	if ctx.Err() != nil {
		return
	}
	fn()
}
