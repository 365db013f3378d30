package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini adapts Google's generative API to the streaming contract.
// The SDK does its own wire handling, so this adapter only maps the
// request shape and walks the response iterator.
type Gemini struct{}

func NewGemini() *Gemini { return &Gemini{} }

func (p *Gemini) ID() ProviderID { return ProviderGemini }

func (p *Gemini) Models() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
	}
}

func (p *Gemini) StreamResponse(ctx context.Context, req StreamRequest) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(req.APIKey))
	if err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("create gemini client: %w", err)) })
		return
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.GenerationConfig.SetMaxOutputTokens(int32(req.MaxTokens))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemPrompt)},
	}

	stream := model.GenerateContentStream(ctx, genai.Text(req.UserPrompt))

	var usage Usage
	for {
		resp, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			emit(ctx, func() { req.OnError(fmt.Errorf("gemini stream: %w", err)) })
			return
		}

		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		}

		if chunk := responseText(resp); chunk != "" {
			emit(ctx, func() { req.OnToken(chunk) })
		}
	}

	emit(ctx, func() { req.OnComplete(usage) })
}

func responseText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}
