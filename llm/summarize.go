package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// SummarizeSession streams a narrative recap of a finished session
// transcript. This is an offline convenience path, so it uses the
// OpenAI SDK directly rather than the live streaming adapters.
func SummarizeSession(
	ctx context.Context,
	apiKey string,
	transcript string,
) (chan string, error) {
	client := openai.NewClient(apiKey)

	stream, err := client.CreateChatCompletionStream(
		ctx,
		openai.ChatCompletionRequest{
			Model:     openai.GPT4o,
			MaxTokens: 600,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleSystem,
					Content: "Summarize this conversation transcript. " +
						"Lead with the questions that were asked and how they were answered. " +
						"Note any follow-ups the speaker promised. Use short markdown sections.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: transcript,
				},
			},
			Stream: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				return
			}
			if len(response.Choices) > 0 {
				chunks <- response.Choices[0].Delta.Content
			}
		}
	}()

	return chunks, nil
}
