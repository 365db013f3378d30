package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// minReasoningTokens is the floor applied to the output budget of
// reasoning-tier models, which otherwise can spend the whole budget on
// internal reasoning and return an empty message.
const minReasoningTokens = 4096

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         *float32      `json:"temperature,omitempty"`
	TopP                *float32      `json:"top_p,omitempty"`
	Stream              bool          `json:"stream"`
	StreamOptions       *streamOpts   `json:"stream_options,omitempty"`
	ReasoningEffort     string        `json:"reasoning_effort,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	PromptTokens            int     `json:"prompt_tokens"`
	CompletionTokens        int     `json:"completion_tokens"`
	TotalTokens             int     `json:"total_tokens"`
	Cost                    float64 `json:"cost"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// buildChatRequest assembles the wire body for an OpenAI-style chat
// completion. Reasoning-tier models take the system prompt under the
// "developer" role, carry no sampling parameters, and get a floor on
// their output budget so internal reasoning cannot eat the whole
// response.
func buildChatRequest(req StreamRequest, reasoning bool) chatRequest {
	systemRole := "system"
	if reasoning {
		systemRole = "developer"
	}

	out := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: systemRole, Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Stream:        true,
		StreamOptions: &streamOpts{IncludeUsage: true},
	}

	if reasoning {
		budget := req.MaxTokens
		if budget < minReasoningTokens {
			budget = minReasoningTokens
		}
		out.MaxCompletionTokens = budget
		out.ReasoningEffort = req.ReasoningEffort
	} else {
		out.MaxTokens = req.MaxTokens
		temp := float32(0.7)
		out.Temperature = &temp
	}

	return out
}

// streamChat drives one chat completion against an OpenAI-compatible
// endpoint. It parses the server-sent-event token stream terminated by
// the [DONE] sentinel, and tolerates a plain JSON response body (some
// reasoning models answer in one piece) by synthesizing a single token
// followed by completion.
func streamChat(
	ctx context.Context,
	client *http.Client,
	baseURL string,
	headers map[string]string,
	req StreamRequest,
	reasoning bool,
) {
	body, err := json.Marshal(buildChatRequest(req, reasoning))
	if err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("encode request: %w", err)) })
		return
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		"POST",
		baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("create request: %w", err)) })
		return
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", req.APIKey))
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("completion request: %w", err)) })
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		emit(ctx, func() {
			req.OnError(fmt.Errorf(
				"completion request: status %d: %s",
				resp.StatusCode,
				strings.TrimSpace(string(msg)),
			))
		})
		return
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		consumeJSONResponse(ctx, resp.Body, req)
		return
	}

	consumeEventStream(ctx, resp.Body, req)
}

func consumeEventStream(ctx context.Context, body io.Reader, req StreamRequest) {
	var usage Usage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			emit(ctx, func() { req.OnComplete(usage) })
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Unparseable events are dropped; the stream itself
			// stays up.
			continue
		}
		if chunk.Error != nil {
			emit(ctx, func() {
				req.OnError(fmt.Errorf("provider error: %s", chunk.Error.Message))
			})
			return
		}
		if chunk.Usage != nil {
			usage = usageFromWire(chunk.Usage)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			token := chunk.Choices[0].Delta.Content
			emit(ctx, func() { req.OnToken(token) })
		}
	}

	if err := scanner.Err(); err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("read stream: %w", err)) })
		return
	}
	// Stream ended without the sentinel; treat what we have as done.
	emit(ctx, func() { req.OnComplete(usage) })
}

// consumeJSONResponse handles the single-payload answer shape,
// delivering the whole message as one token.
func consumeJSONResponse(ctx context.Context, body io.Reader, req StreamRequest) {
	var chunk chatChunk
	if err := json.NewDecoder(body).Decode(&chunk); err != nil {
		emit(ctx, func() { req.OnError(fmt.Errorf("decode response: %w", err)) })
		return
	}
	if chunk.Error != nil {
		emit(ctx, func() {
			req.OnError(fmt.Errorf("provider error: %s", chunk.Error.Message))
		})
		return
	}

	var usage Usage
	if chunk.Usage != nil {
		usage = usageFromWire(chunk.Usage)
	}
	if len(chunk.Choices) > 0 && chunk.Choices[0].Message.Content != "" {
		content := chunk.Choices[0].Message.Content
		emit(ctx, func() { req.OnToken(content) })
	}
	emit(ctx, func() { req.OnComplete(usage) })
}

func usageFromWire(u *chatUsage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		ReasoningTokens:  u.CompletionTokensDetails.ReasoningTokens,
		TotalTokens:      u.TotalTokens,
		CostUSD:          u.Cost,
		CostKnown:        u.Cost > 0,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}
