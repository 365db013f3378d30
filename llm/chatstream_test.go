package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type streamResult struct {
	tokens   []string
	usage    Usage
	complete bool
	err      error
}

func runStream(t *testing.T, server *httptest.Server, req StreamRequest, reasoning bool) *streamResult {
	t.Helper()
	result := &streamResult{}
	done := make(chan struct{})

	req.OnToken = func(tok string) { result.tokens = append(result.tokens, tok) }
	req.OnComplete = func(u Usage) {
		result.usage = u
		result.complete = true
		close(done)
	}
	req.OnError = func(err error) {
		result.err = err
		close(done)
	}

	go streamChat(context.Background(), server.Client(), server.URL, nil, req, reasoning)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
	return result
}

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}
}

func TestStreamChatTokens(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2,"total_tokens":14}}`,
		`[DONE]`,
	))
	defer server.Close()

	result := runStream(t, server, StreamRequest{Model: "gpt-4o", APIKey: "k"}, false)

	if result.err != nil {
		t.Fatalf("unexpected error: %v", result.err)
	}
	if got := strings.Join(result.tokens, ""); got != "Hello" {
		t.Errorf("tokens = %q, want %q", got, "Hello")
	}
	if !result.complete {
		t.Error("OnComplete not called")
	}
	if result.usage.PromptTokens != 12 || result.usage.CompletionTokens != 2 {
		t.Errorf("usage = %+v", result.usage)
	}
}

func TestStreamChatDropsMalformedEvents(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`{not json at all`,
		`{"choices":[{"delta":{"content":"!"}}]}`,
		`[DONE]`,
	))
	defer server.Close()

	result := runStream(t, server, StreamRequest{Model: "gpt-4o", APIKey: "k"}, false)

	if result.err != nil {
		t.Fatalf("malformed event terminated stream: %v", result.err)
	}
	if got := strings.Join(result.tokens, ""); got != "ok!" {
		t.Errorf("tokens = %q, want %q", got, "ok!")
	}
}

func TestStreamChatJSONFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices":[{"message":{"content":"single payload"}}],
			"usage":{"prompt_tokens":8,"completion_tokens":3,"total_tokens":11,
				"completion_tokens_details":{"reasoning_tokens":128}}
		}`)
	}))
	defer server.Close()

	result := runStream(t, server, StreamRequest{Model: "o3-mini", APIKey: "k"}, true)

	if result.err != nil {
		t.Fatalf("unexpected error: %v", result.err)
	}
	if len(result.tokens) != 1 || result.tokens[0] != "single payload" {
		t.Errorf("tokens = %v, want one synthesized token", result.tokens)
	}
	if !result.complete {
		t.Error("OnComplete not called after JSON fallback")
	}
	if result.usage.ReasoningTokens != 128 {
		t.Errorf("reasoning tokens = %d, want 128", result.usage.ReasoningTokens)
	}
}

func TestStreamChatHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := runStream(t, server, StreamRequest{Model: "gpt-4o", APIKey: "k"}, false)

	if result.err == nil {
		t.Fatal("expected an error for status 429")
	}
	if result.complete {
		t.Error("OnComplete fired after error")
	}
}

func TestBuildChatRequestReasoningShape(t *testing.T) {
	req := StreamRequest{
		Model:           "o3-mini",
		SystemPrompt:    "sys",
		UserPrompt:      "usr",
		MaxTokens:       256,
		ReasoningEffort: "high",
	}
	wire := buildChatRequest(req, true)

	if wire.Messages[0].Role != "developer" {
		t.Errorf("system role = %q, want developer", wire.Messages[0].Role)
	}
	if wire.Temperature != nil || wire.TopP != nil {
		t.Error("reasoning request must omit sampling parameters")
	}
	if wire.MaxTokens != 0 {
		t.Errorf("max_tokens = %d, want unset for reasoning", wire.MaxTokens)
	}
	if wire.MaxCompletionTokens < minReasoningTokens {
		t.Errorf(
			"max_completion_tokens = %d, want at least %d",
			wire.MaxCompletionTokens,
			minReasoningTokens,
		)
	}
	if wire.ReasoningEffort != "high" {
		t.Errorf("reasoning_effort = %q, want high", wire.ReasoningEffort)
	}
}

func TestBuildChatRequestConversationalShape(t *testing.T) {
	req := StreamRequest{Model: "gpt-4o", SystemPrompt: "sys", UserPrompt: "usr", MaxTokens: 256}
	wire := buildChatRequest(req, false)

	if wire.Messages[0].Role != "system" {
		t.Errorf("system role = %q, want system", wire.Messages[0].Role)
	}
	if wire.MaxTokens != 256 {
		t.Errorf("max_tokens = %d, want 256", wire.MaxTokens)
	}
	if wire.Temperature == nil {
		t.Error("conversational request should carry temperature")
	}
	if !wire.Stream {
		t.Error("stream flag not set")
	}

	// Reasoning-only fields must not leak onto the wire.
	raw, err := json.Marshal(wire)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "reasoning_effort") {
		t.Errorf("conversational body contains reasoning_effort: %s", raw)
	}
}

func TestStreamChatCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	var completed, errored bool
	req := StreamRequest{
		Model:      "gpt-4o",
		APIKey:     "k",
		OnToken:    func(string) { cancel() },
		OnComplete: func(Usage) { completed = true },
		OnError:    func(error) { errored = true },
	}

	done := make(chan struct{})
	go func() {
		streamChat(ctx, server.Client(), server.URL, nil, req, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled stream did not return")
	}
	if completed || errored {
		t.Error("callbacks fired after cancellation")
	}
}
