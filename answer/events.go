package answer

import (
	"time"

	"earshot/llm"
)

// Slot names one of the concurrent answer channels.
type Slot string

const (
	SlotFast      Slot = "fast"
	SlotFull      Slot = "full"
	SlotReasoning Slot = "reasoning"
	// SlotBoth scopes a status event to the whole request.
	SlotBoth Slot = "both"
)

// Status is the lifecycle of one slot: pending until the first token,
// streaming while tokens flow, then complete or error.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// TokenEvent carries one streamed token. ResponseID correlates events
// back to the originating question so stale events arriving after a
// cancel can be told apart from the current request's.
type TokenEvent struct {
	ResponseID string `json:"responseId"`
	Slot       Slot   `json:"slot"`
	Token      string `json:"token"`
}

// StatusEvent reports a slot lifecycle transition.
type StatusEvent struct {
	ResponseID string `json:"responseId"`
	Slot       Slot   `json:"slot"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
}

// CostEvent reports the token accounting for one completed slot call.
type CostEvent struct {
	ResponseID string    `json:"responseId"`
	Slot       Slot      `json:"slot"`
	Usage      llm.Usage `json:"usage"`
	CostUSD    float64   `json:"costUsd"`
}

// Events is the outward stream surface of the orchestrator. Channels
// are buffered by the constructor; a consumer that stops draining
// loses events rather than stalling the pipeline.
type Events struct {
	Tokens   chan TokenEvent
	Statuses chan StatusEvent
	Costs    chan CostEvent
}

func newEvents() Events {
	return Events{
		Tokens:   make(chan TokenEvent, 256),
		Statuses: make(chan StatusEvent, 32),
		Costs:    make(chan CostEvent, 8),
	}
}

// CostRecord is the immutable per-call ledger row.
type CostRecord struct {
	ID               string
	Timestamp        time.Time
	SessionID        string
	Provider         llm.ProviderID
	ModelID          string
	ModelSlot        Slot
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
	CostUSD          float64
}
