package answer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"earshot/llm"
)

// Settings is the model configuration a request runs under, supplied
// by the settings layer at call time.
type Settings struct {
	FastModel       string
	FullModel       string
	ReasoningModel  string
	ReasoningEffort string
	MaxTokens       int
	APIKeys         map[llm.ProviderID]string
	SessionID       string
}

// Orchestrator accepts one question at a time, fans out to the fast
// and full model slots (or a single reasoning call), and streams
// token, status and cost events keyed by responseId. Submitting a new
// question cancels the one in flight; tokens already delivered stand,
// but the cancelled responseId emits no further complete or cost
// events.
type Orchestrator struct {
	registry *llm.Registry
	logger   *log.Logger
	events   Events
	costSink func(CostRecord)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewOrchestrator(registry *llm.Registry, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		logger:   logger,
		events:   newEvents(),
	}
}

// Events exposes the outward event channels.
func (o *Orchestrator) Events() Events {
	return o.events
}

// SetCostSink registers an optional consumer for completed cost
// records (the persistence layer). Must be set before the first Ask.
func (o *Orchestrator) SetCostSink(fn func(CostRecord)) {
	o.costSink = fn
}

// Ask runs one request. It returns once both slots have terminated.
func (o *Orchestrator) Ask(
	ctx context.Context,
	responseID string,
	req Request,
	settings Settings,
) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	if req.IsReasoning {
		o.status(ctx, StatusEvent{ResponseID: responseID, Slot: SlotReasoning, Status: StatusPending})
		o.runSlot(ctx, responseID, req, settings, SlotReasoning, settings.ReasoningModel)
		return
	}

	// One pending status covers the whole request; the slots report
	// individually from streaming onward.
	o.status(ctx, StatusEvent{ResponseID: responseID, Slot: SlotBoth, Status: StatusPending})

	var wg sync.WaitGroup
	for slot, model := range map[Slot]string{
		SlotFast: settings.FastModel,
		SlotFull: settings.FullModel,
	} {
		wg.Add(1)
		go func(slot Slot, model string) {
			defer wg.Done()
			o.runSlot(ctx, responseID, req, settings, slot, model)
		}(slot, model)
	}
	wg.Wait()
}

// Cancel aborts the in-flight request, if any.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
}

// runSlot drives one provider call end to end. A slot failure is
// scoped to its own status event; the sibling slot keeps streaming.
func (o *Orchestrator) runSlot(
	ctx context.Context,
	responseID string,
	req Request,
	settings Settings,
	slot Slot,
	model string,
) {
	resolved, ok := o.registry.ResolveProviderForModel(model, settings.APIKeys)
	if !ok {
		o.logger.Warn("no provider", "slot", slot, "model", model)
		o.status(ctx, StatusEvent{
			ResponseID: responseID,
			Slot:       slot,
			Status:     StatusError,
			Error:      fmt.Sprintf("no provider available for model %q", model),
		})
		return
	}

	tmpl := templateFor(req.TemplateID)
	instruction := ""
	switch slot {
	case SlotFast:
		instruction = brevityInstruction
	case SlotFull:
		instruction = completenessInstruction
	}

	var streaming bool
	done := make(chan struct{})

	stream := llm.StreamRequest{
		Model:           model,
		SystemPrompt:    tmpl.System,
		UserPrompt:      buildUserPrompt(req, instruction),
		MaxTokens:       settings.MaxTokens,
		APIKey:          settings.APIKeys[resolved.ID],
		ReasoningEffort: req.ReasoningEffort,
		OnToken: func(token string) {
			if !streaming {
				streaming = true
				o.status(ctx, StatusEvent{
					ResponseID: responseID,
					Slot:       slot,
					Status:     StatusStreaming,
				})
			}
			select {
			case o.events.Tokens <- TokenEvent{ResponseID: responseID, Slot: slot, Token: token}:
			default:
				o.logger.Warn("token event dropped", "slot", slot)
			}
		},
		OnComplete: func(usage llm.Usage) {
			defer close(done)
			cost := llm.Cost(model, usage)
			o.status(ctx, StatusEvent{
				ResponseID: responseID,
				Slot:       slot,
				Status:     StatusComplete,
			})
			o.cost(ctx, CostEvent{
				ResponseID: responseID,
				Slot:       slot,
				Usage:      usage,
				CostUSD:    cost,
			})
			if o.costSink != nil && ctx.Err() == nil {
				o.costSink(CostRecord{
					ID:               uuid.NewString(),
					Timestamp:        time.Now(),
					SessionID:        settings.SessionID,
					Provider:         resolved.ID,
					ModelID:          model,
					ModelSlot:        slot,
					PromptTokens:     usage.PromptTokens,
					CompletionTokens: usage.CompletionTokens,
					ReasoningTokens:  usage.ReasoningTokens,
					TotalTokens:      usage.TotalTokens,
					CostUSD:          cost,
				})
			}
			o.logger.Info(
				"answer complete",
				"slot", slot,
				"model", model,
				"tokens", usage.TotalTokens,
				"cost", cost,
			)
		},
		OnError: func(err error) {
			defer close(done)
			o.logger.Error("answer failed", "slot", slot, "model", model, "error", err)
			o.status(ctx, StatusEvent{
				ResponseID: responseID,
				Slot:       slot,
				Status:     StatusError,
				Error:      err.Error(),
			})
		},
	}

	go func() {
		resolved.Provider.StreamResponse(ctx, stream)
		// A cancelled provider call may return without invoking a
		// terminal callback.
		select {
		case <-done:
		default:
			if ctx.Err() != nil {
				close(done)
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) status(ctx context.Context, ev StatusEvent) {
	if ctx.Err() != nil {
		return
	}
	select {
	case o.events.Statuses <- ev:
	default:
		o.logger.Warn("status event dropped", "slot", ev.Slot, "status", ev.Status)
	}
}

func (o *Orchestrator) cost(ctx context.Context, ev CostEvent) {
	if ctx.Err() != nil {
		return
	}
	select {
	case o.events.Costs <- ev:
	default:
		o.logger.Warn("cost event dropped", "slot", ev.Slot)
	}
}
