package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"earshot/llm"
)

// fakeProvider scripts one behavior per model id.
type fakeProvider struct {
	id     llm.ProviderID
	models []string
	run    func(ctx context.Context, req llm.StreamRequest)
}

func (f *fakeProvider) ID() llm.ProviderID { return f.id }
func (f *fakeProvider) Models() []string   { return f.models }
func (f *fakeProvider) StreamResponse(ctx context.Context, req llm.StreamRequest) {
	f.run(ctx, req)
}

func testLogger() *log.Logger {
	logger := log.New(io.Discard)
	logger.SetLevel(log.FatalLevel)
	return logger
}

func drainEvents(t *testing.T, o *Orchestrator, stop chan struct{}) (map[Slot][]string, map[Slot][]Status, map[Slot]int) {
	t.Helper()
	tokens := make(map[Slot][]string)
	statuses := make(map[Slot][]Status)
	costs := make(map[Slot]int)
	for {
		select {
		case ev := <-o.Events().Tokens:
			tokens[ev.Slot] = append(tokens[ev.Slot], ev.Token)
		case ev := <-o.Events().Statuses:
			statuses[ev.Slot] = append(statuses[ev.Slot], ev.Status)
		case ev := <-o.Events().Costs:
			costs[ev.Slot]++
		case <-stop:
			return tokens, statuses, costs
		case <-time.After(5 * time.Second):
			t.Fatal("event drain timed out")
		}
	}
}

func settingsFor(fast, full string) Settings {
	return Settings{
		FastModel: fast,
		FullModel: full,
		MaxTokens: 100,
		APIKeys:   map[llm.ProviderID]string{"fake": "key"},
		SessionID: "s1",
	}
}

func TestDualModeBothSlotsStream(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"fast-model", "full-model"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			req.OnToken("hello ")
			req.OnToken("world")
			req.OnComplete(llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	stop := make(chan struct{})
	go func() {
		o.Ask(context.Background(), "r1", Request{Question: "q"}, settingsFor("fast-model", "full-model"))
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()

	tokens, statuses, costs := drainEvents(t, o, stop)

	if len(statuses[SlotBoth]) != 1 || statuses[SlotBoth][0] != StatusPending {
		t.Errorf("request statuses = %v, want single pending", statuses[SlotBoth])
	}
	for _, slot := range []Slot{SlotFast, SlotFull} {
		if got := strings.Join(tokens[slot], ""); got != "hello world" {
			t.Errorf("%s tokens = %q", slot, got)
		}
		want := []Status{StatusStreaming, StatusComplete}
		if len(statuses[slot]) != len(want) {
			t.Fatalf("%s statuses = %v, want %v", slot, statuses[slot], want)
		}
		for i := range want {
			if statuses[slot][i] != want[i] {
				t.Errorf("%s status[%d] = %s, want %s", slot, i, statuses[slot][i], want[i])
			}
		}
		if costs[slot] != 1 {
			t.Errorf("%s cost events = %d, want 1", slot, costs[slot])
		}
	}
}

func TestSlotFailureDoesNotCancelSibling(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"fast-model", "full-model"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			if req.Model == "fast-model" {
				req.OnError(errors.New("provider exploded"))
				return
			}
			req.OnToken("fine")
			req.OnComplete(llm.Usage{TotalTokens: 5})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	stop := make(chan struct{})
	go func() {
		o.Ask(context.Background(), "r1", Request{Question: "q"}, settingsFor("fast-model", "full-model"))
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()

	tokens, statuses, costs := drainEvents(t, o, stop)

	if last := statuses[SlotFast][len(statuses[SlotFast])-1]; last != StatusError {
		t.Errorf("fast slot terminal status = %s, want error", last)
	}
	if costs[SlotFast] != 0 {
		t.Error("failed slot emitted a cost event")
	}
	if last := statuses[SlotFull][len(statuses[SlotFull])-1]; last != StatusComplete {
		t.Errorf("full slot terminal status = %s, want complete", last)
	}
	if got := strings.Join(tokens[SlotFull], ""); got != "fine" {
		t.Errorf("full slot tokens = %q", got)
	}
	if costs[SlotFull] != 1 {
		t.Errorf("full slot cost events = %d, want 1", costs[SlotFull])
	}
}

func TestResolutionFailureIsImmediatePerSlot(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"full-model"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			req.OnComplete(llm.Usage{})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	stop := make(chan struct{})
	go func() {
		o.Ask(context.Background(), "r1", Request{Question: "q"}, settingsFor("unconfigured-model", "full-model"))
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()

	_, statuses, _ := drainEvents(t, o, stop)

	if len(statuses[SlotFast]) != 1 || statuses[SlotFast][0] != StatusError {
		t.Errorf("fast slot statuses = %v, want single error", statuses[SlotFast])
	}
	if last := statuses[SlotFull][len(statuses[SlotFull])-1]; last != StatusComplete {
		t.Errorf("full slot terminal status = %s, want complete", last)
	}
}

func TestReasoningModeSingleCall(t *testing.T) {
	var calls int
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"reasoner"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			calls++
			if req.ReasoningEffort != "high" {
				t.Errorf("effort = %q, want high", req.ReasoningEffort)
			}
			req.OnToken("thought out")
			req.OnComplete(llm.Usage{ReasoningTokens: 200, TotalTokens: 250})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	stop := make(chan struct{})
	go func() {
		o.Ask(
			context.Background(),
			"r1",
			Request{Question: "q", IsReasoning: true, ReasoningEffort: "high"},
			Settings{
				ReasoningModel: "reasoner",
				MaxTokens:      100,
				APIKeys:        map[llm.ProviderID]string{"fake": "key"},
			},
		)
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()

	tokens, _, _ := drainEvents(t, o, stop)

	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
	if got := strings.Join(tokens[SlotReasoning], ""); got != "thought out" {
		t.Errorf("reasoning tokens = %q", got)
	}
}

func TestCancelSuppressesLateEvents(t *testing.T) {
	started := make(chan struct{}, 2)
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"fast-model", "full-model"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			req.OnToken("first")
			started <- struct{}{}
			<-ctx.Done()
			// Late terminal callbacks after cancel must be dropped.
			req.OnComplete(llm.Usage{TotalTokens: 99})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	done := make(chan struct{})
	go func() {
		o.Ask(context.Background(), "r1", Request{Question: "q"},
			settingsFor("fast-model", "fast-model"))
		close(done)
	}()

	<-started
	o.Cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Ask did not return after cancel")
	}

	stop := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(stop)
	}()
	_, statuses, costs := drainEvents(t, o, stop)

	for slot, list := range statuses {
		for _, st := range list {
			if st == StatusComplete {
				t.Errorf("%s emitted complete after cancel", slot)
			}
		}
	}
	if len(costs) != 0 {
		t.Errorf("cost events after cancel: %v", costs)
	}
}

func TestCostSinkReceivesRecord(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		models: []string{"fast-model", "full-model"},
		run: func(ctx context.Context, req llm.StreamRequest) {
			req.OnComplete(llm.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})
		},
	}
	o := NewOrchestrator(llm.NewRegistry(provider), testLogger())

	records := make(chan CostRecord, 2)
	o.SetCostSink(func(r CostRecord) { records <- r })

	o.Ask(context.Background(), "r1", Request{Question: "q"}, settingsFor("fast-model", "full-model"))

	for i := 0; i < 2; i++ {
		select {
		case r := <-records:
			if r.SessionID != "s1" || r.TotalTokens != 10 || r.ID == "" {
				t.Errorf("unexpected record: %+v", r)
			}
		case <-time.After(time.Second):
			t.Fatal("cost sink not invoked for both slots")
		}
	}
}
