package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"earshot/answer"
	"earshot/audio"
	"earshot/llm"
	"earshot/stt"
	"earshot/transcript"
)

// CaptureMode selects which transcript slice a question is asked
// against.
type CaptureMode string

const (
	// CaptureHold slices the transcript from the hold-hotkey press
	// to now.
	CaptureHold CaptureMode = "hold"
	// CaptureHighlight uses literal text the user selected.
	CaptureHighlight CaptureMode = "highlight"
)

// Capture is one question submission from the UI surface.
type Capture struct {
	Question  string
	Mode      CaptureMode
	Highlight string
}

// StreamError is a provider-side transcription error surfaced as an
// outward event rather than a connection failure.
type StreamError struct {
	Source  audio.Source `json:"source"`
	Kind    string       `json:"kind"`
	Message string       `json:"message"`
}

// Config parameterizes a session.
type Config struct {
	STTURL     string
	STTAPIKey  string
	SampleRate int

	RelayCapacity int
	MaxAttempts   int
	BaseDelay     time.Duration
	CapDelay      time.Duration

	TemplateID      string
	UseReasoning    bool
	ReasoningEffort string

	Answer answer.Settings
}

// Session owns the live pipeline: one stream connection per audio
// source, the merged transcript, and the answer orchestrator. All
// session state lives here; collaborators get a handle, never
// ambient globals.
type Session struct {
	ID string

	log   *log.Logger
	store *transcript.Store
	orch  *answer.Orchestrator

	updates    chan transcript.Update
	states     chan stt.StateChange
	streamErrs chan StreamError

	now func() int64

	mu          sync.Mutex
	cfg         Config
	conns       map[audio.Source]*stt.Connection
	holdStartMs int64
	running     bool
}

func New(cfg Config, logger *log.Logger) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		log:        logger,
		store:      transcript.NewStore(),
		orch:       answer.NewOrchestrator(llm.DefaultRegistry(), logger),
		updates:    make(chan transcript.Update, 64),
		states:     make(chan stt.StateChange, 16),
		streamErrs: make(chan StreamError, 16),
		now:        func() int64 { return time.Now().UnixMilli() },
		cfg:        cfg,
		conns:      make(map[audio.Source]*stt.Connection),
	}
	if s.cfg.Answer.SessionID == "" {
		s.cfg.Answer.SessionID = s.ID
	}
	s.store.SetNotify(func(u transcript.Update) {
		select {
		case s.updates <- u:
		default:
			s.log.Warn("drop", "event", "transcript update")
		}
	})
	return s
}

// Transcript exposes the merged transcript store.
func (s *Session) Transcript() *transcript.Store {
	return s.store
}

// Answers exposes the orchestrator's outward event channels.
func (s *Session) Answers() answer.Events {
	return s.orch.Events()
}

// Updates streams transcript changes.
func (s *Session) Updates() <-chan transcript.Update {
	return s.updates
}

// States streams connection lifecycle transitions for both sources.
func (s *Session) States() <-chan stt.StateChange {
	return s.states
}

// StreamErrors streams provider-side transcription errors.
func (s *Session) StreamErrors() <-chan StreamError {
	return s.streamErrs
}

// SetCostSink forwards completed cost records to the persistence
// layer. Must be set before the first capture.
func (s *Session) SetCostSink(fn func(answer.CostRecord)) {
	s.orch.SetCostSink(fn)
}

// Start opens both stream connections with an optional language
// hint. Calling Start on a running session is a no-op.
func (s *Session) Start(ctx context.Context, language string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for _, source := range []audio.Source{audio.SourceMic, audio.SourceTab} {
		s.conns[source] = s.newConnection(source, language)
	}
	conns := []*stt.Connection{s.conns[audio.SourceMic], s.conns[audio.SourceTab]}
	s.mu.Unlock()

	s.log.Info("start", "session", s.ID, "language", language)
	for _, c := range conns {
		c.Start(ctx)
	}
}

// Stop tears down both connections and aborts any in-flight answer.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	conns := make([]*stt.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[audio.Source]*stt.Connection)
	s.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	s.orch.Cancel()
	s.log.Info("stop", "session", s.ID)
}

// PushAudio routes one PCM frame to its source's connection.
func (s *Session) PushAudio(chunk audio.Chunk) {
	s.mu.Lock()
	conn := s.conns[chunk.Source]
	s.mu.Unlock()
	if conn != nil {
		conn.Send(chunk)
	}
}

// Commit asks one source's stream to finalize the current utterance.
func (s *Session) Commit(source audio.Source) {
	s.mu.Lock()
	conn := s.conns[source]
	s.mu.Unlock()
	if conn != nil {
		conn.Commit()
	}
}

// HoldStart records the hold-hotkey press time; a subsequent hold
// capture slices the transcript from this point.
func (s *Session) HoldStart() {
	s.mu.Lock()
	s.holdStartMs = s.now()
	s.mu.Unlock()
}

// Ask submits a capture trigger. It returns the responseId that
// correlates the streamed token, status and cost events. A new ask
// cancels the one in flight.
func (s *Session) Ask(ctx context.Context, trigger Capture) string {
	req := s.buildRequest(trigger)
	responseID := uuid.NewString()

	s.mu.Lock()
	settings := s.cfg.Answer
	s.mu.Unlock()

	s.log.Info("ask", "responseId", responseID, "mode", trigger.Mode)
	go s.orch.Ask(ctx, responseID, req, settings)
	return responseID
}

// CancelAnswer aborts the in-flight answer, if any.
func (s *Session) CancelAnswer() {
	s.orch.Cancel()
}

// Edit overlays new text on a transcript entry.
func (s *Session) Edit(id, text string) { s.store.Edit(id, text) }

// Delete hides a transcript entry from snapshots.
func (s *Session) Delete(id string) { s.store.Delete(id) }

// Undo reverts an entry to its original text.
func (s *Session) Undo(id string) { s.store.Undo(id) }

// RenameSpeaker relabels one source in every snapshot.
func (s *Session) RenameSpeaker(source audio.Source, name string) {
	s.store.RenameSpeaker(source, name)
}

// UpdateSettings swaps the model configuration for subsequent asks.
func (s *Session) UpdateSettings(settings answer.Settings) {
	s.mu.Lock()
	if settings.SessionID == "" {
		settings.SessionID = s.ID
	}
	s.cfg.Answer = settings
	s.mu.Unlock()
}

// SetReasoningMode toggles single-call reasoning for subsequent asks.
func (s *Session) SetReasoningMode(on bool) {
	s.mu.Lock()
	s.cfg.UseReasoning = on
	s.mu.Unlock()
}

// SetTemplate switches the prompt template for subsequent asks.
func (s *Session) SetTemplate(id string) {
	s.mu.Lock()
	s.cfg.TemplateID = id
	s.mu.Unlock()
}

func (s *Session) buildRequest(trigger Capture) answer.Request {
	s.mu.Lock()
	holdStart := s.holdStartMs
	cfg := s.cfg
	s.mu.Unlock()

	req := answer.Request{
		Question:        trigger.Question,
		FullTranscript:  s.store.SnapshotFull(),
		TemplateID:      cfg.TemplateID,
		IsReasoning:     cfg.UseReasoning,
		ReasoningEffort: cfg.ReasoningEffort,
	}
	switch trigger.Mode {
	case CaptureHighlight:
		req.RecentContext = trigger.Highlight
	default:
		if holdStart > 0 {
			req.RecentContext = s.store.SnapshotSince(holdStart)
		} else {
			req.RecentContext = s.store.SnapshotRecent(20)
		}
	}
	return req
}

func (s *Session) newConnection(source audio.Source, language string) *stt.Connection {
	conn := stt.NewConnection(stt.Config{
		URL:           s.cfg.STTURL,
		APIKey:        s.cfg.STTAPIKey,
		Language:      language,
		SampleRate:    s.cfg.SampleRate,
		Source:        source,
		MaxAttempts:   s.cfg.MaxAttempts,
		BaseDelay:     s.cfg.BaseDelay,
		CapDelay:      s.cfg.CapDelay,
		RelayCapacity: s.cfg.RelayCapacity,
	}, s.log)
	conn.OnResult = s.handleResult
	conn.OnState = func(change stt.StateChange) {
		select {
		case s.states <- change:
		default:
			s.log.Warn("drop", "event", "state change")
		}
	}
	conn.OnStreamError = func(source audio.Source, kind, message string) {
		select {
		case s.streamErrs <- StreamError{Source: source, Kind: kind, Message: message}:
		default:
			s.log.Warn("drop", "event", "stream error")
		}
	}
	return conn
}

func (s *Session) handleResult(r stt.Result) {
	s.store.Ingest(transcript.Entry{
		ID:          r.UtteranceID,
		Source:      r.Source,
		Text:        r.Text,
		TimestampMs: r.TimestampMs,
		IsFinal:     r.IsFinal,
		Confidence:  r.Confidence,
	})
}
