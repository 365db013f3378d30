package stt

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"earshot/audio"
)

// ConnState is the lifecycle of one stream connection. Transitions
// are strictly sequential: disconnected, connecting, connected, then
// reconnecting and connecting alternate until either the stream is
// back or the retry budget is spent.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Result is one transcription event, tagged with the audio source
// that produced it. UtteranceID is shared between an utterance's
// interim revisions and its final commit.
type Result struct {
	Source      audio.Source
	UtteranceID string
	Text        string
	IsFinal     bool
	Confidence  float64
	Words       []Word
	TimestampMs int64
}

// StateChange reports a connection lifecycle transition. Err is set
// on the transition into terminal disconnect and on entry to
// reconnecting.
type StateChange struct {
	Source audio.Source
	State  ConnState
	Err    error
}

// wireConn is the slice of *websocket.Conn the connection uses,
// abstracted so tests can run the state machine without a network.
type wireConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a wire connection. The default dials a websocket with
// the API key in the Authorization header.
type Dialer func(ctx context.Context, url string, header http.Header) (wireConn, error)

func gorillaDialer(ctx context.Context, url string, header http.Header) (wireConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config parameterizes one stream connection.
type Config struct {
	URL        string
	APIKey     string
	Language   string
	SampleRate int
	Source     audio.Source

	// Reconnect policy. MaxAttempts bounds retries per disconnect
	// episode; the delay is min(base<<attempt + jitter, cap).
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration

	RelayCapacity int
}

func (c *Config) withDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.CapDelay == 0 {
		c.CapDelay = 10 * time.Second
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.RelayCapacity == 0 {
		c.RelayCapacity = audio.DefaultRelayCapacity
	}
}

// Connection owns one directional transcription session: lifecycle,
// reconnect backoff, and draining of its bounded relay. Audio sent
// while the stream is down lands in the relay instead of erroring;
// transcription failures become state transitions and events, never
// synchronous errors into the audio path.
type Connection struct {
	cfg    Config
	logger *log.Logger

	// Set before Start.
	Dial          Dialer
	OnResult      func(Result)
	OnState       func(StateChange)
	OnStreamError func(source audio.Source, kind, message string)

	mu           sync.Mutex
	state        ConnState
	isConnecting bool
	retryPending bool
	attempt      int
	conn         wireConn
	relay        *audio.Relay
	closed       bool

	utteranceID      string
	utteranceStartMs int64

	ctx context.Context
}

func NewConnection(cfg Config, logger *log.Logger) *Connection {
	cfg.withDefaults()
	return &Connection{
		cfg:    cfg,
		logger: logger,
		Dial:   gorillaDialer,
		state:  StateDisconnected,
		relay:  audio.NewRelay(cfg.RelayCapacity),
	}
}

// State returns the current connection state.
func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the initial connection attempt. The context bounds the
// whole session; cancelling it stops reconnect timers.
func (c *Connection) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.closed = false
	c.attempt = 0
	c.retryPending = false
	c.mu.Unlock()
	c.setState(StateConnecting, nil)
	go c.connect()
}

// Stop closes the session. No reconnect is attempted after Stop.
func (c *Connection) Stop() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.relay.Clear()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.setState(StateDisconnected, nil)
}

// Send forwards one audio chunk. While the stream is anything but
// connected the chunk is routed to the relay, where the oldest frames
// give way if the outage outlasts the buffer.
func (c *Connection) Send(chunk audio.Chunk) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.relay.Add(chunk)
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.WriteJSON(NewAudioMessage(chunk.PCM, false)); err != nil {
		c.logger.Error("send audio", "source", c.cfg.Source, "error", err)
		c.handleDisconnect(err)
	}
}

// Commit asks the provider to finalize the current utterance now,
// ahead of its voice-activity timeout.
func (c *Connection) Commit() {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	if err := conn.WriteJSON(NewAudioMessage(nil, true)); err != nil {
		c.handleDisconnect(err)
	}
}

// connect performs one dial attempt. The isConnecting flag prevents a
// second concurrent attempt when a write failure races the read loop
// noticing the same dead socket.
func (c *Connection) connect() {
	c.mu.Lock()
	if c.isConnecting || c.closed {
		c.mu.Unlock()
		return
	}
	c.isConnecting = true
	ctx := c.ctx
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.APIKey))

	conn, err := c.Dial(ctx, c.cfg.URL, header)
	if err != nil {
		c.mu.Lock()
		c.isConnecting = false
		c.mu.Unlock()
		c.logger.Error("dial", "source", c.cfg.Source, "error", err)
		c.setState(StateReconnecting, err)
		c.scheduleReconnect(err)
		return
	}

	if err := conn.WriteJSON(NewSessionConfig(c.cfg.Language, c.cfg.SampleRate)); err != nil {
		conn.Close()
		c.mu.Lock()
		c.isConnecting = false
		c.mu.Unlock()
		c.setState(StateReconnecting, err)
		c.scheduleReconnect(err)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnecting = false
	c.attempt = 0
	c.mu.Unlock()

	// Buffered frames go out before live ones resume. Send keeps
	// routing to the relay until the state flips to connected, so
	// this loop is the only writer while it drains.
	drained := 0
	for {
		c.mu.Lock()
		buffered := c.relay.Flush()
		if len(buffered) == 0 {
			c.state = StateConnected
			fn := c.OnState
			c.mu.Unlock()
			if fn != nil {
				fn(StateChange{Source: c.cfg.Source, State: StateConnected})
			}
			break
		}
		c.mu.Unlock()
		for _, chunk := range buffered {
			if err := conn.WriteJSON(NewAudioMessage(chunk.PCM, false)); err != nil {
				c.handleDisconnect(err)
				return
			}
			drained++
		}
	}

	c.logger.Info("connected", "source", c.cfg.Source, "buffered", drained)
	go c.readLoop(conn)
}

func (c *Connection) readLoop(conn wireConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		event, err := ParseServerMessage(data)
		if err != nil {
			// Malformed payloads are dropped; the stream stays up.
			c.logger.Warn("drop message", "source", c.cfg.Source, "error", err)
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Connection) handleEvent(event Event) {
	switch event.Kind {
	case EventSessionStarted:
		c.logger.Info("session", "source", c.cfg.Source, "id", event.SessionID)

	case EventInterim:
		c.mu.Lock()
		if c.utteranceID == "" {
			c.utteranceID = uuid.NewString()
			c.utteranceStartMs = time.Now().UnixMilli()
		}
		id, ts := c.utteranceID, c.utteranceStartMs
		c.mu.Unlock()
		c.emitResult(Result{
			Source:      c.cfg.Source,
			UtteranceID: id,
			Text:        event.Text,
			Confidence:  event.Confidence,
			TimestampMs: ts,
		})

	case EventFinal:
		c.mu.Lock()
		id, ts := c.utteranceID, c.utteranceStartMs
		if id == "" {
			id = uuid.NewString()
			ts = time.Now().UnixMilli()
		}
		c.utteranceID = ""
		c.utteranceStartMs = 0
		c.mu.Unlock()
		c.emitResult(Result{
			Source:      c.cfg.Source,
			UtteranceID: id,
			Text:        event.Text,
			IsFinal:     true,
			Confidence:  event.Confidence,
			Words:       event.Words,
			TimestampMs: ts,
		})

	case EventError:
		c.logger.Error(
			"stream error",
			"source", c.cfg.Source,
			"kind", event.ErrKind,
			"message", event.ErrMessage,
		)
		if c.OnStreamError != nil {
			c.OnStreamError(c.cfg.Source, event.ErrKind, event.ErrMessage)
		}
	}
}

func (c *Connection) emitResult(r Result) {
	if c.OnResult != nil {
		c.OnResult(r)
	}
}

// handleDisconnect reacts to an unexpected close or write failure.
// A dead socket is noticed by both the read loop and any failing
// Send; whoever takes conn first owns the episode, the other is a
// no-op.
func (c *Connection) handleDisconnect(err error) {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	c.setState(StateReconnecting, err)
	c.scheduleReconnect(err)
}

// scheduleReconnect books the next attempt, or gives up once the
// budget for this disconnect episode is spent. Exhaustion is terminal:
// the caller is told once and the pipeline does not retry on its own.
func (c *Connection) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.closed || c.isConnecting || c.retryPending {
		c.mu.Unlock()
		return
	}
	if c.attempt >= c.cfg.MaxAttempts {
		c.mu.Unlock()
		c.setState(StateDisconnected, fmt.Errorf(
			"stream %s: gave up after %d attempts: %w",
			c.cfg.Source, c.cfg.MaxAttempts, cause,
		))
		return
	}
	attempt := c.attempt
	c.attempt++
	c.retryPending = true
	ctx := c.ctx
	c.mu.Unlock()

	delay := c.backoffDelay(attempt)
	c.logger.Info(
		"reconnect scheduled",
		"source", c.cfg.Source,
		"attempt", attempt+1,
		"delay", delay,
	)

	timer := time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retryPending = false
		stale := c.closed || c.state == StateConnected || c.state == StateConnecting
		c.mu.Unlock()
		if stale {
			return
		}
		if ctx != nil && ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting, nil)
		c.connect()
	})

	if ctx != nil {
		go func() {
			<-ctx.Done()
			timer.Stop()
		}()
	}
}

// backoffDelay is min(base<<attempt + jitter, cap). Jitter is bounded
// by half the base so the two connections do not retry in lockstep
// while the sequence still grows monotonically attempt over attempt.
func (c *Connection) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BaseDelay << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(c.cfg.BaseDelay/2) + 1))
	if delay+jitter > c.cfg.CapDelay {
		return c.cfg.CapDelay
	}
	return delay + jitter
}

func (c *Connection) setState(state ConnState, err error) {
	c.mu.Lock()
	c.state = state
	fn := c.OnState
	c.mu.Unlock()
	if fn != nil {
		fn(StateChange{Source: c.cfg.Source, State: state, Err: err})
	}
}
