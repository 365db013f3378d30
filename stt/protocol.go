package stt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Outbound wire messages.

// SessionConfig is the first message on a fresh connection: language,
// audio format and the voice-activity commit strategy the provider
// should use to decide when an utterance is final.
type SessionConfig struct {
	Type           string         `json:"type"`
	Language       string         `json:"language,omitempty"`
	AudioFormat    AudioFormat    `json:"audio_format"`
	CommitStrategy CommitStrategy `json:"commit_strategy"`
}

type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type CommitStrategy struct {
	Type         string `json:"type"`
	VADSilenceMs int    `json:"vad_silence_ms,omitempty"`
}

// AudioMessage carries one base64-encoded 16-bit PCM frame. Commit
// forces the provider to finalize the current utterance immediately.
type AudioMessage struct {
	Type        string `json:"type"`
	AudioBase64 string `json:"audio_base64"`
	Commit      bool   `json:"commit,omitempty"`
}

func NewSessionConfig(language string, sampleRate int) SessionConfig {
	return SessionConfig{
		Type:     "start_session",
		Language: language,
		AudioFormat: AudioFormat{
			Encoding:   "pcm_s16le",
			SampleRate: sampleRate,
		},
		CommitStrategy: CommitStrategy{
			Type:         "vad",
			VADSilenceMs: 800,
		},
	}
}

func NewAudioMessage(pcm []byte, commit bool) AudioMessage {
	return AudioMessage{
		Type:        "audio",
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		Commit:      commit,
	}
}

// Inbound wire messages, discriminated by the type tag.

const (
	msgSessionStarted       = "session_started"
	msgPartial              = "partial_transcript"
	msgCommitted            = "committed_transcript"
	msgCommittedWithTimings = "committed_transcript_with_timestamps"
	msgError                = "error"
)

type serverMessage struct {
	Type       string     `json:"type"`
	SessionID  string     `json:"session_id,omitempty"`
	Text       string     `json:"text,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Words      []wireWord `json:"words,omitempty"`
	Code       string     `json:"code,omitempty"`
	Message    string     `json:"message,omitempty"`
}

type wireWord struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence,omitempty"`
}

// EventKind discriminates the three effective events a connection
// produces from the provider's five message types.
type EventKind int

const (
	EventSessionStarted EventKind = iota
	EventInterim
	EventFinal
	EventError
)

// Event is one parsed provider message.
type Event struct {
	Kind       EventKind
	SessionID  string
	Text       string
	Confidence float64
	Words      []Word
	ErrKind    string
	ErrMessage string
}

// Word is a timestamped word from a committed transcript.
type Word struct {
	Text       string
	StartMs    int64
	EndMs      int64
	Confidence float64
}

// ParseServerMessage maps a raw provider payload onto an Event. An
// unknown type tag or broken JSON is a parse error; the caller logs
// and drops it without touching the connection.
func ParseServerMessage(data []byte) (Event, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("parse server message: %w", err)
	}

	switch msg.Type {
	case msgSessionStarted:
		return Event{Kind: EventSessionStarted, SessionID: msg.SessionID}, nil
	case msgPartial:
		return Event{Kind: EventInterim, Text: msg.Text, Confidence: msg.Confidence}, nil
	case msgCommitted:
		return Event{Kind: EventFinal, Text: msg.Text, Confidence: msg.Confidence}, nil
	case msgCommittedWithTimings:
		words := make([]Word, len(msg.Words))
		for i, w := range msg.Words {
			words[i] = Word{
				Text:       w.Text,
				StartMs:    w.StartMs,
				EndMs:      w.EndMs,
				Confidence: w.Confidence,
			}
		}
		return Event{
			Kind:       EventFinal,
			Text:       msg.Text,
			Confidence: msg.Confidence,
			Words:      words,
		}, nil
	case msgError:
		return Event{Kind: EventError, ErrKind: msg.Code, ErrMessage: msg.Message}, nil
	default:
		return Event{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
