package stt

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestParseServerMessage(t *testing.T) {
	t.Run("session started", func(t *testing.T) {
		ev, err := ParseServerMessage([]byte(`{"type":"session_started","session_id":"abc"}`))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventSessionStarted || ev.SessionID != "abc" {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("partial transcript", func(t *testing.T) {
		ev, err := ParseServerMessage([]byte(`{"type":"partial_transcript","text":"hel","confidence":0.62}`))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventInterim || ev.Text != "hel" {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("committed transcript", func(t *testing.T) {
		ev, err := ParseServerMessage([]byte(`{"type":"committed_transcript","text":"hello","confidence":0.97}`))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventFinal || ev.Text != "hello" || len(ev.Words) != 0 {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("committed with timestamps", func(t *testing.T) {
		raw := `{"type":"committed_transcript_with_timestamps","text":"hi there",
			"words":[{"text":"hi","start_ms":100,"end_ms":250},{"text":"there","start_ms":300,"end_ms":600}]}`
		ev, err := ParseServerMessage([]byte(raw))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventFinal || len(ev.Words) != 2 {
			t.Fatalf("event = %+v", ev)
		}
		if ev.Words[1].Text != "there" || ev.Words[1].StartMs != 300 {
			t.Errorf("words = %+v", ev.Words)
		}
	})

	t.Run("error message", func(t *testing.T) {
		ev, err := ParseServerMessage([]byte(`{"type":"error","code":"quota_exceeded","message":"out of minutes"}`))
		if err != nil {
			t.Fatal(err)
		}
		if ev.Kind != EventError || ev.ErrKind != "quota_exceeded" {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("unknown type is a parse error", func(t *testing.T) {
		if _, err := ParseServerMessage([]byte(`{"type":"surprise"}`)); err == nil {
			t.Error("expected error for unknown type")
		}
	})

	t.Run("broken json is a parse error", func(t *testing.T) {
		if _, err := ParseServerMessage([]byte(`{nope`)); err == nil {
			t.Error("expected error for broken JSON")
		}
	})
}

func TestAudioMessageEncoding(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	msg := NewAudioMessage(pcm, true)

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Type        string `json:"type"`
		AudioBase64 string `json:"audio_base64"`
		Commit      bool   `json:"commit"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "audio" || !decoded.Commit {
		t.Errorf("decoded = %+v", decoded)
	}
	got, err := base64.StdEncoding.DecodeString(decoded.AudioBase64)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(pcm) {
		t.Errorf("pcm round trip = %v, want %v", got, pcm)
	}
}

func TestSessionConfigShape(t *testing.T) {
	cfg := NewSessionConfig("en", 16000)
	if cfg.Type != "start_session" {
		t.Errorf("type = %q", cfg.Type)
	}
	if cfg.AudioFormat.Encoding != "pcm_s16le" || cfg.AudioFormat.SampleRate != 16000 {
		t.Errorf("audio format = %+v", cfg.AudioFormat)
	}
	if cfg.CommitStrategy.Type != "vad" {
		t.Errorf("commit strategy = %+v", cfg.CommitStrategy)
	}
}
