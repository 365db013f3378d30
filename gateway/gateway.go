package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"earshot/audio"
	"earshot/session"
)

// Gateway is the local HTTP surface the overlay UI talks to:
// control endpoints for the session and a websocket that pushes
// transcript, connection, token, status and cost events.
type Gateway struct {
	log      *log.Logger
	session  *session.Session
	upgrader websocket.Upgrader
}

func New(sess *session.Session, logger *log.Logger) *Gateway {
	return &Gateway{
		log:     logger,
		session: sess,
		upgrader: websocket.Upgrader{
			// local-only surface, the overlay connects from its own origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/session/start", g.handleStart)
	r.Post("/session/stop", g.handleStop)

	r.Post("/capture", g.handleCapture)
	r.Post("/capture/hold", g.handleHold)
	r.Post("/capture/cancel", g.handleCancel)

	r.Get("/transcript", g.handleTranscript)
	r.Post("/transcript/{id}/edit", g.handleEdit)
	r.Post("/transcript/{id}/delete", g.handleDelete)
	r.Post("/transcript/{id}/undo", g.handleUndo)
	r.Post("/speakers/{source}", g.handleRenameSpeaker)

	r.Get("/ws/events", g.handleEvents)
	r.Get("/ws/audio", g.handleAudio)

	return r
}

func (g *Gateway) Serve(port int) error {
	g.log.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), g.Router())
}

func (g *Gateway) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	// Connections outlive the request; /session/stop tears them down.
	g.session.Start(context.Background(), body.Language)
	writeJSON(w, map[string]string{"sessionId": g.session.ID})
}

func (g *Gateway) handleStop(w http.ResponseWriter, r *http.Request) {
	g.session.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleCapture(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Question  string `json:"question"`
		Mode      string `json:"mode"`
		Highlight string `json:"highlight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// The answer outlives this request; cancellation goes through
	// /capture/cancel, not the request context.
	responseID := g.session.Ask(context.Background(), session.Capture{
		Question:  body.Question,
		Mode:      session.CaptureMode(body.Mode),
		Highlight: body.Highlight,
	})
	writeJSON(w, map[string]string{"responseId": responseID})
}

func (g *Gateway) handleHold(w http.ResponseWriter, r *http.Request) {
	g.session.HoldStart()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleCancel(w http.ResponseWriter, r *http.Request) {
	g.session.CancelAnswer()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, g.session.Transcript().SnapshotFull())
}

func (g *Gateway) handleEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	g.session.Edit(chi.URLParam(r, "id"), body.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	g.session.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleUndo(w http.ResponseWriter, r *http.Request) {
	g.session.Undo(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleRenameSpeaker(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	source := audio.Source(chi.URLParam(r, "source"))
	if source != audio.SourceMic && source != audio.SourceTab {
		http.Error(w, "unknown source", http.StatusBadRequest)
		return
	}
	g.session.RenameSpeaker(source, body.Name)
	w.WriteHeader(http.StatusNoContent)
}

// audioFrame is one inbound PCM frame from the capture process.
type audioFrame struct {
	Source      string `json:"source"`
	PCM         string `json:"pcm"`
	TimestampMs int64  `json:"timestampMs"`
	SampleRate  int    `json:"sampleRate"`
	Commit      bool   `json:"commit"`
}

func (g *Gateway) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("upgrade", "error", err)
		return
	}
	defer conn.Close()

	for {
		var frame audioFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Warn("audio socket", "error", err)
			}
			return
		}
		source := audio.Source(frame.Source)
		if source != audio.SourceMic && source != audio.SourceTab {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(frame.PCM)
		if err != nil {
			continue
		}
		g.session.PushAudio(audio.Chunk{
			Source:      source,
			PCM:         pcm,
			SampleRate:  frame.SampleRate,
			TimestampMs: frame.TimestampMs,
		})
		if frame.Commit {
			g.session.Commit(source)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}
