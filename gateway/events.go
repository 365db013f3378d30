package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// envelope wraps every outward event with a type tag so the overlay
// can dispatch without sniffing payload shapes.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	eventTranscript  = "transcript"
	eventConnection  = "connection"
	eventStreamError = "stream_error"
	eventToken       = "token"
	eventStatus      = "status"
	eventCost        = "cost"
)

const pingInterval = 30 * time.Second

// handleEvents pushes the session's outward events over one
// websocket. A single goroutine owns all writes to the connection.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("upgrade", "error", err)
		return
	}
	defer conn.Close()

	// Drain inbound frames so close and pong handling keep working.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	answers := g.session.Answers()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(kind string, payload interface{}) bool {
		if err := conn.WriteJSON(envelope{Type: kind, Payload: payload}); err != nil {
			g.log.Warn("event socket", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u := <-g.session.Updates():
			if !write(eventTranscript, u) {
				return
			}
		case change := <-g.session.States():
			payload := map[string]interface{}{
				"source": change.Source,
				"state":  change.State,
			}
			if change.Err != nil {
				payload["error"] = change.Err.Error()
			}
			if !write(eventConnection, payload) {
				return
			}
		case se := <-g.session.StreamErrors():
			if !write(eventStreamError, se) {
				return
			}
		case ev := <-answers.Tokens:
			if !write(eventToken, ev) {
				return
			}
		case ev := <-answers.Statuses:
			if !write(eventStatus, ev) {
				return
			}
		case ev := <-answers.Costs:
			if !write(eventCost, ev) {
				return
			}
		}
	}
}
