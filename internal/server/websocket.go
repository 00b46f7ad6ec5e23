package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"moltblox/internal/game"
	"moltblox/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	PlayerID string `json:"playerId"`
}

type actionPayload struct {
	Action game.Action `json:"action"`
}

// statePayload is pushed to every connected player after each change.
type statePayload struct {
	session.View
	Events []session.Event `json:"events,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	sess, ok := s.manager.Get(code)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.logger.Warn("websocket accept", "code", code, "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "join" {
		sendWSError(ctx, conn, "first message must be a join")
		return
	}
	var join joinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil || strings.TrimSpace(join.PlayerID) == "" {
		sendWSError(ctx, conn, "invalid join payload")
		return
	}

	playerID := strings.TrimSpace(join.PlayerID)
	send := make(chan []byte, 64)

	// Try to reconnect existing player, or add new one
	if !sess.ConnectPlayer(playerID, send) {
		if _, err := s.manager.Join(code, playerID); err != nil {
			sendWSError(ctx, conn, err.Error())
			return
		}
		sess.ConnectPlayer(playerID, send)
	}
	s.logger.Info("player connected", "code", code, "player", playerID)

	// Notify all players about the roster change
	s.broadcastState(sess, nil)

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-send:
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSMsg(send, "error", errorPayload{Message: "invalid message"})
			continue
		}
		s.handleMessage(sess, playerID, send, msg)
	}

	// Keep the seat so the player can reconnect.
	sess.DisconnectPlayer(playerID, send)
	s.logger.Info("player disconnected", "code", code, "player", playerID)
}

func (s *Server) handleMessage(sess *session.Session, playerID string, send chan []byte, msg WSMessage) {
	switch msg.Type {
	case "action":
		var ap actionPayload
		if err := json.Unmarshal(msg.Payload, &ap); err != nil || ap.Action.Type == "" {
			sendWSMsg(send, "error", errorPayload{Message: "invalid action payload"})
			return
		}
		out, err := s.manager.Apply(sess.Code, playerID, ap.Action)
		if err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
			return
		}
		if !out.Result.Success {
			sendWSMsg(send, "error", errorPayload{Message: out.Result.Error})
			return
		}
		s.broadcastState(sess, out.Events)

	case "start":
		out, err := s.manager.Start(sess.Code, playerID)
		if err != nil {
			sendWSMsg(send, "error", errorPayload{Message: err.Error()})
			return
		}
		s.broadcastState(sess, out.Events)

	default:
		sendWSMsg(send, "error", errorPayload{Message: "unknown message type: " + msg.Type})
	}
}

func (s *Server) broadcastState(sess *session.Session, events []session.Event) {
	view, err := s.manager.Snapshot(sess.Code)
	if err != nil {
		s.logger.Warn("broadcast state", "code", sess.Code, "err", err)
		return
	}
	p, _ := json.Marshal(statePayload{View: view, Events: events})
	msg, _ := json.Marshal(WSMessage{Type: "state", Payload: p})
	sess.Broadcast(msg)
}

func sendWSMsg(send chan []byte, msgType string, payload any) {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(WSMessage{Type: msgType, Payload: p})
	select {
	case send <- msg:
	default:
	}
}

func sendWSError(ctx context.Context, conn *websocket.Conn, message string) {
	p, _ := json.Marshal(errorPayload{Message: message})
	msg, _ := json.Marshal(WSMessage{Type: "error", Payload: p})
	conn.Write(ctx, websocket.MessageText, msg)
}
