package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xhad/askdocs/pkg/orchestrator"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on other origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the frame exchanged with web clients.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	UserID  string      `json:"userId,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	MessageQuery    = "query"
	MessageResponse = "response"
	MessageError    = "error"
)

// handleWebSocket answers query frames in order on one connection. Frames
// are handled sequentially since gorilla connections allow one writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	log := s.logger.With(zap.String("session", session))
	log.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendMessage(conn, Message{Type: MessageError, Content: "malformed message"})
			continue
		}
		if msg.Type != MessageQuery {
			s.sendMessage(conn, Message{Type: MessageError, Content: "unsupported message type " + msg.Type})
			continue
		}

		userID := msg.UserID
		if userID == "" {
			userID = session
		}
		res := s.handler.HandleQuery(r.Context(), orchestrator.PlatformQueryContext{
			Platform:  orchestrator.PlatformWeb,
			UserID:    userID,
			ChannelID: session,
			Query:     msg.Content,
		})
		s.sendMessage(conn, Message{Type: MessageResponse, Content: res.Text, Data: res})
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("websocket write failed", zap.Error(err))
	}
}
