package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"paperdesk/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEnvelope frames outbound stream messages by topic.
type wsEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// websocket streams price ticks and the caller's state changes.
func (s *Server) websocket(c *gin.Context) {
	userID := CurrentUserID(c)
	if q := c.Query("user"); q != "" {
		userID = q
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	states, unsubStates := s.Bus.Subscribe(events.EventStateChanged, 100)
	defer unsubStates()

	for {
		select {
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsEnvelope{Type: "tick", Payload: msg}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case msg, ok := <-states:
			if !ok {
				return
			}
			payload, isState := msg.(events.StatePayload)
			if isState && payload.UserID != userID {
				continue
			}
			if err := conn.WriteJSON(wsEnvelope{Type: "state", Payload: msg}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
