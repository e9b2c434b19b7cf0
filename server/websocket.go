package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"meteo/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the frame pushed to websocket clients.
type Message struct {
	Type string      `json:"type"`
	Data outcomeView `json:"data"`
}

const MessageTypeOutcome = "outcome"

// Stream upgrades to a websocket and pushes the current outcome followed by
// every new one until the client goes away or the state stops.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	updates, release := h.state.Subscribe()
	defer release()

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	h.logger.Debug("websocket client connected", logger.String("remote", r.RemoteAddr))

	for {
		select {
		case <-closed:
			h.logger.Debug("websocket client disconnected", logger.String("remote", r.RemoteAddr))
			return
		case outcome, ok := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(Message{Type: MessageTypeOutcome, Data: newOutcomeView(outcome)}); err != nil {
				h.logger.Debug("websocket write failed", logger.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control frames are processed, and
// closes done once the connection fails.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
