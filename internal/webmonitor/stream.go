package webmonitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// streamStatusEvents streams pre-serialized status events to an SSE client
// until the client goes away or the channel closes. first is sent
// immediately so clients render without waiting for the next change.
func streamStatusEvents(w http.ResponseWriter, r *http.Request, first *SerializedEvent, eventCh <-chan *SerializedEvent, useProtobuf bool, keepalive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)

	send := func(event *SerializedEvent) bool {
		data := event.JSONData
		if useProtobuf {
			data = event.ProtobufData
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("SSE", "Client disconnected during status event write: %v", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if first != nil && !send(first) {
		return
	}
	flusher.Flush()

	timer := time.NewTimer(keepalive)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if !send(event) {
				return
			}
		case <-timer.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
		timer.Reset(keepalive)
	}
}

// wsClient serializes writes to one WebSocket connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, data)
}

// wsRequest is a client-to-server WebSocket message.
type wsRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WS", "upgrade failed: %v", err)
		return
	}
	client := &wsClient{conn: conn}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	id, eventCh := s.status.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var req wsRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				continue
			}
			if req.Type == "snapshot_request" {
				if ev := s.status.Current(); ev != nil {
					_ = client.write(websocket.TextMessage, ev.JSONData)
				}
			}
		}
	}()

	defer func() {
		s.status.Unsubscribe(id)
		_ = conn.Close()
	}()

	if ev := s.status.Current(); ev != nil {
		if err := client.write(websocket.TextMessage, ev.JSONData); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-eventCh:
			if !ok {
				_ = client.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := client.write(websocket.TextMessage, ev.JSONData); err != nil {
				return
			}
		case <-ping.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
