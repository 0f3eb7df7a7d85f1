// internal/realtime/websocket.go
package realtime

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// WebSocketConn wraps websocket.Conn so hub.go does not import websocket.
type WebSocketConn struct {
	Conn *websocket.Conn
	mu   sync.Mutex
}

func NewWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{Conn: c}
}

func (w *WebSocketConn) WriteText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.Conn.WriteMessage(websocket.TextMessage, b)
}

func (w *WebSocketConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteText(b)
}

// ClientFrame is what a browser sends over the change-feed socket.
type ClientFrame struct {
	Type   string   `json:"type"` // subscribe | unsubscribe | ping
	Tables []string `json:"tables"`
}

// Serve runs the socket for one client: a writer goroutine drains client.Send
// while the caller's goroutine reads subscription frames until the socket closes.
func Serve(hub *Hub, client *Client, allowed map[string]bool) {
	if !hub.RegisterClient(client) {
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range client.Send {
			if err := client.Conn.WriteText(msg); err != nil {
				log.Printf("[WS] write error for user %s: %v", client.UserID, err)
				return
			}
		}
		// hub closed Send: end the read loop too
		_ = client.Conn.Conn.Close()
	}()

	for {
		var frame ClientFrame
		if err := client.Conn.Conn.ReadJSON(&frame); err != nil {
			log.Printf("[WS] read closed for user %s: %v", client.UserID, err)
			break
		}

		switch strings.ToLower(frame.Type) {
		case "subscribe":
			tables := filterTables(frame.Tables, allowed)
			hub.Subscribe(client, tables...)
			_ = client.Conn.WriteJSON(map[string]any{"type": "subscribed", "tables": tables})
		case "unsubscribe":
			hub.Unsubscribe(client, frame.Tables...)
			_ = client.Conn.WriteJSON(map[string]any{"type": "unsubscribed", "tables": frame.Tables})
		case "ping":
			_ = client.Conn.WriteJSON(map[string]any{"type": "pong"})
		}
	}

	hub.UnregisterClient(client)
	<-writerDone
}

func filterTables(tables []string, allowed map[string]bool) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if allowed == nil || allowed[t] {
			out = append(out, t)
		}
	}
	return out
}
