package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope for every websocket frame in both directions.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	TopK    int    `json:"top_k,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msgType, content string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Message{Type: msgType, Content: content, Data: data}); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send("error", "invalid message", nil)
			continue
		}
		if msg.Type != "query" {
			c.send("error", fmt.Sprintf("unsupported message type: %s", msg.Type), nil)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.answer(ctx, c, msg)
		}()
	}
}

func (s *Server) answer(ctx context.Context, c *wsConn, msg Message) {
	question := strings.TrimSpace(msg.Content)
	if question == "" {
		c.send("error", "question is required", nil)
		return
	}
	topK := msg.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}

	c.send("status", "Searching sources...", nil)
	result, err := s.config.Pipeline.QueryStream(ctx, question, topK, func(chunk string) {
		c.send("chunk", chunk, nil)
	})
	if err != nil {
		c.send("error", fmt.Sprintf("Error querying documents: %v", err), nil)
		return
	}

	c.send("response", result.Answer, nil)
	c.send("sources", "", map[string]any{
		"sources":       result.Sources,
		"library_links": result.LibraryLinks,
	})
}
