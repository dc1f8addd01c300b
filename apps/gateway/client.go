package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-sync/pkg/auth"
	"github.com/mahaj/chat-sync/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum command size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// TypingSink receives typing flags from connected clients.
type TypingSink interface {
	SetTyping(ctx context.Context, st model.TypingState) error
}

// Client is a middleman between the websocket connection and the hub. All
// writes go through the buffered send channel; the hub never touches the
// connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	typing TypingSink
	logger *slog.Logger

	// Buffered channel of outbound frames.
	send chan []byte

	// Authenticated user id; trusted for all filter evaluation.
	UserID string

	// Active subscriptions by client-chosen id. Owned by the hub goroutine.
	subs map[string]*subscription
}

// command is what clients send: subscription management plus the one
// best-effort write that rides the socket (typing).
type command struct {
	Action         string  `json:"action"` // subscribe | unsubscribe | typing
	Sub            string  `json:"sub,omitempty"`
	Type           SubKind `json:"type,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	IsTyping       bool    `json:"is_typing,omitempty"`
}

// readPump pumps commands from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read failed", "user", c.UserID, "error", err)
			}
			break
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.logger.Warn("bad command", "user", c.UserID, "error", err)
			continue
		}

		switch cmd.Action {
		case "subscribe":
			c.hub.subscribeCh <- &subscription{
				id:             cmd.Sub,
				kind:           cmd.Type,
				client:         c,
				userID:         c.UserID,
				conversationID: cmd.ConversationID,
			}
		case "unsubscribe":
			c.hub.cancelCh <- cancelSub{client: c, id: cmd.Sub}
		case "typing":
			if cmd.ConversationID == "" {
				continue
			}
			st := model.TypingState{
				ConversationID: cmd.ConversationID,
				UserID:         c.UserID,
				IsTyping:       cmd.IsTyping,
			}
			// Best-effort; a lost flag self-corrects on the next one.
			if err := c.typing.SetTyping(context.Background(), st); err != nil {
				c.logger.Warn("set typing failed", "user", c.UserID, "error", err)
			}
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates and upgrades a websocket request.
func serveWs(hub *Hub, sessions *auth.Sessions, typing TypingSink, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	claims, err := sessions.FromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		typing: typing,
		logger: logger,
		send:   make(chan []byte, 256),
		UserID: claims.UserID,
		subs:   make(map[string]*subscription),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
