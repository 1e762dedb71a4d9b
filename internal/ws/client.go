package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 50 * time.Second
	maxFrameSize = 4096
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	// send is never closed: broadcasters hold a reference to the client after
	// it left the hub, and a send on a closed channel would panic them. done
	// tells writePump to exit instead.
	send   chan []byte
	done   chan struct{}
	userID string
	role   string
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, role string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
		role:   role,
	}
}

type controlFrame struct {
	Action  string `json:"action"` // subscribe | unsubscribe
	Type    string `json:"type"`   // subscribe_drone | unsubscribe_drone
	Group   string `json:"group"`
	DroneID string `json:"drone_id"`
}

// normalize folds the drone-specific message form into action/group.
func (f *controlFrame) normalize() {
	if f.DroneID == "" {
		return
	}
	switch f.Type {
	case "subscribe_drone":
		f.Action = "subscribe"
		f.Group = DroneGroup(f.DroneID)
	case "unsubscribe_drone":
		f.Action = "unsubscribe"
		f.Group = DroneGroup(f.DroneID)
	}
}

// canJoin enforces group visibility: everyone may watch the shared drone
// feeds, but another user's private group needs an elevated role.
func (c *Client) canJoin(group string) bool {
	if group == GroupDroneUpdates || strings.HasPrefix(group, "drone_") {
		return true
	}
	if group == UserGroup(c.userID) {
		return true
	}
	return c.role == "admin" || c.role == "manager"
}

// readPump consumes subscribe/unsubscribe frames until the connection dies,
// then detaches the client everywhere.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed unexpectedly", slog.String("user_id", c.userID), slog.String("error", err.Error()))
			}
			return
		}

		var frame controlFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		frame.normalize()
		switch frame.Action {
		case "subscribe":
			if frame.Group != "" && c.canJoin(frame.Group) {
				c.hub.Join(frame.Group, c)
			}
		case "unsubscribe":
			if frame.Group != "" {
				c.hub.Leave(frame.Group, c)
			}
		}
	}
}

// writePump serializes all writes to the connection. Frames arrive in order
// from the send channel, so per-connection ordering is preserved.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
