// Package ws is the realtime fan-out layer: named groups of subscribers fed
// by telemetry ingest and the notification service. Delivery is best-effort;
// a slow subscriber loses messages rather than stalling the publisher, but a
// single connection never sees messages reordered.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Well-known group names.
const GroupDroneUpdates = "drone_updates"

func DroneGroup(droneID string) string { return "drone_" + droneID }
func UserGroup(userID string) string   { return "user_" + userID }

type Message struct {
	Type      string    `json:"type"`
	Group     string    `json:"group,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Join(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[group] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// remove drops the client from every group; called when its pumps exit.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for group, members := range h.groups {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Broadcast marshals once and pushes the frame to every member of the group.
// Sends never block: a member whose buffer is full has the frame dropped.
// Returns the number of members that received the frame.
func (h *Hub) Broadcast(group string, msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Group = group

	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal broadcast", slog.String("group", group), slog.String("error", err.Error()))
		return 0
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		select {
		case c.send <- frame:
			delivered++
		default:
			slog.Warn("dropping frame for slow subscriber",
				slog.String("group", group),
				slog.String("user_id", c.userID),
			)
		}
	}
	return delivered
}

// GroupSize is used by health endpoints and tests.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
