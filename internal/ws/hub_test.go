package ws

import (
	"encoding/json"
	"testing"
	"time"
)

func testClient(h *Hub, userID string) *Client {
	return NewClient(h, nil, userID, "customer")
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case frame := <-c.send:
		var m Message
		if err := json.Unmarshal(frame, &m); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
		return Message{}
	}
}

func TestBroadcast_TwoSubscribersIdenticalPayload(t *testing.T) {
	h := NewHub()
	a := testClient(h, "a")
	b := testClient(h, "b")
	group := DroneGroup("42")
	h.Join(group, a)
	h.Join(group, b)

	delivered := h.Broadcast(group, Message{
		Type:    "telemetry",
		Payload: map[string]any{"battery": 87.5, "lat": 12.98},
	})
	if delivered != 2 {
		t.Fatalf("expected delivery to both subscribers, got %d", delivered)
	}

	ma, mb := recv(t, a), recv(t, b)
	if ma.Type != "telemetry" || mb.Type != "telemetry" {
		t.Fatalf("wrong types: %s / %s", ma.Type, mb.Type)
	}
	pa, _ := json.Marshal(ma.Payload)
	pb, _ := json.Marshal(mb.Payload)
	if string(pa) != string(pb) {
		t.Fatalf("payloads differ: %s vs %s", pa, pb)
	}
	if ma.Group != group {
		t.Fatalf("expected group %s, got %s", group, ma.Group)
	}
}

func TestBroadcast_NoReorderingPerSubscriber(t *testing.T) {
	h := NewHub()
	c := testClient(h, "a")
	group := DroneGroup("42")
	h.Join(group, c)

	h.Broadcast(group, Message{Type: "telemetry", Payload: map[string]any{"seq": 1}})
	h.Broadcast(group, Message{Type: "telemetry", Payload: map[string]any{"seq": 2}})

	first := recv(t, c)
	second := recv(t, c)
	p1 := first.Payload.(map[string]any)
	p2 := second.Payload.(map[string]any)
	if p1["seq"].(float64) != 1 || p2["seq"].(float64) != 2 {
		t.Fatalf("messages reordered: %v then %v", p1["seq"], p2["seq"])
	}
}

func TestBroadcast_DropsOnBackpressure(t *testing.T) {
	h := NewHub()
	slow := testClient(h, "slow")
	group := GroupDroneUpdates
	h.Join(group, slow)

	// Fill the subscriber's buffer without draining it.
	for i := 0; i < sendBuffer; i++ {
		if got := h.Broadcast(group, Message{Type: "telemetry", Payload: i}); got != 1 {
			t.Fatalf("frame %d should fit in the buffer", i)
		}
	}

	// Next frame must be dropped, not block the publisher.
	done := make(chan int, 1)
	go func() { done <- h.Broadcast(group, Message{Type: "telemetry", Payload: "overflow"}) }()
	select {
	case delivered := <-done:
		if delivered != 0 {
			t.Fatalf("overflow frame should be dropped, delivered=%d", delivered)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestBroadcast_SurvivesConcurrentDisconnects(t *testing.T) {
	h := NewHub()
	group := GroupDroneUpdates

	const n = 512
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = testClient(h, "u")
		h.Join(group, clients[i])
	}

	// Disconnect everyone while broadcasts are in flight. The pump teardown
	// sequence must never make a concurrent Broadcast panic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range clients {
			h.remove(c)
			close(c.done)
		}
	}()

	for i := 0; i < 50; i++ {
		h.Broadcast(group, Message{Type: "telemetry", Payload: i})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnects did not finish")
	}
	if h.GroupSize(group) != 0 {
		t.Fatalf("expected empty group, got %d members", h.GroupSize(group))
	}
}

func TestHub_LeaveAndRemove(t *testing.T) {
	h := NewHub()
	c := testClient(h, "a")
	h.Join(GroupDroneUpdates, c)
	h.Join(DroneGroup("7"), c)

	h.Leave(DroneGroup("7"), c)
	if h.GroupSize(DroneGroup("7")) != 0 {
		t.Fatal("leave should remove the member")
	}
	if h.GroupSize(GroupDroneUpdates) != 1 {
		t.Fatal("other memberships must survive a leave")
	}

	h.remove(c)
	if h.GroupSize(GroupDroneUpdates) != 0 {
		t.Fatal("remove should clear every membership")
	}
}

func TestClient_CanJoin(t *testing.T) {
	h := NewHub()
	customer := NewClient(h, nil, "u1", "customer")
	admin := NewClient(h, nil, "u2", "admin")

	if !customer.canJoin(GroupDroneUpdates) || !customer.canJoin(DroneGroup("9")) {
		t.Fatal("shared drone feeds are open to all authenticated users")
	}
	if !customer.canJoin(UserGroup("u1")) {
		t.Fatal("a user may join their own group")
	}
	if customer.canJoin(UserGroup("u2")) {
		t.Fatal("a customer must not join another user's group")
	}
	if !admin.canJoin(UserGroup("u1")) {
		t.Fatal("admins may observe any user group")
	}
}
