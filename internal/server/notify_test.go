package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// TestNotifier_ChangesReceived tests that a connected GUI client gets
// the changes_received event.
func TestNotifier_ChangesReceived(t *testing.T) {
	n := NewNotifier(log.New(io.Discard, "", 0))
	n.Start()
	t.Cleanup(n.Stop)

	ts := httptest.NewServer(http.HandlerFunc(n.HandleWebSocket))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.URL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	deadline := time.Now().Add(2 * time.Second)
	for n.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	n.ChangesReceived(3)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if e.Type != EventChangesReceived {
		t.Errorf("type = %q, want %q", e.Type, EventChangesReceived)
	}

	var payload ChangesReceivedData
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Count != 3 {
		t.Errorf("count = %d, want 3", payload.Count)
	}
}

// TestNotifier_DropWithoutClients tests that broadcasting with no
// clients neither blocks nor errors.
func TestNotifier_DropWithoutClients(t *testing.T) {
	n := NewNotifier(log.New(io.Discard, "", 0))
	n.Start()
	t.Cleanup(n.Stop)

	for i := 0; i < 10; i++ {
		n.ChangesReceived(1)
	}

	if n.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", n.ClientCount())
	}
}
