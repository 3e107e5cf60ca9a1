package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	config := &Config{
		Addr:   "127.0.0.1:0", // random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	time.Sleep(100 * time.Millisecond)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := testServer(t)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestBroadcastSyncCompleted(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	server.SyncCompleted(2, 3, 1, 42*time.Millisecond)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncCompleted {
		t.Errorf("Expected message type %s, got %s", MessageTypeSyncCompleted, msg.Type)
	}

	var payload SyncCompletedData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if payload.Requests != 2 || payload.Records != 3 || payload.Files != 1 {
		t.Errorf("payload = %+v, want (2, 3, 1)", payload)
	}
}

func TestBroadcastPendingCount(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	server.PendingCount(1, 2, 3, 6)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypePendingCount {
		t.Errorf("Expected message type %s, got %s", MessageTypePendingCount, msg.Type)
	}

	var payload PendingCountData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if payload.Total != 6 {
		t.Errorf("Total = %d, want 6", payload.Total)
	}
}
