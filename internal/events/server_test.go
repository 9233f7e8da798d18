package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vivek100/dashwizard/internal/cache"
	"github.com/vivek100/dashwizard/internal/remote"
	"github.com/vivek100/dashwizard/internal/schema"
	"github.com/vivek100/dashwizard/internal/sync"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	time.Sleep(100 * time.Millisecond)
	return server
}

func dialClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// The handler registers the client right after the handshake; give
	// it a moment.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if server.Addr() == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	server := NewServer(&Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	// Teardown of a server that never listened must not panic.
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop unstarted server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialClient(t, ctx, server)

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)

	server.BroadcastData(MessageTypeStatus, StatusData{Status: "syncing"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}

	var received Message
	if err := json.Unmarshal(data, &received); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if received.Type != MessageTypeStatus {
		t.Errorf("Expected message type %s, got %s", MessageTypeStatus, received.Type)
	}
	if received.Timestamp.IsZero() {
		t.Error("Broadcast message has no timestamp")
	}

	var status StatusData
	if err := json.Unmarshal(received.Data, &status); err != nil {
		t.Fatalf("Failed to unmarshal status data: %v", err)
	}
	if status.Status != "syncing" {
		t.Errorf("Expected status syncing, got %s", status.Status)
	}
}

func TestMultipleClients(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conns[i] = dialClient(t, ctx, server)
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != numClients && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if count := server.ClientCount(); count != numClients {
		t.Fatalf("Expected %d clients, got %d", numClients, count)
	}

	server.BroadcastData(MessageTypeQueue, QueueData{Pending: 7})

	for i, conn := range conns {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Client %d failed to read broadcast: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Client %d failed to unmarshal: %v", i, err)
		}
		if msg.Type != MessageTypeQueue {
			t.Errorf("Client %d: expected %s, got %s", i, MessageTypeQueue, msg.Type)
		}
	}
}

// relayClient is a remote.Client that never answers; the manager under
// test only produces queue events, which need no network.
type relayClient struct{}

func (relayClient) FetchUserDashboards(ctx context.Context) ([]schema.Dashboard, error) {
	return nil, remote.ErrUnavailable
}

func (relayClient) FetchTemplates(ctx context.Context) ([]schema.Dashboard, error) {
	return nil, remote.ErrUnavailable
}

func (relayClient) CreateDashboard(ctx context.Context, d schema.Dashboard) error {
	return remote.ErrUnavailable
}

func (relayClient) UpdateDashboard(ctx context.Context, d schema.Dashboard) error {
	return remote.ErrUnavailable
}

func (relayClient) DeleteDashboard(ctx context.Context, id string) error {
	return remote.ErrUnavailable
}

func (relayClient) Ping(ctx context.Context) error { return remote.ErrUnavailable }

func TestAttachRelaysManagerEvents(t *testing.T) {
	server := testServer(t)

	db, err := cache.Open(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := sync.DefaultConfig()
	cfg.DrainInterval = time.Hour
	cfg.FullSyncInterval = 0
	cfg.Logger = log.New(io.Discard, "", 0)
	mgr := sync.NewManager(db, relayClient{}, remote.StaticSession("token"), "", cfg)
	t.Cleanup(mgr.Stop)

	server.Attach(mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialClient(t, ctx, server)

	payload, _ := json.Marshal(schema.New("Sales", ""))
	if err := mgr.Enqueue(cache.OpUpdate, "d1", payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The enqueue produces a queue_change; the kicked drain then flips
	// status to syncing and offline. Scan for the queue event.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read relayed event: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type != MessageTypeQueue {
			continue
		}
		var q QueueData
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			t.Fatalf("Failed to unmarshal queue data: %v", err)
		}
		if q.Pending != 1 {
			t.Errorf("Expected 1 pending, got %d", q.Pending)
		}
		return
	}
}
