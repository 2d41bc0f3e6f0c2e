package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/fieldcount/countsync/internal/daemon"
	"github.com/fieldcount/countsync/internal/metrics"
	"github.com/fieldcount/countsync/internal/schema"
	syncengine "github.com/fieldcount/countsync/internal/sync"
)

func testServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	logger := zerolog.Nop()
	config.Port = 0
	config.Host = "127.0.0.1"
	config.Logger = &logger

	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// dial connects a client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, read(t, ctx, conn)
}

func read(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	logger := zerolog.Nop()
	server := NewServer(&Config{Port: 0, Host: "127.0.0.1", Logger: &logger})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("unexpected address %q", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := testServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, welcome.Type)
	}
	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestMultipleClients(t *testing.T) {
	server := testServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		clients[i], _ = dial(t, ctx, server)
	}
	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}

	server.Broadcast(Message{Type: MessageTypePending, Data: json.RawMessage(`{"total":3}`)})
	for i, conn := range clients {
		if msg := read(t, ctx, conn); msg.Type != MessageTypePending {
			t.Errorf("client %d: got %s", i, msg.Type)
		}
	}
}

func TestBroadcast_DropsSlowClient(t *testing.T) {
	logger := zerolog.Nop()
	server := NewServer(&Config{ClientBuffer: 2, Logger: &logger})

	// Registered but never drained: the welcome snapshot takes one slot.
	stalled := server.addClient(nil)
	healthy := server.addClient(nil)
	<-healthy.out

	server.Broadcast(Message{Type: MessageTypePending})
	<-healthy.out
	server.Broadcast(Message{Type: MessageTypeTagRead})

	if got := server.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	if got := server.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want only the healthy client", got)
	}
	select {
	case <-stalled.gone:
	default:
		t.Error("stalled client should be released")
	}

	var msg Message
	if err := json.Unmarshal(<-healthy.out, &msg); err != nil || msg.Type != MessageTypeTagRead {
		t.Errorf("healthy client got %+v, %v", msg, err)
	}
}

func TestBroadcast_WelcomeComesFirst(t *testing.T) {
	server := testServer(t, nil)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handler.OnPending(map[schema.RecordKind]int{schema.KindInventory: 2})
	conn, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Fatalf("first message = %s, want stats", welcome.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal welcome stats: %v", err)
	}
	if stats.Pending[schema.KindInventory] != 2 {
		t.Errorf("welcome pending = %v", stats.Pending)
	}

	handler.OnPending(map[schema.RecordKind]int{schema.KindInventory: 3})
	if msg := read(t, ctx, conn); msg.Type != MessageTypePending {
		t.Errorf("second message = %s, want pending", msg.Type)
	}
}

func TestHandlerSyncEvents(t *testing.T) {
	server := testServer(t, nil)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	handler.SyncStarted("reconnect")
	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeSyncStarted {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncStarted, msg.Type)
	}
	if handler.GetStats().State != daemon.StateSyncing {
		t.Errorf("State = %q, want syncing", handler.GetStats().State)
	}

	started := time.Now()
	res := &syncengine.CycleResult{
		Started:  started,
		Finished: started.Add(2 * time.Second),
		Uploads:  []*syncengine.KindResult{{Kind: schema.KindInventory, Uploaded: 7, Stale: 1}},
		Download: &syncengine.DownloadResult{Catalogs: []syncengine.CatalogResult{
			{Catalog: "companies", Count: 2},
			{Catalog: "products", CompanyID: 1, Err: errors.New("timeout")},
		}},
	}
	status := daemon.Status{
		State:       daemon.StateIdle,
		Attempts:    1,
		LastSuccess: time.Now(),
		Pending:     map[schema.RecordKind]int{schema.KindInventory: 1},
	}
	handler.SyncCompleted(res, status)

	msg = read(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if data.Uploaded != 7 || data.Stale != 1 || data.Catalogs != 2 || len(data.FailedCatalogs) != 1 {
		t.Errorf("unexpected sync data %+v", data)
	}
	if data.Duration != 2*time.Second {
		t.Errorf("Duration = %v", data.Duration)
	}

	msg = read(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected %s, got %s", MessageTypeStats, msg.Type)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.State != daemon.StateIdle || stats.Pending[schema.KindInventory] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHandlerSyncFailed(t *testing.T) {
	server := testServer(t, nil)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	err := errors.Join(daemon.ErrRetriesExhausted, errors.New("connection refused"))
	handler.SyncFailed(err, daemon.Status{
		State:     daemon.StateFailed,
		Attempts:  3,
		LastError: err.Error(),
		Pending:   map[schema.RecordKind]int{schema.KindAsset: 2, schema.KindTransfer: 1},
	})

	msg := read(t, ctx, conn)
	if msg.Type != MessageTypeSyncFailed {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncFailed, msg.Type)
	}
	var data SyncFailedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal failure: %v", err)
	}
	if data.Attempts != 3 || data.Pending[schema.KindAsset] != 2 {
		t.Errorf("unexpected failure data %+v", data)
	}
	if !strings.Contains(data.Error, "connection refused") {
		t.Errorf("Error = %q", data.Error)
	}

	// A client connecting after the failure sees it in the welcome snapshot.
	_, welcome := dial(t, ctx, server)
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal welcome stats: %v", err)
	}
	if stats.State != daemon.StateFailed || stats.LastError == "" {
		t.Errorf("welcome stats = %+v", stats)
	}
}

func TestHandlerTagReads(t *testing.T) {
	server := testServer(t, nil)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	productID := int64(9)
	handler.OnTagRead(schema.TagRead{ID: 1, SessionID: 3, EPC: "E200", ReadCount: 1, Matched: true, MatchedProductID: &productID})
	handler.OnTagRead(schema.TagRead{ID: 1, SessionID: 3, EPC: "E200", ReadCount: 2, Matched: true, MatchedProductID: &productID})
	handler.OnTagRead(schema.TagRead{ID: 2, SessionID: 3, EPC: "E300", ReadCount: 1})

	for i := 0; i < 3; i++ {
		msg := read(t, ctx, conn)
		if msg.Type != MessageTypeTagRead {
			t.Fatalf("message %d: got %s", i, msg.Type)
		}
	}

	stats := handler.GetStats()
	if stats.TagReads != 2 {
		t.Errorf("TagReads = %d, want 2 distinct tags", stats.TagReads)
	}
	if stats.TagsMatched != 1 {
		t.Errorf("TagsMatched = %d, want 1", stats.TagsMatched)
	}
}

func TestHandlerPending(t *testing.T) {
	server := testServer(t, nil)
	handler := NewHandler(server, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := dial(t, ctx, server)

	handler.OnPending(map[schema.RecordKind]int{schema.KindInventory: 4, schema.KindNotFound: 1})

	msg := read(t, ctx, conn)
	var data PendingData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal pending: %v", err)
	}
	if msg.Type != MessageTypePending || data.Total != 5 {
		t.Errorf("got %s %+v", msg.Type, data)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	m := metrics.New()
	m.SetOnline(true)
	server := testServer(t, &Config{
		Metrics: m.Handler(),
		Status:  func() any { return daemon.Status{State: daemon.StateIdle, Online: true} },
	})
	base := "http://" + server.GetAddr()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	if code != http.StatusOK || !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("/health = %d %s", code, body)
	}

	code, body = get("/status")
	if code != http.StatusOK || !strings.Contains(body, `"state":"idle"`) {
		t.Errorf("/status = %d %s", code, body)
	}

	code, body = get("/metrics")
	if code != http.StatusOK || !strings.Contains(body, "countsync_remote_online 1") {
		t.Errorf("/metrics = %d, missing online gauge", code)
	}

	code, body = get("/")
	if code != http.StatusOK || !strings.Contains(body, `"metrics":"/metrics"`) || !strings.Contains(body, "/ws") {
		t.Errorf("/ = %d %s", code, body)
	}

	if code, _ = get("/nope"); code != http.StatusNotFound {
		t.Errorf("/nope = %d, want 404", code)
	}
}
