package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradejournal/internal/auth"
	"tradejournal/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Output: "stderr"})
}

// waitFor ждёт выполнения условия не дольше секунды
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestClient(hub *Hub, userID int64, buffer int) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, buffer)}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:5173", "https://journal.example.com"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"https://journal.example.com", true},
		{"http://evil.com", false},
	}
	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !NewOriginChecker(nil).Check("http://anything") {
		t.Error("empty list must allow all origins")
	}
	if !NewOriginChecker([]string{"*"}).Check("http://anything") {
		t.Error("* must allow all origins")
	}
}

func TestHub_SendToUserIsScoped(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	alice := newTestClient(hub, 1, 8)
	bob := newTestClient(hub, 2, 8)
	hub.register <- alice
	hub.register <- bob
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.NotifyTradesImported(1, TradesImportedData{BrokerID: 3, BrokerType: "upstox", ImportedCount: 8, TotalTrades: 10})

	select {
	case data := <-alice.send:
		if !strings.Contains(string(data), `"type":"tradesImported"`) || !strings.Contains(string(data), `"imported_count":8`) {
			t.Errorf("unexpected payload %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the message")
	}

	select {
	case data := <-bob.send:
		t.Errorf("bob must not receive alice's message, got %s", data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_SlowClientRemoved(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	slow := newTestClient(hub, 5, 1)
	hub.register <- slow
	waitFor(t, func() bool { return hub.UserClientCount(5) == 1 })

	hub.NotifyBrokerStatus(5, BrokerStatusData{BrokerType: "upstox", Status: "active"})
	hub.NotifyBrokerStatus(5, BrokerStatusData{BrokerType: "upstox", Status: "inactive"})

	waitFor(t, func() bool { return hub.UserClientCount(5) == 0 })
	if hub.DroppedMessages() == 0 {
		t.Error("dropped counter must grow when a slow client is removed")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(testLogger())

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	client := newTestClient(hub, 1, 1)
	hub.register <- client
	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Hub.Run() did not exit after Stop()")
	}
	if _, ok := <-client.send; ok {
		t.Error("client channel must be closed on stop")
	}
}

func TestHandler_RequiresUser(t *testing.T) {
	hub := NewHub(testLogger())
	rec := httptest.NewRecorder()
	hub.Handler(NewOriginChecker(nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/stream", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_DeliversToConnection(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	handler := hub.Handler(NewOriginChecker(nil))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(w, r.WithContext(auth.WithUserID(r.Context(), 42)))
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.UserClientCount(42) == 1 })
	hub.NotifyTradesImported(42, TradesImportedData{BrokerType: "upstox", ImportedCount: 1, TotalTrades: 1})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg struct {
		Type string             `json:"type"`
		Data TradesImportedData `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != string(MessageTypeTradesImported) || msg.Data.ImportedCount != 1 {
		t.Errorf("unexpected message %+v", msg)
	}
}
