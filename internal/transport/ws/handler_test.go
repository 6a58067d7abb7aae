package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/domain"
)

func startServer(t *testing.T) (*broadcast.Broadcaster, *Handler, string) {
	t.Helper()
	b := broadcast.New(broadcast.Options{})
	h := NewHandler(b, Options{})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.CloseAll()
		srv.Close()
		b.Close()
	})
	return b, h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitForConnections(t *testing.T, b *broadcast.Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Registry().Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", b.Registry().Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestObserverReceivesUpdates(t *testing.T) {
	b, _, url := startServer(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	waitForConnections(t, b, 2)

	v := domain.VehicleTelemetry{
		ID:            "EV-7",
		Status:        domain.StatusOnTrip,
		BatteryLevel:  63.5,
		Range:         190,
		BatteryHealth: 88,
		Latitude:      28.61,
		Longitude:     77.2,
		LastUpdate:    time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
	if _, err := b.Publish(v); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, data, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.TextMessage {
			t.Errorf("frame type = %d, want text", typ)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["type"] != "vehicle_update" || got["id"] != "EV-7" || got["status"] != "on-trip" {
			t.Errorf("message = %s", data)
		}
	}
}

func TestClientFramesAreIgnored(t *testing.T) {
	b, _, url := startServer(t)
	c := dial(t, url)
	waitForConnections(t, b, 1)

	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"subscribe":"EV-1"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Publish(domain.VehicleTelemetry{ID: "EV-1", Status: domain.StatusAvailable}); err != nil {
		t.Fatal(err)
	}

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err != nil {
		t.Fatalf("read after client frame: %v", err)
	}
	if b.Registry().Len() != 1 {
		t.Fatal("client frame dropped the connection")
	}
}

func TestCloseDeregisters(t *testing.T) {
	b, _, url := startServer(t)
	c := dial(t, url)
	waitForConnections(t, b, 1)

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.Close()
	waitForConnections(t, b, 0)
}

func TestCloseAllDisconnectsObservers(t *testing.T) {
	b, h, url := startServer(t)
	c := dial(t, url)
	waitForConnections(t, b, 1)

	h.CloseAll()

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("err = %v, want going-away close", err)
	}
	waitForConnections(t, b, 0)
}

func TestPlainHTTPIsRejected(t *testing.T) {
	b := broadcast.New(broadcast.Options{})
	defer b.Close()
	h := NewHandler(b, Options{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if b.Registry().Len() != 0 {
		t.Fatal("non-websocket request registered a connection")
	}
}
