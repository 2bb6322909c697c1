package wspool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testSpec(url string) Spec {
	return Spec{
		URL:              url,
		IdleTimeout:      -1,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		GracePeriod:      time.Second,
		BufferSize:       100,
	}.withDefaults()
}

func newTestClient(url string) *client {
	spec := testSpec(url)
	return newClient(spec, netDialer{handshakeTimeout: spec.HandshakeTimeout}, nil)
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	c := newTestClient(wsURL(server))

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if !c.isConnected() {
		t.Error("expected isConnected to return true")
	}

	if err := c.close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	if c.isConnected() {
		t.Error("expected isConnected to return false after close")
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	c := newTestClient("ws://localhost:12345")

	if err := c.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := c.connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	c := newTestClient(wsURL(server))

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.close()

	testMsg := []byte(`{"cmd":"subscribe"}`)
	if err := c.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	c := newTestClient("ws://localhost:12345")

	if err := c.Send([]byte("test")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"seq": 1}`,
		`{"seq": 2}`,
		`{"seq": 3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	c := newTestClient(wsURL(server))

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.close()

	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-c.messages:
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_ReadErrorReported(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Drop the connection without a close handshake.
		conn.Close()
	})
	defer server.Close()

	c := newTestClient(wsURL(server))

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.close()

	select {
	case err := <-c.errors:
		if err == nil {
			t.Error("expected non-nil read error")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for read error")
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	c := newTestClient(wsURL(server))

	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := c.close(); err != nil {
		t.Errorf("first close failed: %v", err)
	}

	if err := c.close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}
