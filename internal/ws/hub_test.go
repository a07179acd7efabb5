package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"slotswapper.dev/internal/notify"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(func(token string) (string, error) {
		if user, ok := strings.CutPrefix(token, "valid-"); ok {
			return user, nil
		}
		return "", errors.New("bad token")
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", want, hub.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRejectsMissingOrInvalidToken(t *testing.T) {
	_, wsURL := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	if err == nil {
		t.Fatal("expected dial failure with invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestPublishReachesOnlyTargetUser(t *testing.T) {
	hub, wsURL := newTestHub(t)

	alice := dial(t, wsURL, "valid-alice")
	bob := dial(t, wsURL, "valid-bob")
	waitForConnections(t, hub, 2)

	sent := notify.Notice{Title: "Request Approved", Message: "Your request was approved.", CreatedAt: time.Now().UTC()}
	hub.Publish("alice", sent)

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := alice.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got frame
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if got.Event != "notification" || got.Data.Title != sent.Title || got.Data.Message != sent.Message {
		t.Fatalf("unexpected frame %+v", got)
	}

	// Bob must not receive Alice's notice.
	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatal("expected read timeout for untargeted user")
	}
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	hub, wsURL := newTestHub(t)

	first := dial(t, wsURL, "valid-alice")
	second := dial(t, wsURL, "valid-alice")
	waitForConnections(t, hub, 2)

	hub.Publish("alice", notify.Notice{Title: "t", Message: "m", CreatedAt: time.Now().UTC()})

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn := dial(t, wsURL, "valid-alice")
	waitForConnections(t, hub, 1)

	_ = conn.Close()
	waitForConnections(t, hub, 0)

	// Publishing to a user with no connections is a no-op.
	hub.Publish("alice", notify.Notice{Title: "t", Message: "m", CreatedAt: time.Now().UTC()})
}
