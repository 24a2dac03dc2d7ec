package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLeaderboardStream(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	if w := do(t, router, http.MethodPost, "/v1/users/u1", nil); w.Code != http.StatusCreated {
		t.Fatalf("onboard: %d %s", w.Code, w.Body.String())
	}

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard?limit=5"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect both snapshots first.
	for _, dim := range []string{"score", "streak"} {
		msgType, payload := readNext(conn, t)
		if msgType != "leaderboard" || payload["dimension"] != dim {
			t.Fatalf("expected %s leaderboard, got %s %v", dim, msgType, payload)
		}
	}

	w := do(t, router, http.MethodPost, "/v1/users/u1/answers", map[string]any{"questionId": "q1", "answer": "4", "expectedStateVersion": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	msgType, payload := readNext(conn, t)
	if msgType != "update" {
		t.Fatalf("expected update, got %s", msgType)
	}
	if payload["userId"] != "u1" || payload["totalScore"] != float64(11) {
		t.Fatalf("unexpected update payload %v", payload)
	}

	// Ask for a list explicitly.
	if err := conn.WriteJSON(map[string]any{"type": "top", "payload": map[string]any{"dimension": "score", "limit": 1}}); err != nil {
		t.Fatalf("write top: %v", err)
	}
	msgType, payload = readNext(conn, t)
	if msgType != "leaderboard" {
		t.Fatalf("expected leaderboard, got %s", msgType)
	}
	entries, _ := payload["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %v", payload["entries"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write bogus: %v", err)
	}
	if msgType, _ = readNext(conn, t); msgType != "error" {
		t.Fatalf("expected error for unsupported type, got %s", msgType)
	}
}

func readNext(conn *websocket.Conn, t *testing.T) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}
