package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"FinGuard/internal/domain/models"
	applogger "FinGuard/pkg/logger"
)

var sample = models.AlertRecord{
	ID:        "a1",
	Timestamp: time.Date(2024, 1, 2, 18, 0, 0, 0, time.UTC),
	Type:      "performance",
	Severity:  models.AlertWarning,
	Message:   "MAPE high: 6.25% > 5%",
}

func TestSlackPayload(t *testing.T) {
	p := SlackPayload(sample)
	if p.Text != ":warning: *PERFORMANCE Alert*" {
		t.Fatalf("text = %q", p.Text)
	}
	if len(p.Blocks) != 3 || p.Blocks[0].Type != "header" {
		t.Fatalf("blocks = %+v", p.Blocks)
	}
	if p.Blocks[1].Fields[1].Text != "*Time:*\n2024-01-02T18:00:00Z" {
		t.Fatalf("time field = %q", p.Blocks[1].Fields[1].Text)
	}
	if !strings.HasSuffix(p.Blocks[2].Text.Text, sample.Message) {
		t.Fatalf("message block = %q", p.Blocks[2].Text.Text)
	}
	if emoji(models.AlertCritical) != ":rotating_light:" || emoji("OTHER") != ":bell:" {
		t.Fatalf("emoji mapping")
	}
}

func TestWebhookSinkPosts(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewWebhookSink(srv.URL, time.Second).Deliver(context.Background(), sample); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookSinkReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	if err := NewWebhookSink(srv.URL, time.Second).Deliver(context.Background(), sample); err == nil {
		t.Fatalf("expected error for 403")
	}
}

func TestHubBroadcasts(t *testing.T) {
	hub := NewHub(applogger.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Deliver(context.Background(), sample); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.AlertRecord
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != "a1" || got.Message != sample.Message {
		t.Fatalf("got %+v", got)
	}
}
