package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/parcel-express/internal/backend"
	"github.com/example/parcel-express/internal/blob"
	"github.com/example/parcel-express/internal/models"
	"github.com/example/parcel-express/internal/query"
)

func setup(t *testing.T) (*query.Client, *Hub, *httptest.Server) {
	t.Helper()
	svc := backend.NewMemory([]string{"admin"}, blob.NewMemoryStore("/blobs"))
	client := query.NewClient(backend.NewReadyActor(svc), query.NewCache(time.Hour, nil), nil, nil)
	hub := NewHub(client, func(r *http.Request) (Subscription, bool) {
		if r.URL.Query().Get("page") != "admin" {
			return Subscription{}, false
		}
		return Subscription{
			Caller: backend.Caller{Principal: "admin"},
			Keys:   []query.Key{query.AllOrdersKey(), query.RiderProfilesKey()},
			Topics: []string{"upload/admin/1"},
		}, true
	}, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return client, hub, srv
}

func dial(t *testing.T, srv *httptest.Server, page string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?page=" + page
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubPushesInvalidationsToMountedPages(t *testing.T) {
	client, hub, srv := setup(t)
	conn := dial(t, srv, "admin")
	waitFor(t, func() bool { return hub.Len() == 1 })
	if client.Cache().Watchers(query.AllOrdersKey()) != 1 {
		t.Fatal("connected page should mount its keys")
	}

	ctx := backend.WithCaller(context.Background(), backend.Caller{Principal: "admin"})
	if _, err := client.CreateOrder(ctx, models.NewOrder{
		Customer: models.CustomerDetails{Name: "Asha", ContactNumber: "9111111111"},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "invalidate" || msg.Key != "allOrders" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if r := client.Cache().Peek(query.AllOrdersKey()); r.Status != query.StatusSuccess || r.Stale {
		t.Fatalf("mounted key should have been refetched before the push, got %+v", r)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.Len() == 0 })
	if client.Cache().Watchers(query.AllOrdersKey()) != 0 {
		t.Fatal("disconnect should unmount keys")
	}
}

func TestHubProgress(t *testing.T) {
	_, hub, srv := setup(t)
	conn := dial(t, srv, "admin")
	waitFor(t, func() bool { return hub.Len() == 1 })

	hub.Progress("upload/someone/9", "uploading", 10, "")
	hub.Progress("upload/admin/1", "uploading", 42, "")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "progress" || msg.Topic != "upload/admin/1" || msg.Percent != 42 {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestHubRejectsUnresolved(t *testing.T) {
	_, _, srv := setup(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?page=rider"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}
