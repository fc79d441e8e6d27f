package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeAuth struct {
	allowed map[string][]Snapshot
}

func (f fakeAuth) Authorize(_ context.Context, userID, topic string) ([]Snapshot, error) {
	snaps, ok := f.allowed[userID+"|"+topic]
	if !ok {
		return nil, ErrTopicForbidden
	}
	return snaps, nil
}

func newWSServer(t *testing.T, h *WSHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		topics := r.URL.Query()["topic"]
		if err := h.Serve(w, r, user, topics); err != nil {
			if errors.Is(err, ErrTopicForbidden) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
}

func TestWS_InitialStateThenLive(t *testing.T) {
	hub := NewHub(8)
	initial := Snapshot{Topic: ChatTopic("c1"), Kind: KindChat, ID: "c1", Version: "0"}
	h := NewWSHandler(hub, fakeAuth{allowed: map[string][]Snapshot{
		"u1|" + ChatTopic("c1"): {initial},
	}})
	srv := newWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "user=u1&topic=chat:c1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if got.Kind != KindChat || got.ID != "c1" {
		t.Fatalf("initial: %+v", got)
	}

	hub.Publish(Snapshot{Topic: ChatTopic("c1"), Kind: KindMessage, ID: "m1"})
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if got.Kind != KindMessage || got.ID != "m1" || got.Version == "" {
		t.Fatalf("live: %+v", got)
	}
}

func TestWS_ForbiddenTopicRejectedBeforeUpgrade(t *testing.T) {
	hub := NewHub(8)
	srv := newWSServer(t, NewWSHandler(hub, fakeAuth{allowed: map[string][]Snapshot{}}))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "user=u1&topic=chat:c1"), nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403, got %+v", resp)
	}
	if hub.Subscribers(ChatTopic("c1")) != 0 {
		t.Fatalf("subscription leaked")
	}
}

func TestWS_CloseReleasesSubscription(t *testing.T) {
	hub := NewHub(8)
	h := NewWSHandler(hub, fakeAuth{allowed: map[string][]Snapshot{"u|user:u": nil}})
	srv := newWSServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "user=u&topic=user:u"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(UserTopic("u")) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = conn.Close()
	for hub.Subscribers(UserTopic("u")) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
