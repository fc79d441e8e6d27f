package realtime

import (
	"sync"
	"testing"
	"time"
)

func snap(topic, id string, at time.Time, version string) Snapshot {
	return Snapshot{Topic: topic, Kind: KindRequest, ID: id, UpdatedAt: at, Version: version}
}

func TestHub_PublishToTopicOnly(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe(RequestTopic("r1"))
	b := h.Subscribe(RequestTopic("r2"))
	defer a.Close()
	defer b.Close()

	h.Publish(snap(RequestTopic("r1"), "r1", time.Now(), ""))

	select {
	case got := <-a.C():
		if got.ID != "r1" || got.Version == "" {
			t.Fatalf("unexpected snapshot %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber a did not receive")
	}
	select {
	case got := <-b.C():
		t.Fatalf("subscriber b received %+v", got)
	default:
	}
}

func TestHub_AssignsIncreasingVersions(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe("request:r")
	defer s.Close()
	h.Publish(snap("request:r", "r", time.Time{}, ""))
	h.Publish(snap("request:r", "r", time.Time{}, ""))
	h.Publish(snap("request:r", "r", time.Time{}, "explicit"))
	v1, v2, v3 := (<-s.C()).Version, (<-s.C()).Version, (<-s.C()).Version
	if !(v1 < v2) {
		t.Fatalf("versions not increasing: %q %q", v1, v2)
	}
	if v3 != "explicit" {
		t.Fatalf("explicit version overwritten: %q", v3)
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(2)
	s := h.Subscribe("t")
	defer s.Close()

	for i := 0; i < 5; i++ {
		h.Publish(Snapshot{Topic: "t", Kind: KindMessage, ID: string(rune('a' + i))})
	}
	if s.Dropped() != 3 {
		t.Fatalf("want 3 dropped, got %d", s.Dropped())
	}
	if got := (<-s.C()).ID; got != "d" {
		t.Fatalf("oldest kept should be d, got %s", got)
	}
	if got := (<-s.C()).ID; got != "e" {
		t.Fatalf("newest should be e, got %s", got)
	}
}

func TestSubscription_CloseUnsubscribes(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("x", "y")
	if h.Subscribers("x") != 1 || h.Subscribers("y") != 1 {
		t.Fatalf("not registered")
	}
	s.Close()
	s.Close()
	if h.Subscribers("x") != 0 || h.Subscribers("y") != 0 {
		t.Fatalf("still registered after close")
	}
	if _, ok := <-s.C(); ok {
		t.Fatalf("channel not closed")
	}
	// publishing after close must not panic
	h.Publish(Snapshot{Topic: "x", Kind: KindChat, ID: "c"})
}

func TestHub_ConcurrentPublishAndClose(t *testing.T) {
	h := NewHub(1)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := h.Subscribe("t")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Publish(Snapshot{Topic: "t", Kind: KindChat, ID: "c"})
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	if h.Subscribers("t") != 0 {
		t.Fatalf("leaked subscriptions")
	}
}

func TestView_LastWriteWins(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := snap("request:r", "r", t0, "1")
	newer := snap("request:r", "r", t0.Add(time.Second), "1")
	tie := snap("request:r", "r", t0.Add(time.Second), "2")

	v := NewView()
	if !v.Apply(newer) {
		t.Fatalf("first apply should change view")
	}
	if v.Apply(older) {
		t.Fatalf("older snapshot must not win")
	}
	if v.Apply(newer) {
		t.Fatalf("replay must be a no-op")
	}
	if !v.Apply(tie) {
		t.Fatalf("higher version should win a tie")
	}
	got, _ := v.Get(KindRequest, "r")
	if got.Version != "2" {
		t.Fatalf("want version 2, got %q", got.Version)
	}

	// any delivery order converges
	w := NewView()
	for _, s := range []Snapshot{tie, older, newer} {
		w.Apply(s)
	}
	if g, _ := w.Get(KindRequest, "r"); g.Version != "2" || !g.UpdatedAt.Equal(tie.UpdatedAt) {
		t.Fatalf("out of order delivery did not converge: %+v", g)
	}
}

func TestView_List(t *testing.T) {
	t0 := time.Now().UTC()
	v := NewView()
	v.Apply(snap("x", "a", t0, ""))
	v.Apply(snap("x", "b", t0.Add(time.Minute), ""))
	v.Apply(Snapshot{Kind: KindChat, ID: "c", UpdatedAt: t0})
	got := v.List(KindRequest)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected list %+v", got)
	}
	if v.Len() != 3 {
		t.Fatalf("len = %d", v.Len())
	}
}

func TestParseTopic(t *testing.T) {
	cases := map[string]bool{
		"chat:1":    true,
		"request:r": true,
		"user:u":    true,
		"offer:1":   false,
		"chat:":     false,
		"nocolon":   false,
	}
	for topic, ok := range cases {
		if _, _, got := ParseTopic(topic); got != ok {
			t.Fatalf("%q: want %v got %v", topic, ok, got)
		}
	}
	p, id, _ := ParseTopic(ChatTopic("abc"))
	if p != "chat" || id != "abc" {
		t.Fatalf("got %q %q", p, id)
	}
}

func TestNewSnapshot(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	type entity struct {
		ID        string    `json:"id"`
		Price     float64   `json:"price"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	s, err := NewSnapshot(RequestTopic("r"), KindOffer, entity{ID: "o1", Price: 10, UpdatedAt: at})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if s.ID != "o1" || !s.UpdatedAt.Equal(at) || s.Data["price"] != float64(10) {
		t.Fatalf("unexpected %+v", s)
	}
	if _, err := NewSnapshot("t", KindOffer, entity{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}
