package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
)

func TestSendAndListMessages(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	seedProfile(t, l.DB, "c1", domain.RoleCustomer)
	seedProfile(t, l.DB, "p1", domain.RoleProvider)
	_, chatID := acceptedJob(t, l, "c1", "p1", 120)

	sub := l.Hub.Subscribe(realtime.ChatTopic(chatID))
	defer sub.Close()

	for i, tc := range []struct {
		s    Session
		text string
	}{
		{customer("c1"), "hello"},
		{provider("p1"), "on my way"},
		{customer("c1"), "thanks"},
	} {
		m, err := l.SendMessage(ctx, tc.s, chatID, tc.text)
		if err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
		if m.SenderID != tc.s.UserID {
			t.Fatalf("sender = %s", m.SenderID)
		}
	}

	page, err := l.ListMessages(ctx, provider("p1"), chatID, 1, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if page.Total != 3 || len(page.Messages) != 2 || page.Messages[0].Text != "hello" {
		t.Fatalf("page = %+v", page)
	}
	page, _ = l.ListMessages(ctx, customer("c1"), chatID, 2, 2)
	if len(page.Messages) != 1 || page.Messages[0].Text != "thanks" {
		t.Fatalf("page 2 = %+v", page)
	}

	chats, err := l.ListChats(ctx, customer("c1"))
	if err != nil || len(chats) != 1 {
		t.Fatalf("ListChats: %+v %v", chats, err)
	}
	c := chats[0]
	if c.CounterpartID != "p1" || c.CounterpartName != "name p1" || c.LastMessage != "thanks" || c.Closed {
		t.Fatalf("chat view = %+v", c)
	}
	pc, _ := l.ListChats(ctx, provider("p1"))
	if len(pc) != 1 || pc[0].CounterpartName != "name c1" {
		t.Fatalf("provider chats = %+v", pc)
	}

	view := realtime.NewView()
	for len(sub.C()) > 0 {
		view.Apply(<-sub.C())
	}
	if got := len(view.List(realtime.KindMessage)); got != 3 {
		t.Fatalf("message snapshots = %d", got)
	}
	if snap, ok := view.Get(realtime.KindChat, chatID); !ok || snap.Data["last_message"] != "thanks" {
		t.Fatalf("chat snapshot = %+v", snap)
	}
}

func TestSendMessage_Rules(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	_, chatID := acceptedJob(t, l, "c1", "p1", 120)

	if _, err := l.SendMessage(ctx, customer("c2"), chatID, "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: err = %v", err)
	}
	if _, err := l.ListMessages(ctx, customer("c2"), chatID, 1, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider list: err = %v", err)
	}
	if _, err := l.SendMessage(ctx, customer("c1"), chatID, "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty: err = %v", err)
	}
	if _, err := l.SendMessage(ctx, customer("c1"), chatID, strings.Repeat("ş", MaxMessageRunes+1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("too long: err = %v", err)
	}
	if _, err := l.SendMessage(ctx, customer("c1"), "missing", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing chat: err = %v", err)
	}

	if err := l.CompleteJob(ctx, provider("p1"), chatID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if _, err := l.SendMessage(ctx, customer("c1"), chatID, "one more"); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("closed chat: err = %v", err)
	}
	chats, _ := l.ListChats(ctx, customer("c1"))
	if len(chats) != 1 || !chats[0].Closed {
		t.Fatalf("chat not closed: %+v", chats)
	}
}

func TestAuthorize(t *testing.T) {
	l, _ := newTestLifecycle(t)
	ctx := context.Background()
	r := postRequest(t, l, "c1", "Fix tap")
	won := submit(t, l, "p1", r.ID, 90)
	submit(t, l, "p2", r.ID, 95)

	// while open, a provider sees the request and only their own offer
	snaps, err := l.Authorize(ctx, "p2", realtime.RequestTopic(r.ID))
	if err != nil {
		t.Fatalf("Authorize p2: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Kind != realtime.KindRequest || snaps[1].Data["provider_id"] != "p2" {
		t.Fatalf("p2 snapshots = %+v", snaps)
	}
	snaps, _ = l.Authorize(ctx, "c1", realtime.RequestTopic(r.ID))
	if len(snaps) != 3 {
		t.Fatalf("owner snapshots = %d, want 3", len(snaps))
	}

	chatID, err := l.AcceptOffer(ctx, customer("c1"), won.ID)
	if err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if _, err := l.SendMessage(ctx, provider("p1"), chatID, "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	tests := []struct {
		name   string
		user   string
		topic  string
		want   int
		denied bool
	}{
		{"own user topic", "p1", realtime.UserTopic("p1"), 1, false},
		{"foreign user topic", "p2", realtime.UserTopic("p1"), 0, true},
		{"chat participant", "c1", realtime.ChatTopic(chatID), 2, false},
		{"chat outsider", "p2", realtime.ChatTopic(chatID), 0, true},
		{"missing chat", "c1", realtime.ChatTopic("nope"), 0, true},
		{"losing provider", "p2", realtime.RequestTopic(r.ID), 0, true},
		{"winning provider", "p1", realtime.RequestTopic(r.ID), 2, false},
		{"unknown prefix", "c1", "admin:all", 0, true},
		{"anonymous", "", realtime.UserTopic("p1"), 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snaps, err := l.Authorize(ctx, tc.user, tc.topic)
			if tc.denied {
				if !errors.Is(err, realtime.ErrTopicForbidden) {
					t.Fatalf("err = %v, want ErrTopicForbidden", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if len(snaps) != tc.want {
				t.Fatalf("snapshots = %d, want %d", len(snaps), tc.want)
			}
			for _, s := range snaps {
				if s.Topic != tc.topic || s.ID == "" || s.UpdatedAt.IsZero() {
					t.Fatalf("bad snapshot %+v", s)
				}
			}
		})
	}
}
