package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

func TestMessages_CreateCountAndPage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now().UTC()
	seedRequest(t, db, "r1", "c1", domain.RequestAccepted, now)
	o := seedOffer(t, db, "o1", "r1", "p1", 100, domain.OfferAccepted, now)
	c, err := CreateChat(ctx, db, o)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	texts := []string{"one", "two", "three"}
	for i, txt := range texts {
		sender := "c1"
		if i%2 == 1 {
			sender = "p1"
		}
		m, err := CreateMessage(ctx, db, c.ID, sender, txt)
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		if m.ID == "" || m.ChatID != c.ID || m.SenderID != sender {
			t.Fatalf("unexpected message: %+v", m)
		}
	}

	n, err := CountMessages(ctx, db, c.ID)
	if err != nil || n != 3 {
		t.Fatalf("CountMessages = %d, %v", n, err)
	}

	page, err := ListMessagesPage(ctx, db, c.ID, 0, 10)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	for i, m := range page {
		if m.Text != texts[i] {
			t.Fatalf("order broken at %d: %q", i, m.Text)
		}
	}
	tail, _ := ListMessagesPage(ctx, db, c.ID, 2, 10)
	if len(tail) != 1 || tail[0].Text != "three" {
		t.Fatalf("offset page: %+v", tail)
	}
}

func TestCreateMessage_UnknownChatFails(t *testing.T) {
	db := newTestDB(t)
	if _, err := CreateMessage(context.Background(), db, "nope", "u1", "hi"); err == nil {
		t.Fatalf("expected foreign key violation")
	}
}
