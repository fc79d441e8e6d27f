package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// ChatView is one entry of a user's chat list.
type ChatView struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"request_id"`
	OfferID         string     `json:"offer_id"`
	CustomerID      string     `json:"customer_id"`
	ProviderID      string     `json:"provider_id"`
	CounterpartID   string     `json:"counterpart_id"`
	CounterpartName string     `json:"counterpart_name"`
	RequestTitle    string     `json:"request_title"`
	LastMessage     string     `json:"last_message"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Closed is set once the job is completed; no more messages are accepted.
	Closed bool `json:"closed"`
}

// ListChats returns the chats the session user takes part in, most recently
// active first.
func (l *Lifecycle) ListChats(ctx context.Context, s Session) (_ []ChatView, err error) {
	const op = "ListChats"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	var rows []repo.ChatRow
	if err := l.read(ctx, op, "chats", func(ctx context.Context) error {
		var err error
		rows, err = repo.ChatRows(ctx, l.DB, s.UserID)
		return err
	}); err != nil {
		return nil, err
	}

	out := make([]ChatView, 0, len(rows))
	for _, r := range rows {
		v := ChatView{
			ID:            r.ID,
			RequestID:     r.RequestID,
			OfferID:       r.OfferID,
			CustomerID:    r.CustomerID,
			ProviderID:    r.ProviderID,
			RequestTitle:  r.RequestTitle,
			LastMessage:   r.LastMessage,
			LastMessageAt: r.LastMessageAt,
			UpdatedAt:     r.UpdatedAt,
			Closed:        r.RequestStatus == domain.RequestCompleted,
		}
		if r.CustomerID == s.UserID {
			v.CounterpartID, v.CounterpartName = r.ProviderID, r.ProviderName
		} else {
			v.CounterpartID, v.CounterpartName = r.CustomerID, r.CustomerName
		}
		out = append(out, v)
	}
	return out, nil
}

// participantChat loads a chat and checks that s takes part in it.
func (l *Lifecycle) participantChat(ctx context.Context, op string, s Session, chatID string) (*domain.Chat, error) {
	var chat *domain.Chat
	if err := l.read(ctx, op, "chat", func(ctx context.Context) error {
		var err error
		chat, err = repo.GetChat(ctx, l.DB, chatID)
		return err
	}); err != nil {
		return nil, err
	}
	if !chat.Participant(s.UserID) {
		return nil, forbidden(op, "not a participant of this chat")
	}
	return chat, nil
}
