package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

// MaxMessageRunes caps a single chat message.
const MaxMessageRunes = 2000

// SendMessage appends text to a chat on behalf of one of its participants.
// The chat closes when its job completes; later messages are a
// PreconditionFailed.
func (l *Lifecycle) SendMessage(ctx context.Context, s Session, chatID, text string) (_ *domain.Message, err error) {
	const op = "SendMessage"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("chat.id", chatID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid(op, "text: is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, invalid(op, "text: length must be at most %d", MaxMessageRunes)
	}

	chat, err := l.participantChat(ctx, op, s, chatID)
	if err != nil {
		return nil, err
	}
	req, err := repo.GetRequest(ctx, l.DB, chat.RequestID)
	if err != nil {
		return nil, storeErr(op, "request", err)
	}
	if req.Status == domain.RequestCompleted {
		return nil, precondition(op, "chat is closed")
	}

	var msg *domain.Message
	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if msg, err = repo.CreateMessage(ctx, tx, chat.ID, s.UserID, text); err != nil {
			return err
		}
		if err := repo.TouchChat(ctx, tx, chat.ID, text, msg.CreatedAt); err != nil {
			return err
		}
		return repo.AppendEvent(ctx, tx, aggregateChat, chat.ID, domain.EventMessageSent, map[string]any{
			"chat_id":    chat.ID,
			"message_id": msg.ID,
			"sender_id":  s.UserID,
		})
	})
	if err != nil {
		return nil, storeErr(op, "message", err)
	}

	l.publish(realtime.ChatTopic(chat.ID), realtime.KindMessage, msg)
	if c, err := repo.GetChat(ctx, l.DB, chat.ID); err == nil {
		l.publish(realtime.ChatTopic(c.ID), realtime.KindChat, c)
		l.publish(realtime.UserTopic(c.Counterpart(s.UserID)), realtime.KindChat, c)
	}
	return msg, nil
}

// MessagePage is one page of a chat's history.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int64            `json:"total"`
}

// ListMessages returns a page of a chat's messages, oldest first. Only
// participants may read them.
func (l *Lifecycle) ListMessages(ctx context.Context, s Session, chatID string, page, pageSize int) (_ *MessagePage, err error) {
	const op = "ListMessages"
	ctx, span := l.start(ctx, op, attribute.String("user.id", s.UserID), attribute.String("chat.id", chatID))
	defer end(span, op, &err)

	if err := s.require(op, domain.RoleNone); err != nil {
		return nil, err
	}
	if _, err := l.participantChat(ctx, op, s, chatID); err != nil {
		return nil, err
	}
	pg := utils.Page{Number: page, Size: pageSize}.Clamp()

	out := &MessagePage{Page: pg.Number, PageSize: pg.Size}
	err = l.read(ctx, op, "messages", func(ctx context.Context) error {
		var err error
		if out.Total, err = repo.CountMessages(ctx, l.DB, chatID); err != nil {
			return err
		}
		out.Messages, err = repo.ListMessagesPage(ctx, l.DB, chatID, pg.Offset(), pg.Size)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return out, nil
}
