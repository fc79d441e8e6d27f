package services

import (
	"context"
	"fmt"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// feedHistory bounds the messages sent as the initial state of a chat topic.
const feedHistory = 50

// Authorize implements realtime.Authorizer. It decides whether userID may
// follow topic and loads the topic's current state through the document
// gateway:
//
//	user:<id>     only the user themself; their chats
//	chat:<id>     participants; the chat and its latest messages
//	request:<id>  the owner sees every offer; a provider sees the request
//	              while it accepts offers (or after winning it) plus their
//	              own offers
//
// Missing records are reported as forbidden so topic probing reveals
// nothing.
func (l *Lifecycle) Authorize(ctx context.Context, userID, topic string) ([]realtime.Snapshot, error) {
	if userID == "" {
		return nil, realtime.ErrTopicForbidden
	}
	prefix, id, ok := realtime.ParseTopic(topic)
	if !ok {
		return nil, fmt.Errorf("%w: unknown topic %q", realtime.ErrTopicForbidden, topic)
	}
	g := l.Gateway
	if g == nil {
		g = repo.NewGateway(l.DB)
	}

	switch prefix {
	case "user":
		if id != userID {
			return nil, realtime.ErrTopicForbidden
		}
		var docs []domain.Document
		for _, field := range []string{"customer_id", "provider_id"} {
			found, err := g.Query(ctx, repo.Chats, []repo.Filter{{Field: field, Op: repo.OpEq, Value: userID}}, nil, 0)
			if err != nil {
				return nil, err
			}
			docs = append(docs, found...)
		}
		return snapshots(topic, realtime.KindChat, docs)

	case "chat":
		chat, err := g.Get(ctx, repo.Chats, id)
		if err != nil {
			return nil, feedErr(err)
		}
		if chat["customer_id"] != userID && chat["provider_id"] != userID {
			return nil, realtime.ErrTopicForbidden
		}
		msgs, err := g.Query(ctx, repo.Messages,
			[]repo.Filter{{Field: "chat_id", Op: repo.OpEq, Value: id}},
			&repo.Order{Field: "created_at", Desc: true}, feedHistory)
		if err != nil {
			return nil, err
		}
		out, err := snapshots(topic, realtime.KindChat, []domain.Document{chat})
		if err != nil {
			return nil, err
		}
		more, err := snapshots(topic, realtime.KindMessage, msgs)
		return append(out, more...), err

	default:
		req, err := g.Get(ctx, repo.Requests, id)
		if err != nil {
			return nil, feedErr(err)
		}
		offerFilter := []repo.Filter{{Field: "request_id", Op: repo.OpEq, Value: id}}
		if req["customer_id"] != userID {
			status := domain.RequestStatus(fmt.Sprint(req["status"]))
			if !status.AcceptsOffers() {
				won, err := g.Query(ctx, repo.Offers, []repo.Filter{
					{Field: "request_id", Op: repo.OpEq, Value: id},
					{Field: "provider_id", Op: repo.OpEq, Value: userID},
					{Field: "status", Op: repo.OpIn, Value: []string{string(domain.OfferAccepted), string(domain.OfferCompleted)}},
				}, nil, 1)
				if err != nil {
					return nil, err
				}
				if len(won) == 0 {
					return nil, realtime.ErrTopicForbidden
				}
			}
			offerFilter = append(offerFilter, repo.Filter{Field: "provider_id", Op: repo.OpEq, Value: userID})
		}
		offers, err := g.Query(ctx, repo.Offers, offerFilter, &repo.Order{Field: "created_at"}, 0)
		if err != nil {
			return nil, err
		}
		out, err := snapshots(topic, realtime.KindRequest, []domain.Document{req})
		if err != nil {
			return nil, err
		}
		more, err := snapshots(topic, realtime.KindOffer, offers)
		return append(out, more...), err
	}
}

func feedErr(err error) error {
	if repo.IsNotFound(err) {
		return realtime.ErrTopicForbidden
	}
	return err
}

func snapshots(topic, kind string, docs []domain.Document) ([]realtime.Snapshot, error) {
	out := make([]realtime.Snapshot, 0, len(docs))
	for _, d := range docs {
		s, err := realtime.SnapshotOf(topic, kind, d)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
