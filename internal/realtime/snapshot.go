// Package realtime pushes entity snapshots to interested clients.
//
// A Hub fans snapshots out to per-topic subscriptions without ever blocking
// the publisher, a View folds received snapshots into last-write-wins state,
// and WSHandler streams a subscription over a WebSocket.
package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
)

// Snapshot kinds.
const (
	KindRequest = "request"
	KindOffer   = "offer"
	KindChat    = "chat"
	KindMessage = "message"
)

// Snapshot is the full current state of one entity as published on a topic.
type Snapshot struct {
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      domain.Document `json:"data"`
}

// Key identifies the entity a snapshot describes.
func (s Snapshot) Key() string { return s.Kind + ":" + s.ID }

// Newer reports whether s supersedes other: a later UpdatedAt wins and
// equal timestamps fall back to the greater Version.
func (s Snapshot) Newer(other Snapshot) bool {
	if !s.UpdatedAt.Equal(other.UpdatedAt) {
		return s.UpdatedAt.After(other.UpdatedAt)
	}
	return s.Version > other.Version
}

// NewSnapshot converts an entity into a snapshot for topic. The entity must
// serialize an "id" and an "updated_at" field.
func NewSnapshot(topic, kind string, entity any) (Snapshot, error) {
	doc, err := domain.ToDocument(entity)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotOf(topic, kind, doc)
}

// SnapshotOf wraps an already converted document.
func SnapshotOf(topic, kind string, doc domain.Document) (Snapshot, error) {
	id := doc.ID()
	if id == "" {
		return Snapshot{}, fmt.Errorf("realtime: %s document without id", kind)
	}
	at, _ := doc.Time("updated_at")
	return Snapshot{Topic: topic, Kind: kind, ID: id, UpdatedAt: at, Data: doc}, nil
}

// Topic prefixes.
const (
	topicChat    = "chat"
	topicRequest = "request"
	topicUser    = "user"
)

// ChatTopic carries a chat and its messages.
func ChatTopic(chatID string) string { return topicChat + ":" + chatID }

// RequestTopic carries a request and its offers.
func RequestTopic(requestID string) string { return topicRequest + ":" + requestID }

// UserTopic carries the chats a user takes part in.
func UserTopic(userID string) string { return topicUser + ":" + userID }

// ParseTopic splits a topic into its prefix and id.
func ParseTopic(topic string) (prefix, id string, ok bool) {
	prefix, id, ok = strings.Cut(topic, ":")
	if !ok || id == "" {
		return "", "", false
	}
	switch prefix {
	case topicChat, topicRequest, topicUser:
		return prefix, id, true
	}
	return "", "", false
}
