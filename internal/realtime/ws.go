package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrTopicForbidden is returned by an Authorizer for topics the user may not
// read.
var ErrTopicForbidden = errors.New("topic forbidden")

// Authorizer decides whether userID may follow topic and returns the
// snapshots that make up the topic's current state.
type Authorizer interface {
	Authorize(ctx context.Context, userID, topic string) ([]Snapshot, error)
}

// WSHandler streams subscriptions over WebSockets.
type WSHandler struct {
	Hub          *Hub
	Auth         Authorizer
	Upgrader     websocket.Upgrader
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// NewWSHandler returns a handler with default timeouts.
func NewWSHandler(hub *Hub, auth Authorizer) *WSHandler {
	return &WSHandler{
		Hub:  hub,
		Auth: auth,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Serve authorizes every topic, upgrades the connection and streams the
// initial state followed by live snapshots until either side goes away.
//
// Authorization errors are returned before the upgrade so the caller can
// still answer with a regular HTTP status.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request, userID string, topics []string) error {
	var initial []Snapshot
	for _, t := range topics {
		snaps, err := h.Auth.Authorize(r.Context(), userID, t)
		if err != nil {
			return err
		}
		initial = append(initial, snaps...)
	}

	// Subscribe before sending the initial state so nothing published in
	// between is missed; duplicates are resolved by the client's View.
	sub := h.Hub.Subscribe(topics...)
	defer sub.Close()

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		log.Debug().Err(err).Str("component", "realtime").Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	lg := log.With().Str("component", "realtime").Str("user_id", userID).Strs("topics", topics).Logger()
	lg.Debug().Int("initial", len(initial)).Msg("websocket subscribed")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
		return conn.WriteJSON(v)
	}
	for _, s := range initial {
		if err := write(s); err != nil {
			return nil
		}
	}

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			lg.Debug().Uint64("dropped", sub.Dropped()).Msg("websocket closed by peer")
			return nil
		case <-r.Context().Done():
			return nil
		case s, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := write(s); err != nil {
				lg.Debug().Err(err).Msg("websocket write failed")
				return nil
			}
		case <-ping.C:
			deadline := time.Now().Add(h.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return nil
			}
		}
	}
}
