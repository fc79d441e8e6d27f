// Realtime feed and media endpoints.
//
//   - GET /ws?topic=chat:<id>&topic=user:<id>  (WebSocket snapshot stream)
//   - GET /media/{key}                         (objects of the in-process media store)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/realtime"
)

// Feed godoc
// @ID          feed
// @Summary     Follow live updates
// @Description Upgrades to a WebSocket and streams JSON snapshots: first the current state of every topic, then every change. Topics are chat:<id>, request:<id> and user:<id>. Browsers may pass the token as access_token.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       topic         query  []string  true   "Topic to follow (repeatable)"  collectionFormat(multi)
// @Param       access_token  query  string    false  "Bearer token for clients that cannot set headers"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "No topic"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "topic_forbidden"
// @Router      /ws [get]
func (h *Handlers) Feed(c *gin.Context) {
	if h.ws == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "realtime feed disabled")
		return
	}
	s, good := h.session(c)
	if !good {
		return
	}
	if s.UserID == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in to follow updates")
		return
	}
	var topics []string
	for _, t := range c.QueryArray("topic") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one topic is required")
		return
	}

	err := h.ws.Serve(c.Writer, c.Request, s.UserID, topics)
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrTopicForbidden):
		fail(c, http.StatusForbidden, ErrCodeTopicForbidden, err.Error())
	default:
		failFromErr(c, err)
	}
}

// Media godoc
// @ID          media
// @Summary     Stored request photo
// @Tags        Media
// @Produce     image/jpeg,image/png,image/webp
// @Param       key  path  string  true  "Object key"
// @Success     200  {file}    binary
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /media/{key} [get]
func (h *Handlers) Media(c *gin.Context) {
	if h.media == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "media not found")
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, ct, found := h.media.Open(key)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "media not found")
		return
	}
	// keys are content addressed, so an object never changes
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, ct, data)
}
