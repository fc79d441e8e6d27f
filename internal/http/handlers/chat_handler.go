// Chat HTTP handlers.
//
//   - GET  /chats                 (the caller's chats, most recent first)
//   - GET  /chats/{id}/messages   (paginated history, ETag support)
//   - POST /chats/{id}/messages   (Idempotency-Key support)
//
// Chats are opened by accepting an offer; there is no create endpoint.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

//
// DTOs
//

// ListChatsResponse lists the caller's chats.
type ListChatsResponse struct {
	Chats []services.ChatView `json:"chats"`
}

// SendMessageRequest is the JSON payload for POST /chats/{id}/messages.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required" example:"I can be there at 10:00"`
}

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeText converts CRLF/CR to LF, collapses blank-line runs and trims.
func sanitizeText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// ListChats godoc
// @ID          listChats
// @Summary     The caller's chats
// @Description Each entry carries the counterpart, the request title and the last message. Closed chats belong to completed jobs.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListChatsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /chats [get]
func (h *Handlers) ListChats(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	items, err := h.life.ListChats(c.Request.Context(), s)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListChatsResponse{Chats: items})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Chat history (paginated)
// @Description Oldest first. Only the chat's participants may read it. Supports weak ETag via If-None-Match.
// @Tags        Chats
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Chat ID"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for the chat's messages"
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /chats/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	ctx := c.Request.Context()
	chatID := c.Param("id")
	pg := pageQuery(c)

	res, err := h.life.ListMessages(ctx, s, chatID, pg.Number, pg.Size)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if h.db != nil {
		if n, newest, err := repo.MessagesStats(ctx, h.db, chatID); err == nil {
			if notModified(c, fmt.Sprintf("messages:%s:%d:%d", chatID, pg.Number, pg.Size), n, newest) {
				return
			}
		}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   res.Messages,
		Pagination: newPagination(res.Page, res.PageSize, res.Total),
	})
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a chat message
// @Description Participants only; completed jobs close the chat. Supports idempotency via the Idempotency-Key header.
// @Tags        Chats
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                        false  "Idempotency key for safe retries"
// @Param       id               path    string                        true   "Chat ID"  format(uuid)
// @Param       body             body    handlers.SendMessageRequest   true   "Message"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Chat closed"
// @Router      /chats/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	if h.replay(c, s, repo.Messages) {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	m, err := h.life.SendMessage(c.Request.Context(), s, c.Param("id"), sanitizeText(req.Text))
	if err != nil {
		failFromErr(c, err)
		return
	}
	h.remember(c, s, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}
