// Offer HTTP handlers.
//
//   - POST /requests/{id}/offers  (provider bids)
//   - GET  /requests/{id}/offers  (ETag support)
//   - POST /offers/{id}/accept    (customer picks an offer; opens the chat)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

//
// DTOs
//

// SubmitOfferRequest is the JSON payload for POST /requests/{id}/offers.
type SubmitOfferRequest struct {
	Price   *float64 `json:"price"   binding:"required" example:"500"`
	Message string   `json:"message" example:"Can come tomorrow morning"`
}

// PartialOfferResponse is returned with 202 when the offer was stored but a
// follow-up step is still pending.
type PartialOfferResponse struct {
	Offer   *domain.Offer `json:"offer"`
	Code    string        `json:"code"    example:"partial_write"`
	Message string        `json:"message"`
}

// OffersResponse lists the offers on a request.
type OffersResponse struct {
	Offers []repo.OfferRow `json:"offers"`
}

// AcceptOfferResponse names the chat opened by an acceptance.
type AcceptOfferResponse struct {
	ChatID string `json:"chat_id" example:"0b8f0c1e-3f7a-4f53-a1f4-5a2b1f0c9e11"`
}

//
// Handlers
//

// SubmitOffer godoc
// @ID          submitOffer
// @Summary     Make an offer on a request
// @Description Providers bid on open requests. A 202 means the offer was saved but the request status update is still pending.
// @Tags        Offers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header    string                        false  "Idempotency key for safe retries"
// @Param       id               path      string                        true   "Request ID"  format(uuid)
// @Param       body             body      handlers.SubmitOfferRequest   true   "Offer"
// @Success     201  {object}  domain.Offer
// @Success     202  {object}  handlers.PartialOfferResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Failure     409  {object}  handlers.ErrorResponse  "Request no longer accepts offers"
// @Router      /requests/{id}/offers [post]
func (h *Handlers) SubmitOffer(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	if h.replay(c, s, repo.Offers) {
		return
	}
	var req SubmitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price is required")
		return
	}

	o, err := h.life.SubmitOffer(c.Request.Context(), s, c.Param("id"), *req.Price, req.Message)
	if err != nil {
		if o != nil && errors.Is(err, services.ErrPartialWrite) {
			h.remember(c, s, o.ID, http.StatusCreated)
			ok(c, http.StatusAccepted, PartialOfferResponse{
				Offer:   o,
				Code:    ErrCodePartialWrite,
				Message: services.MessageOf(err),
			})
			return
		}
		failFromErr(c, err)
		return
	}
	h.remember(c, s, o.ID, http.StatusCreated)
	ok(c, http.StatusCreated, o)
}

// ListOffers godoc
// @ID          listOffers
// @Summary     Offers on a request
// @Description Pending, accepted and completed offers with provider summaries. Owner only. Supports conditional GET.
// @Tags        Offers
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Request ID"  format(uuid)
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {object}  handlers.OffersResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /requests/{id}/offers [get]
func (h *Handlers) ListOffers(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	requestID := c.Param("id")
	ctx := c.Request.Context()
	rows, err := h.life.ListOffersForRequest(ctx, s, requestID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if h.db != nil {
		if n, newest, err := repo.OffersStats(ctx, h.db, requestID); err == nil {
			if notModified(c, "offers:"+requestID, n, newest) {
				return
			}
		}
	}
	if rows == nil {
		rows = []repo.OfferRow{}
	}
	ok(c, http.StatusOK, OffersResponse{Offers: rows})
}

// AcceptOffer godoc
// @ID          acceptOffer
// @Summary     Accept an offer
// @Description Accepts the offer, rejects the other pending offers and opens a chat. Accepting the same offer again returns the same chat.
// @Tags        Offers
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Offer ID"  format(uuid)
// @Success     200  {object}  handlers.AcceptOfferResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "precondition_failed or concurrent_acceptance"
// @Router      /offers/{id}/accept [post]
func (h *Handlers) AcceptOffer(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	chatID, err := h.life.AcceptOffer(c.Request.Context(), s, c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, AcceptOfferResponse{ChatID: chatID})
}
