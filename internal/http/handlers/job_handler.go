// Job HTTP handlers: completion, reviews and the provider's earnings.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
)

// JobsResponse lists a provider's accepted and completed jobs.
type JobsResponse struct {
	Jobs []repo.JobRow `json:"jobs"`
}

// CompleteJob godoc
// @ID          completeJob
// @Summary     Mark the job of a chat as done
// @Description The chat's provider closes the job; the price is added to their earnings and the chat stops accepting messages.
// @Tags        Jobs
// @Security    BearerAuth
// @Param       id   path  string  true  "Chat ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already completed"
// @Router      /chats/{id}/complete [post]
func (h *Handlers) CompleteJob(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	if err := h.life.CompleteJob(c.Request.Context(), s, c.Param("id")); err != nil {
		failFromErr(c, err)
		return
	}
	noContent(c)
}

// SubmitReview godoc
// @ID          submitReview
// @Summary     Review a completed job
// @Description One review per request. The rating (1 to 5) is folded into the provider's average.
// @Tags        Jobs
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                 false  "Idempotency key for safe retries"
// @Param       id               path    string                 true   "Request ID"  format(uuid)
// @Param       body             body    services.ReviewInput   true   "Review"
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Not completed or already reviewed"
// @Router      /requests/{id}/review [post]
func (h *Handlers) SubmitReview(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	if h.replay(c, s, repo.Reviews) {
		return
	}
	var in services.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	r, err := h.life.SubmitReview(c.Request.Context(), s, c.Param("id"), in)
	if err != nil {
		failFromErr(c, err)
		return
	}
	h.remember(c, s, r.ID, http.StatusCreated)
	ok(c, http.StatusCreated, r)
}

// ProviderJobs godoc
// @ID          providerJobs
// @Summary     The provider's jobs
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.JobsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Router      /provider/jobs [get]
func (h *Handlers) ProviderJobs(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	jobs, err := h.life.ProviderJobs(c.Request.Context(), s)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, JobsResponse{Jobs: jobs})
}

// Wallet godoc
// @ID          wallet
// @Summary     Earnings summary
// @Description Gross, platform commission and net over completed jobs.
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.WalletSummary
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Router      /provider/wallet [get]
func (h *Handlers) Wallet(c *gin.Context) {
	s, good := h.session(c)
	if !good {
		return
	}
	w, err := h.life.Wallet(c.Request.Context(), s)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}
