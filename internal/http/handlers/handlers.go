// Package handlers exposes the marketplace REST API over the services layer.
//
// Handlers are transport-thin: they bind and normalize input, resolve the
// caller's Session, call one service operation and translate the result (or
// the typed service error) into an HTTP response.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/services"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// Lifecycle is the request lifecycle consumed by the handlers. It is
// implemented by *services.Lifecycle.
type Lifecycle interface {
	CreateRequest(ctx context.Context, s services.Session, in services.CreateRequestInput) (*domain.ServiceRequest, error)
	ListOpenRequests(ctx context.Context, s services.Session, f services.OpenRequestsFilter) ([]services.RequestView, int, error)
	ListCustomerRequests(ctx context.Context, s services.Session) ([]domain.ServiceRequest, error)
	GetRequest(ctx context.Context, s services.Session, id string) (*services.RequestDetail, error)

	SubmitOffer(ctx context.Context, s services.Session, requestID string, price float64, message string) (*domain.Offer, error)
	ListOffersForRequest(ctx context.Context, s services.Session, requestID string) ([]repo.OfferRow, error)
	AcceptOffer(ctx context.Context, s services.Session, offerID string) (string, error)

	ListChats(ctx context.Context, s services.Session) ([]services.ChatView, error)
	ListMessages(ctx context.Context, s services.Session, chatID string, page, pageSize int) (*services.MessagePage, error)
	SendMessage(ctx context.Context, s services.Session, chatID, text string) (*domain.Message, error)

	CompleteJob(ctx context.Context, s services.Session, chatID string) error
	SubmitReview(ctx context.Context, s services.Session, requestID string, in services.ReviewInput) (*domain.Review, error)
	ProviderJobs(ctx context.Context, s services.Session) ([]repo.JobRow, error)
	Wallet(ctx context.Context, s services.Session) (*services.WalletSummary, error)
}

// Profiles covers identity and profile operations. It is implemented by
// *services.ProfileService.
type Profiles interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, phone, password string) (*services.AuthResult, error)
	Session(ctx context.Context, userID string) (services.Session, error)
	Me(ctx context.Context, s services.Session) (*domain.UserProfile, error)
	SelectRole(ctx context.Context, s services.Session, role string) (*domain.UserProfile, error)
	OnboardProvider(ctx context.Context, s services.Session, in services.OnboardInput) (*domain.UserProfile, error)
	UpdateProfile(ctx context.Context, s services.Session, patch services.ProfilePatch) (*domain.UserProfile, error)
	AddAddress(ctx context.Context, s services.Session, in services.AddressInput) (*domain.SavedAddress, error)
	GetProfile(ctx context.Context, id string) (*services.PublicProfile, error)
}

// MediaOpener serves stored objects by key. *media.Memory implements it.
type MediaOpener interface {
	Open(key string) (data []byte, contentType string, ok bool)
}

//
// Handler wiring
//

// Options carries the optional collaborators of Handlers.
type Options struct {
	// DB enables idempotent replays and list ETags.
	DB *gorm.DB
	// IdempotencyTTL is how long a replayable result is kept.
	IdempotencyTTL time.Duration
	// WS serves GET /ws. Nil disables the realtime feed.
	WS *realtime.WSHandler
	// Media serves GET /media/*key for stores without their own public
	// endpoint.
	Media MediaOpener
}

// Handlers groups the HTTP endpoints of the marketplace.
type Handlers struct {
	life     Lifecycle
	profiles Profiles

	db      *gorm.DB
	gateway *repo.Gateway
	idemTTL time.Duration
	ws      *realtime.WSHandler
	media   MediaOpener
}

// New constructs Handlers bound to the given services.
func New(life Lifecycle, profiles Profiles, opts Options) *Handlers {
	h := &Handlers{
		life:     life,
		profiles: profiles,
		db:       opts.DB,
		idemTTL:  opts.IdempotencyTTL,
		ws:       opts.WS,
		media:    opts.Media,
	}
	if h.db != nil {
		h.gateway = repo.NewGateway(h.db)
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	return h
}

//
// Helpers
//

// session resolves the caller. Anonymous requests get the zero Session, which
// services reject where authentication is required. It writes the error
// response itself and reports false when the caller cannot be resolved.
func (h *Handlers) session(c *gin.Context) (services.Session, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		return services.Session{}, true
	}
	s, err := h.profiles.Session(c.Request.Context(), uid)
	if err != nil {
		failFromErr(c, err)
		return services.Session{}, false
	}
	return s, true
}

// pageQuery reads the bounded page and page_size query params.
func pageQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// replay serves the stored result of a previous request made with the same
// Idempotency-Key on the same route. It reports whether a response was
// written.
func (h *Handlers) replay(c *gin.Context, s services.Session, coll repo.Collection) bool {
	key, present := middleware.GetIdempotencyKey(c)
	if !present || h.db == nil || s.UserID == "" || !middleware.IsReplay(c) {
		return false
	}
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.db, s.UserID, middleware.IdempotencyScope(c), key, time.Now().UTC())
	if err != nil {
		return false
	}
	doc, err := h.gateway.Get(ctx, coll, rec.ResourceID)
	if err != nil {
		// the resource disappeared; process the request normally
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, rec.Status, doc)
	return true
}

// remember records resourceID as the result of this request's
// Idempotency-Key. Failures are logged and never fail the request.
func (h *Handlers) remember(c *gin.Context, s services.Session, resourceID string, status int) {
	key, present := middleware.GetIdempotencyKey(c)
	if !present || h.db == nil || s.UserID == "" {
		return
	}
	_, err := repo.CreateIdempotency(c.Request.Context(), h.db, s.UserID, middleware.IdempotencyScope(c), key, resourceID, status, h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Str("resource_id", resourceID).Msg("store idempotency record")
	}
}

// notModified sets a weak ETag built from (count, newest update) and answers
// 304 when the client already has it. Clients may keep the list but must
// revalidate it.
func notModified(c *gin.Context, prefix string, count int64, newest *time.Time) bool {
	var ts int64
	if newest != nil {
		ts = newest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, prefix, count, ts)
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, no-cache")
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
