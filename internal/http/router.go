// Package httpapi wires the HTTP transport (Gin) to the marketplace handlers
// and middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, authentication,
// idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/docs"
	"github.com/tbourn/go-marketplace-backend/internal/config"
	"github.com/tbourn/go-marketplace-backend/internal/http/handlers"
	"github.com/tbourn/go-marketplace-backend/internal/http/middleware"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
)

// mediaPrefix is where the in-process media store is served.
const mediaPrefix = "/media"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order:
//  1. otelgin span
//  2. RequestID
//  3. AccessLog (installs the request-scoped logger)
//  4. Recovery, which needs that logger
//  5. body size limit, raised for POST /requests with photos
//  6. Metrics
//  7. Authenticate
//  8. IdempotencyValidator, which needs the user and flags replays
//  9. RateLimiter, which lets flagged replays through
//  10. CORS, security headers, gzip
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, db *gorm.DB, verify middleware.TokenVerifier, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	r.Use(middleware.RequestID())

	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		SkipPaths: []string{"/health", "/metrics"},
		Headers:   cfg.LogLevel == "debug",
	}))

	r.Use(middleware.Recovery())

	r.Use(limitBody(cfg.MaxBodyBytes, map[string]int64{
		http.MethodPost + " " + joinPath(apiBase, "/requests"): cfg.UploadMaxBodyBytes,
	}))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Authenticate(verify))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if repo.IsNotFound(err) {
				return false, nil
			}
			return err == nil, err
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).
		WithWritePolicy(middleware.RatePolicy{RPS: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst})
	r.Use(rl.Handler())

	// No configured origins means any origin, without credentials.
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		NoStore:        true,
		PublicPrefixes: []string{mediaPrefix + "/", "/swagger/"},
		EnablePolicy:   true,
	}))

	// Compress JSON; photos are already compressed and the feed is a websocket.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		mediaPrefix + "/",
		joinPath(apiBase, "/ws"),
	})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET(mediaPrefix+"/*key", h.Media)

	api := groupWithPrefix(r, apiBase)
	{
		// Identity and profile
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.GET("/me", h.Me)
		api.PATCH("/me", h.UpdateProfile)
		api.PUT("/me/role", h.SelectRole)
		api.PUT("/me/provider", h.OnboardProvider)
		api.POST("/me/addresses", h.AddAddress)
		api.GET("/providers/:id", h.GetProvider)

		// Requests
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests/open", h.ListOpenRequests)
		api.GET("/requests/mine", h.ListMyRequests)
		api.GET("/requests/:id", h.GetRequest)

		// Offers
		api.POST("/requests/:id/offers", h.SubmitOffer)
		api.GET("/requests/:id/offers", h.ListOffers)
		api.POST("/offers/:id/accept", h.AcceptOffer)

		// Chats
		api.GET("/chats", h.ListChats)
		api.GET("/chats/:id/messages", h.ListMessages)
		api.POST("/chats/:id/messages", h.SendMessage)

		// Jobs
		api.POST("/chats/:id/complete", h.CompleteJob)
		api.POST("/requests/:id/review", h.SubmitReview)
		api.GET("/provider/jobs", h.ProviderJobs)
		api.GET("/provider/wallet", h.Wallet)

		// Realtime
		api.GET("/ws", h.Feed)
	}
}

// limitBody caps the request body at maxBytes using http.MaxBytesReader.
// Routes listed in overrides (keyed by "METHOD /full/path") get their own
// cap; a cap <= 0 disables the limit. Requests exceeding the cap cause
// downstream body reads to error.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.Request.Method+" "+c.FullPath()]; ok {
			limit = n
		}
		if limit <= 0 {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to a base path that may be "/" or empty.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
