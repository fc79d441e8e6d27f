// Command server runs the services marketplace API.
//
//	@title                       Services Marketplace API
//	@version                     1.0
//	@description                 Customers post service requests, providers make offers, an accepted offer opens a chat and the completed job can be reviewed.
//	@BasePath                    /api/v1
//	@securityDefinitions.apikey  BearerAuth
//	@in                          header
//	@name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/auth"
	"github.com/tbourn/go-marketplace-backend/internal/config"
	"github.com/tbourn/go-marketplace-backend/internal/events"
	httpapi "github.com/tbourn/go-marketplace-backend/internal/http"
	"github.com/tbourn/go-marketplace-backend/internal/http/handlers"
	"github.com/tbourn/go-marketplace-backend/internal/lock"
	"github.com/tbourn/go-marketplace-backend/internal/media"
	"github.com/tbourn/go-marketplace-backend/internal/observability"
	"github.com/tbourn/go-marketplace-backend/internal/realtime"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/search"
	"github.com/tbourn/go-marketplace-backend/internal/services"
	"github.com/tbourn/go-marketplace-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	gin.SetMode(cfg.GinMode)
	version = sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer flush("tracing", shutdownTracing)

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Media
	var (
		store  media.Store
		opener handlers.MediaOpener
	)
	switch cfg.Media.Driver {
	case "s3":
		s3Store, err := media.NewS3(ctx, media.S3Config{
			Bucket:          cfg.Media.S3.Bucket,
			Region:          cfg.Media.S3.Region,
			Endpoint:        cfg.Media.S3.Endpoint,
			PathStyle:       cfg.Media.S3.PathStyle,
			AccessKeyID:     cfg.Media.S3.AccessKeyID,
			SecretAccessKey: cfg.Media.S3.SecretAccessKey,
			PublicBaseURL:   cfg.Media.PublicBaseURL,
			MaxBytes:        cfg.Media.MaxBytes,
		})
		if err != nil {
			return err
		}
		store = s3Store
	default:
		mem := media.NewMemory(cfg.Media.PublicBaseURL, cfg.Media.MaxBytes)
		store, opener = mem, mem
	}

	// Identity
	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		log.Warn().Msg("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
		secret = auth.RandomSecret()
	}
	tokens, err := auth.NewTokens(secret, cfg.Auth.TTL, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	// Lifecycle
	hub := realtime.NewHub(cfg.WSBuffer)
	life := services.NewLifecycle(db, store, hub)
	life.Index = search.New(search.WithMinScore(cfg.Lifecycle.SearchMinScore))
	life.Retry = services.RetryPolicy{
		Attempts:  cfg.Lifecycle.RetryAttempts,
		BaseDelay: cfg.Lifecycle.RetryBaseDelay,
		MaxDelay:  services.DefaultRetry.MaxDelay,
	}
	life.CommissionRate = cfg.Lifecycle.CommissionRate
	profiles := services.NewProfileService(db, tokens)
	if cfg.Lock.RedisAddr != "" {
		locker, client := lock.NewRedisClient(cfg.Lock.RedisAddr, cfg.Lock.RedisPassword, cfg.Lock.TTL)
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		defer client.Close()
		life.Locker = locker
		profiles.Locker = locker
		log.Info().Str("addr", cfg.Lock.RedisAddr).Msg("using redis locks")
	}
	if n, err := life.Reindex(ctx); err != nil {
		return err
	} else {
		log.Info().Int("requests", n).Msg("search index built")
	}

	// Outbox relay
	var pub events.Publisher = events.LogPublisher{Logger: log.With().Str("component", "events").Logger()}
	if len(cfg.Events.Brokers) > 0 {
		pub = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
	}
	defer pub.Close()
	go events.NewRelay(db, pub, cfg.Events.OutboxInterval, cfg.Events.OutboxBatch).Run(ctx)
	go purgeIdempotency(ctx, db, time.Hour)

	// HTTP
	ws := realtime.NewWSHandler(hub, life)
	ws.Upgrader.CheckOrigin = originChecker(cfg.CORS.AllowedOrigins)
	h := handlers.New(life, profiles, handlers.Options{
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
		WS:             ws,
		Media:          opener,
	})
	r := gin.New()
	httpapi.RegisterRoutes(r, h, db, tokens.Verify, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// purgeIdempotency deletes expired idempotency records every interval.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency records")
			}
		}
	}
}

// originChecker mirrors the CORS allowlist for websocket upgrades. An empty
// list allows every origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func flush(what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("component", what).Msg("shutdown")
	}
}
