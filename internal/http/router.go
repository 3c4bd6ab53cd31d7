// Package httpapi wires the HTTP transport (Gin) to the comment service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, per-request
// query deadlines, metrics, compression, CORS, security headers, idempotency,
// and rate limiting.
package httpapi

import (
	"context"
	"errors"
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

	"github.com/tbourn/go-comments-backend/docs"
	"github.com/tbourn/go-comments-backend/internal/config"
	"github.com/tbourn/go-comments-backend/internal/http/handlers"
	"github.com/tbourn/go-comments-backend/internal/http/middleware"
	"github.com/tbourn/go-comments-backend/internal/repo"
	"github.com/tbourn/go-comments-backend/internal/services"
)

// idempotencyStore backs handlers.IdempotencyStore with the
// comment_idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency.
func (s idempotencyStore) Lookup(ctx context.Context, actorID, contentID, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, actorID, contentID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.CommentID, true, nil
}

// Remember proxies repo.CreateIdempotency. When a concurrent request stored
// the same key first, the comment id it recorded is returned.
func (s idempotencyStore) Remember(ctx context.Context, actorID, contentID, key, commentID string, now time.Time) (string, error) {
	_, err := repo.CreateIdempotency(ctx, s.db, actorID, contentID, key, commentID, http.StatusCreated, now, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		rec, gerr := repo.GetIdempotency(ctx, s.db, actorID, contentID, key, now)
		if gerr != nil {
			return "", gerr
		}
		return rec.CommentID, nil
	}
	if err != nil {
		return "", err
	}
	return commentID, nil
}

// NewCommentService builds the comment service with the moderation policy and
// sanitizer selected by cfg.
func NewCommentService(db *gorm.DB, cfg config.CommentsConfig) *services.CommentService {
	svc := services.NewCommentService(db)
	svc.Policy = services.NewPerSitePolicy(cfg.DefaultStatus, cfg.PremoderatedSites)
	if cfg.SanitizeHTML {
		svc.Sanitizer = services.NewHTMLSanitizer()
	}
	return svc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the comment API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, then Actor (X-User-ID)
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limit and query deadline
//  6. Metrics
//  7. Gzip
//  8. CORS and security headers
//
// The API group adds idempotency validation (keys scoped by the body's
// content_id) followed by the write rate limiter, so replays bypass it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Actor())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.QueryTimeout(cfg.DB.QueryTimeout))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: handlers <- service <- db
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	idem := idempotencyStore{db: db, ttl: ttl}
	h := handlers.New(NewCommentService(db, cfg.Comments), idem)

	idemMW := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  middleware.ScopeFromJSONField("content_id"),
		},
		func(ctx context.Context, actorID, contentID, key string, now time.Time) (bool, error) {
			_, found, err := idem.Lookup(ctx, actorID, contentID, key, now)
			return found, err
		},
	)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByActorOrIP())
	rl.WritesOnly = true
	noStore := middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(idemMW, rl.Handler())
	{
		// Comments
		api.POST("/comments", h.CreateComment)
		api.GET("/comments/:id", h.GetComment)
		api.GET("/comments/:id/children", h.ListChildren)
		api.PATCH("/comments/:id", h.UpdateComment)
		api.DELETE("/comments/:id", h.DeleteComment)

		// Content listings
		api.GET("/contents/:contentId/comments", h.ListContentComments)
		api.GET("/contents/:contentId/comments/top-level", h.ListTopLevel)

		// Moderation
		api.PUT("/comments/:id/moderation", noStore, h.ModerateComment)
		api.GET("/sites/:siteId/moderation-report", noStore, h.SiteModerationReport)
	}
}

// health reports liveness plus database reachability.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database unreachable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}

// corsMiddleware allows every origin when none are configured; otherwise it
// echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderActorID, middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even without an Origin header (simple health checks).
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads beyond it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
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
