// Comment HTTP handlers.
//
// This file exposes the comment store over REST:
//   - POST   /comments                               (create, Idempotency-Key aware)
//   - GET    /comments/{id}                          (fetch one)
//   - GET    /comments/{id}/children                 (direct replies)
//   - PATCH  /comments/{id}                          (edit text fields)
//   - PUT    /comments/{id}/moderation               (moderate)
//   - DELETE /comments/{id}                          (delete a leaf)
//   - GET    /contents/{contentId}/comments          (paginated list, ETag)
//   - GET    /contents/{contentId}/comments/top-level
//   - GET    /sites/{siteId}/moderation-report
//
// Handlers are transport-thin: they parse ids and payloads, call the
// CommentService, and translate its typed errors with failErr.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/tbourn/go-comments-backend/internal/domain"
	"github.com/tbourn/go-comments-backend/internal/http/middleware"
	"github.com/tbourn/go-comments-backend/internal/services"
	"github.com/tbourn/go-comments-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CommentService is the comment store as seen by the HTTP layer.
//
// Implementations must be safe for concurrent use and honor ctx.
type CommentService interface {
	Create(ctx context.Context, in services.NewComment) (*domain.Comment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	GetChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Comment, error)
	GetTopLevel(ctx context.Context, contentID uuid.UUID) ([]domain.Comment, error)
	ListByContent(ctx context.Context, contentID uuid.UUID, opts services.ListOptions) ([]domain.Comment, error)
	CountByContent(ctx context.Context, contentID uuid.UUID, status *domain.ModerationStatus) (int64, error)
	UpdateContent(ctx context.Context, id uuid.UUID, upd services.ContentUpdate) (*domain.Comment, error)
	Moderate(ctx context.Context, id uuid.UUID, status domain.ModerationStatus, moderatorID uuid.UUID, reason string) (*domain.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SiteReport(ctx context.Context, siteID uuid.UUID) (*services.SiteReport, error)
	ContentStats(ctx context.Context, contentID uuid.UUID) (int64, *time.Time, error)
}

// IdempotencyStore remembers which comment a (actor, content, key) triple
// created so retried POSTs return the original comment.
type IdempotencyStore interface {
	// Lookup returns the comment id recorded for the triple, if still valid.
	Lookup(ctx context.Context, actorID, contentID, key string, now time.Time) (commentID string, found bool, err error)
	// Remember records commentID for the triple and returns the id now on
	// record. When a concurrent request stored the triple first, that
	// request's comment id is returned.
	Remember(ctx context.Context, actorID, contentID, key, commentID string, now time.Time) (recordedID string, err error)
}

//
// Handler wiring
//

// Handlers groups the comment endpoints.
type Handlers struct {
	svc  CommentService
	idem IdempotencyStore
	now  func() time.Time
}

// New binds handlers to svc. idem may be nil, which disables replay.
func New(svc CommentService, idem IdempotencyStore) *Handlers {
	return &Handlers{svc: svc, idem: idem, now: time.Now}
}

//
// DTOs
//

// CreateCommentRequest is the JSON payload for creating a comment.
type CreateCommentRequest struct {
	// ID optionally fixes the new comment's id; a random one is used otherwise.
	ID *uuid.UUID `json:"id,omitempty" format:"uuid"`
	// ParentID makes the comment a reply. Omit (or send the nil UUID) for a top-level comment.
	ParentID  *uuid.UUID `json:"parent_id,omitempty" format:"uuid"`
	SiteID    uuid.UUID  `json:"site_id" format:"uuid" example:"6f1c8a8e-7d8b-4a51-9f0c-1f2b3c4d5e6f"`
	FeatureID uuid.UUID  `json:"feature_id" format:"uuid"`
	ModuleID  uuid.UUID  `json:"module_id" format:"uuid"`
	ContentID uuid.UUID  `json:"content_id" format:"uuid"`
	// UserID is the author; omit for anonymous comments.
	UserID uuid.UUID `json:"user_id" format:"uuid"`

	Title       string `json:"title" example:"Great article"`
	Body        string `json:"body" example:"Thanks for writing this up."`
	AuthorName  string `json:"author_name" example:"Jane"`
	AuthorEmail string `json:"author_email" example:"jane@example.com"`
	AuthorURL   string `json:"author_url" example:"https://jane.example.com"`
	// AuthorIP defaults to the client address.
	AuthorIP string `json:"author_ip"`

	// ModerationStatus overrides the site's default (pending, approved, spam, rejected).
	ModerationStatus *domain.ModerationStatus `json:"moderation_status,omitempty" swaggertype:"string" enums:"pending,approved,spam,rejected"`
}

// UpdateCommentRequest edits text fields; omitted fields are left unchanged.
type UpdateCommentRequest struct {
	Title       *string `json:"title,omitempty"`
	Body        *string `json:"body,omitempty"`
	AuthorName  *string `json:"author_name,omitempty"`
	AuthorEmail *string `json:"author_email,omitempty"`
	AuthorURL   *string `json:"author_url,omitempty"`
}

// ModerateRequest is the JSON payload for a moderation decision.
type ModerateRequest struct {
	Status *domain.ModerationStatus `json:"status" swaggertype:"string" enums:"pending,approved,spam,rejected" example:"approved"`
	Reason string                   `json:"reason" example:"looks fine"`
}

// CommentsResponse wraps an unpaginated list of comments.
type CommentsResponse struct {
	Comments []domain.Comment `json:"comments"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListCommentsResponse contains a page of comments and pagination metadata.
type ListCommentsResponse struct {
	Comments   []domain.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// uuidParam parses the named path parameter, failing the request on error.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// nonNil keeps list responses as [] rather than null.
func nonNil(items []domain.Comment) []domain.Comment {
	if items == nil {
		return []domain.Comment{}
	}
	return items
}

//
// Handlers
//

// CreateComment godoc
// @ID          createComment
// @Summary     Create a comment
// @Description Adds a top-level comment or a reply. The moderation status defaults to the site's policy.
// @Description Supports idempotency via the Idempotency-Key header (same key, same comment).
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Caller id, scopes idempotency keys"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.CreateCommentRequest  true  "Comment payload"
//
// @Success     201  {object}  domain.Comment         "Created comment"
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse "Parent missing or id taken"
// @Failure     503  {object}  handlers.ErrorResponse "Storage unavailable"
// @Router      /comments [post]
func (h *Handlers) CreateComment(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateCommentRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid comment payload: "+err.Error())
		return
	}

	actor := middleware.ActorID(c)
	contentID := req.ContentID.String()
	idemKey, _ := middleware.GetIdempotencyKey(c)

	// Replay path.
	if idemKey != "" && h.idem != nil {
		if prevID, found, err := h.idem.Lookup(ctx, actor, contentID, idemKey, h.now().UTC()); err == nil && found {
			if id, err := uuid.Parse(prevID); err == nil {
				if prev, err := h.svc.GetByID(ctx, id); err == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, prev)
					return
				}
			}
		}
	}

	in := services.NewComment{
		ParentID:    req.ParentID,
		SiteID:      req.SiteID,
		FeatureID:   req.FeatureID,
		ModuleID:    req.ModuleID,
		ContentID:   req.ContentID,
		UserID:      req.UserID,
		Title:       req.Title,
		Body:        req.Body,
		AuthorName:  req.AuthorName,
		AuthorEmail: req.AuthorEmail,
		AuthorURL:   req.AuthorURL,
		AuthorIP:    req.AuthorIP,
		Status:      req.ModerationStatus,
	}
	if req.ID != nil {
		in.ID = *req.ID
	}
	if in.AuthorIP == "" {
		in.AuthorIP = c.ClientIP()
	}

	cm, err := h.svc.Create(ctx, in)
	if err != nil {
		failErr(c, err)
		return
	}

	// Store path. A concurrent request with the same key may have won the
	// race; keep its comment and withdraw ours.
	if idemKey != "" && h.idem != nil {
		recorded, err := h.idem.Remember(ctx, actor, contentID, idemKey, cm.ID.String(), h.now().UTC())
		switch {
		case err != nil:
			middleware.LoggerFrom(c).Warn().Err(err).Str("comment_id", cm.ID.String()).Msg("idempotency record not stored")
		case recorded != cm.ID.String():
			if prev, adopted := h.adoptRecorded(c, cm.ID, recorded); adopted {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusCreated, prev)
				return
			}
		}
	}

	c.Header("Location", fmt.Sprintf("%s/%s", c.Request.URL.Path, cm.ID))
	ok(c, http.StatusCreated, cm)
}

// adoptRecorded deletes the just-created comment dup and loads the comment
// recorded under the same idempotency key. It reports false when the recorded
// comment cannot be loaded, in which case dup is kept.
func (h *Handlers) adoptRecorded(c *gin.Context, dup uuid.UUID, recorded string) (*domain.Comment, bool) {
	ctx := c.Request.Context()
	l := middleware.LoggerFrom(c)

	id, err := uuid.Parse(recorded)
	if err != nil {
		l.Warn().Str("recorded_id", recorded).Msg("idempotency record holds an invalid comment id")
		return nil, false
	}
	prev, err := h.svc.GetByID(ctx, id)
	if err != nil {
		l.Warn().Err(err).Str("recorded_id", recorded).Msg("recorded comment not loadable")
		return nil, false
	}
	if err := h.svc.Delete(ctx, dup); err != nil {
		l.Warn().Err(err).Str("comment_id", dup.String()).Msg("duplicate comment not withdrawn")
	}
	l.Info().Str("comment_id", dup.String()).Str("recorded_id", recorded).Msg("concurrent idempotent create resolved")
	return prev, true
}

// GetComment godoc
// @ID          getComment
// @Summary     Get a comment
// @Tags        Comments
// @Produce     json
// @Param       id   path  string  true  "Comment ID"  format(uuid)
// @Success     200  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [get]
func (h *Handlers) GetComment(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	cm, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// ListChildren godoc
// @ID          listChildren
// @Summary     List direct replies
// @Description Returns the direct replies of a comment, oldest first. Unknown parents yield 404.
// @Tags        Comments
// @Produce     json
// @Param       id   path  string  true  "Parent comment ID"  format(uuid)
// @Success     200  {object}  handlers.CommentsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id}/children [get]
func (h *Handlers) ListChildren(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	items, err := h.svc.GetChildren(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CommentsResponse{Comments: nonNil(items)})
}

// UpdateComment godoc
// @ID          updateComment
// @Summary     Edit a comment
// @Description Updates the supplied text fields. Moderation state and tenancy ids are not editable here.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Param       id    path  string                         true  "Comment ID"  format(uuid)
// @Param       body  body  handlers.UpdateCommentRequest  true  "Fields to change"
// @Success     200  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [patch]
func (h *Handlers) UpdateComment(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	var req UpdateCommentRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid update payload: "+err.Error())
		return
	}
	cm, err := h.svc.UpdateContent(c.Request.Context(), id, services.ContentUpdate{
		Title:       req.Title,
		Body:        req.Body,
		AuthorName:  req.AuthorName,
		AuthorEmail: req.AuthorEmail,
		AuthorURL:   req.AuthorURL,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// ModerateComment godoc
// @ID          moderateComment
// @Summary     Moderate a comment
// @Description Sets the moderation status, moderator and reason. Any status may follow any other.
// @Tags        Moderation
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string                    true  "Moderator ID"  format(uuid)
// @Param       id         path    string                    true  "Comment ID"    format(uuid)
// @Param       body       body    handlers.ModerateRequest  true  "Decision"
// @Success     200  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /comments/{id}/moderation [put]
func (h *Handlers) ModerateComment(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	moderator, err := uuid.Parse(middleware.ActorID(c))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, middleware.HeaderActorID+" must carry the moderator UUID")
		return
	}
	var req ModerateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid moderation payload: "+err.Error())
		return
	}
	if req.Status == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status: required")
		return
	}
	cm, err := h.svc.Moderate(c.Request.Context(), id, *req.Status, moderator, req.Reason)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment
// @Description Removes a comment that has no replies. Comments with replies yield 409.
// @Tags        Comments
// @Param       id   path  string  true  "Comment ID"  format(uuid)
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /comments/{id} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListContentComments godoc
// @ID          listContentComments
// @Summary     List comments of a content item
// @Description Returns a page of comments, oldest first, optionally filtered by moderation status.
// @Description Responses carry a weak ETag; send it back in If-None-Match to get 304.
// @Tags        Comments
// @Produce     json
// @Param       contentId  path   string  true   "Content ID"  format(uuid)
// @Param       status     query  string  false  "Moderation status"  Enums(pending, approved, spam, rejected)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListCommentsResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /contents/{contentId}/comments [get]
func (h *Handlers) ListContentComments(c *gin.Context) {
	ctx := c.Request.Context()
	contentID, valid := uuidParam(c, "contentId")
	if !valid {
		return
	}

	var status *domain.ModerationStatus
	if raw := c.Query("status"); raw != "" {
		st, err := domain.ParseModerationStatus(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status: "+err.Error())
			return
		}
		status = &st
	}
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.svc.ContentStats(ctx, contentID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixMicro()
		}
		filter := "all"
		if status != nil {
			filter = status.String()
		}
		etag := fmt.Sprintf(`W/"comments:%s:%d:%d:%s:%d:%d"`, contentID, count, ts, filter, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.svc.ListByContent(ctx, contentID, services.ListOptions{
		Status: status,
		Offset: utils.Offset(page, pageSize),
		Limit:  pageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	total, err := h.svc.CountByContent(ctx, contentID, status)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListCommentsResponse{
		Comments: nonNil(items),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ListTopLevel godoc
// @ID          listTopLevel
// @Summary     List top-level comments of a content item
// @Tags        Comments
// @Produce     json
// @Param       contentId  path  string  true  "Content ID"  format(uuid)
// @Success     200  {object}  handlers.CommentsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /contents/{contentId}/comments/top-level [get]
func (h *Handlers) ListTopLevel(c *gin.Context) {
	contentID, valid := uuidParam(c, "contentId")
	if !valid {
		return
	}
	items, err := h.svc.GetTopLevel(c.Request.Context(), contentID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CommentsResponse{Comments: nonNil(items)})
}

// SiteModerationReport godoc
// @ID          siteModerationReport
// @Summary     Moderation counts for a site
// @Description Returns how many comments of the site are in each moderation status.
// @Tags        Moderation
// @Produce     json
// @Param       siteId  path  string  true  "Site ID"  format(uuid)
// @Success     200  {object}  services.SiteReport
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /sites/{siteId}/moderation-report [get]
func (h *Handlers) SiteModerationReport(c *gin.Context) {
	siteID, valid := uuidParam(c, "siteId")
	if !valid {
		return
	}
	rep, err := h.svc.SiteReport(c.Request.Context(), siteID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
