// Package services – CommentService
//
// This file implements CommentService, the application-level component that
// owns threaded, moderated comments. It validates and normalizes input,
// assigns identifiers, timestamps and the default moderation status, and runs
// every mutation in a single transaction so readers never observe a partial
// change.
//
// Threads are addressed by id: a reply stores its parent's id and the tree is
// walked one level at a time through GetChildren. A parent must exist before a
// reply is inserted, so cycles cannot be formed.
//
// Observability: all public methods are OpenTelemetry-instrumented and
// failures are counted in comment_store_errors_total.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-comments-backend/internal/domain"
	"github.com/tbourn/go-comments-backend/internal/repo"
)

// NewComment is the input to Create. Zero ID means "generate one"; a nil or
// zero ParentID makes a top-level comment; nil Status applies the policy.
type NewComment struct {
	ID        uuid.UUID
	ParentID  *uuid.UUID
	SiteID    uuid.UUID
	FeatureID uuid.UUID
	ModuleID  uuid.UUID
	ContentID uuid.UUID
	UserID    uuid.UUID

	Title       string
	Body        string
	AuthorName  string
	AuthorEmail string
	AuthorURL   string
	AuthorIP    string

	Status *domain.ModerationStatus
}

// ContentUpdate carries the editable text fields. Nil leaves a field as is.
type ContentUpdate struct {
	Title       *string
	Body        *string
	AuthorName  *string
	AuthorEmail *string
	AuthorURL   *string
}

// ListOptions filters and pages ListByContent. Limit 0 means no limit.
type ListOptions struct {
	Status *domain.ModerationStatus
	Offset int
	Limit  int
}

// SiteReport summarizes the moderation state of one site.
type SiteReport struct {
	SiteID uuid.UUID        `json:"site_id"`
	Total  int64            `json:"total"`
	Counts map[string]int64 `json:"counts"`
}

// CommentService provides the comment store operations.
type CommentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Policy picks the status of new comments; nil means approved.
	Policy ModerationPolicy
	// Sanitizer cleans comment bodies; nil stores them verbatim.
	Sanitizer Sanitizer
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewCommentService constructs a CommentService with the legacy default of
// publishing new comments immediately.
func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{
		DB:     db,
		Policy: StaticPolicy{Status: domain.StatusApproved},
		Now:    time.Now,
	}
}

var tracer = otel.Tracer("services/CommentService")

// now returns the current UTC time at the precision every backend stores.
func (s *CommentService) now() time.Time {
	clock := s.Now
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Truncate(time.Microsecond)
}

func (s *CommentService) defaultStatus(siteID uuid.UUID) domain.ModerationStatus {
	if s.Policy == nil {
		return domain.StatusApproved
	}
	return s.Policy.DefaultStatus(siteID)
}

// nextModified keeps last_mod_utc monotonic even if the clock steps back.
func nextModified(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

// finish classifies err, records it on the span and in metrics.
func finish(span trace.Span, op string, err error) error {
	err = classify(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		storeErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
	return err
}

func commentNotFound(id uuid.UUID) error {
	return &NotFoundError{Entity: "comment", ID: id.String()}
}

// Create validates in, assigns id, timestamps and status, and inserts it.
// A reply must reference an existing comment of the same site, feature,
// module and content item.
func (s *CommentService) Create(ctx context.Context, in NewComment) (out *domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("site.id", in.SiteID.String()),
			attribute.String("content.id", in.ContentID.String()),
		),
	)
	defer span.End()
	defer func() { err = finish(span, "create", err) }()

	c := &domain.Comment{
		ID:          in.ID,
		SiteID:      in.SiteID,
		FeatureID:   in.FeatureID,
		ModuleID:    in.ModuleID,
		ContentID:   in.ContentID,
		UserID:      in.UserID,
		Title:       normalizeText(in.Title),
		Body:        normalizeText(in.Body),
		AuthorName:  normalizeText(in.AuthorName),
		AuthorEmail: normalizeText(in.AuthorEmail),
		AuthorURL:   normalizeText(in.AuthorURL),
		AuthorIP:    normalizeText(in.AuthorIP),
	}
	if in.ParentID != nil && *in.ParentID != uuid.Nil {
		p := *in.ParentID
		c.ParentID = &p
	}
	if s.Sanitizer != nil {
		c.Body = s.Sanitizer.Sanitize(c.Body)
	}

	if err := firstErr(
		requireID("site_id", c.SiteID),
		requireID("feature_id", c.FeatureID),
		requireID("module_id", c.ModuleID),
		requireID("content_id", c.ContentID),
		checkLen("title", c.Title, domain.MaxTitleLen),
		checkLen("author_name", c.AuthorName, domain.MaxAuthorNameLen),
		checkLen("author_email", c.AuthorEmail, domain.MaxAuthorEmailLen),
		checkLen("author_url", c.AuthorURL, domain.MaxAuthorURLLen),
		checkLen("author_ip", c.AuthorIP, domain.MaxAuthorIPLen),
	); err != nil {
		return nil, err
	}

	if in.Status != nil {
		if err := checkStatus(*in.Status); err != nil {
			return nil, err
		}
		c.ModerationStatus = *in.Status
	} else {
		c.ModerationStatus = s.defaultStatus(c.SiteID)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := s.now()
	c.CreatedAt = now
	c.LastModifiedAt = now

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.ParentID != nil {
			parent, err := repo.GetComment(ctx, tx, *c.ParentID)
			if errors.Is(err, repo.ErrNotFound) {
				return &ConflictError{Reason: "parent comment " + c.ParentID.String() + " does not exist"}
			}
			if err != nil {
				return err
			}
			if parent.SiteID != c.SiteID || parent.FeatureID != c.FeatureID ||
				parent.ModuleID != c.ModuleID || parent.ContentID != c.ContentID {
				return &ValidationError{Field: "parent_id", Reason: "reply must belong to the same site, feature, module and content as its parent"}
			}
		}
		return repo.InsertComment(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	commentsCreated.WithLabelValues(c.ModerationStatus.String()).Inc()
	log.Ctx(ctx).Debug().
		Str("comment_id", c.ID.String()).
		Str("content_id", c.ContentID.String()).
		Str("status", c.ModerationStatus.String()).
		Bool("reply", c.ParentID != nil).
		Msg("comment created")
	return c, nil
}

// GetByID returns the comment with the given id. Parent and replies are not
// loaded.
func (s *CommentService) GetByID(ctx context.Context, id uuid.UUID) (out *domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "GetByID", trace.WithAttributes(attribute.String("comment.id", id.String())))
	defer span.End()
	defer func() { err = finish(span, "get", err) }()

	c, err := repo.GetComment(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, commentNotFound(id)
	}
	return c, err
}

// GetChildren returns the direct replies of parentID, oldest first. It never
// recurses; callers build deeper trees level by level. Top-level comments
// have no parent id and are listed with GetTopLevel.
func (s *CommentService) GetChildren(ctx context.Context, parentID uuid.UUID) (out []domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "GetChildren", trace.WithAttributes(attribute.String("comment.id", parentID.String())))
	defer span.End()
	defer func() { err = finish(span, "children", err) }()

	if err := requireID("parent_id", parentID); err != nil {
		return nil, err
	}
	kids, err := repo.ListChildren(ctx, s.DB, parentID)
	if err != nil {
		return nil, err
	}
	if len(kids) == 0 {
		// distinguish "no replies" from "no such comment"
		if _, err := repo.GetComment(ctx, s.DB, parentID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, commentNotFound(parentID)
			}
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("children", len(kids)))
	return kids, nil
}

// GetTopLevel returns the comments of contentID that are not replies, oldest
// first.
func (s *CommentService) GetTopLevel(ctx context.Context, contentID uuid.UUID) (out []domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "GetTopLevel", trace.WithAttributes(attribute.String("content.id", contentID.String())))
	defer span.End()
	defer func() { err = finish(span, "top_level", err) }()

	if err := requireID("content_id", contentID); err != nil {
		return nil, err
	}
	return repo.ListTopLevel(ctx, s.DB, contentID)
}

// ListByContent returns the comments of contentID ordered by creation time,
// optionally restricted to one moderation status.
func (s *CommentService) ListByContent(ctx context.Context, contentID uuid.UUID, opts ListOptions) (out []domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "ListByContent",
		trace.WithAttributes(
			attribute.String("content.id", contentID.String()),
			attribute.Int("offset", opts.Offset),
			attribute.Int("limit", opts.Limit),
		),
	)
	defer span.End()
	defer func() { err = finish(span, "list", err) }()

	if err := s.checkList(contentID, opts); err != nil {
		return nil, err
	}
	return repo.ListByContent(ctx, s.DB, contentID, opts.Status, opts.Offset, opts.Limit)
}

// CountByContent returns how many comments ListByContent would return
// without paging.
func (s *CommentService) CountByContent(ctx context.Context, contentID uuid.UUID, status *domain.ModerationStatus) (n int64, err error) {
	ctx, span := tracer.Start(ctx, "CountByContent", trace.WithAttributes(attribute.String("content.id", contentID.String())))
	defer span.End()
	defer func() { err = finish(span, "count", err) }()

	if err := s.checkList(contentID, ListOptions{Status: status}); err != nil {
		return 0, err
	}
	return repo.CountByContent(ctx, s.DB, contentID, status)
}

func (s *CommentService) checkList(contentID uuid.UUID, opts ListOptions) error {
	if err := requireID("content_id", contentID); err != nil {
		return err
	}
	if opts.Status != nil {
		if err := checkStatus(*opts.Status); err != nil {
			return err
		}
	}
	if opts.Offset < 0 {
		return &ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	if opts.Limit < 0 {
		return &ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// UpdateContent edits the text fields set in upd and refreshes
// LastModifiedAt, even when no field changes.
func (s *CommentService) UpdateContent(ctx context.Context, id uuid.UUID, upd ContentUpdate) (out *domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "UpdateContent", trace.WithAttributes(attribute.String("comment.id", id.String())))
	defer span.End()
	defer func() { err = finish(span, "update", err) }()

	cols := map[string]any{}
	set := func(col, field string, v *string, max int, body bool) error {
		if v == nil {
			return nil
		}
		val := normalizeText(*v)
		if body {
			if s.Sanitizer != nil {
				val = s.Sanitizer.Sanitize(val)
			}
		}
		if max > 0 {
			if err := checkLen(field, val, max); err != nil {
				return err
			}
		}
		cols[col] = val
		return nil
	}
	if err := firstErr(
		set("title", "title", upd.Title, domain.MaxTitleLen, false),
		set("user_comment", "body", upd.Body, 0, true),
		set("user_name", "author_name", upd.AuthorName, domain.MaxAuthorNameLen, false),
		set("user_email", "author_email", upd.AuthorEmail, domain.MaxAuthorEmailLen, false),
		set("user_url", "author_url", upd.AuthorURL, domain.MaxAuthorURLLen, false),
	); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetComment(ctx, tx, id)
		if err != nil {
			return err
		}
		cols["last_mod_utc"] = nextModified(now, c.LastModifiedAt)
		if err := repo.UpdateCommentColumns(ctx, tx, id, cols); err != nil {
			return err
		}
		out, err = repo.GetComment(ctx, tx, id)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, commentNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Moderate re-classifies a comment. Every status is reachable from every
// other; repeating the same call only advances LastModifiedAt.
func (s *CommentService) Moderate(ctx context.Context, id uuid.UUID, status domain.ModerationStatus, moderatorID uuid.UUID, reason string) (out *domain.Comment, err error) {
	ctx, span := tracer.Start(ctx, "Moderate",
		trace.WithAttributes(
			attribute.String("comment.id", id.String()),
			attribute.String("status", status.String()),
		),
	)
	defer span.End()
	defer func() { err = finish(span, "moderate", err) }()

	reason = normalizeText(reason)
	if err := firstErr(
		checkStatus(status),
		requireID("moderator_id", moderatorID),
		checkLen("reason", reason, domain.MaxModerationReasonLen),
	); err != nil {
		return nil, err
	}

	now := s.now()
	var prev domain.ModerationStatus
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetComment(ctx, tx, id)
		if err != nil {
			return err
		}
		prev = c.ModerationStatus
		c.ModerationStatus = status
		c.ModeratedBy = &moderatorID
		c.ModerationReason = reason
		c.LastModifiedAt = nextModified(now, c.LastModifiedAt)
		if err := repo.UpdateCommentColumns(ctx, tx, id, map[string]any{
			"moderation_status": uint8(status),
			"moderated_by":      moderatorID,
			"moderation_reason": reason,
			"last_mod_utc":      c.LastModifiedAt,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, commentNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	moderationTransitions.WithLabelValues(prev.String(), status.String()).Inc()
	log.Ctx(ctx).Info().
		Str("comment_id", id.String()).
		Str("from", prev.String()).
		Str("to", status.String()).
		Str("moderator_id", moderatorID.String()).
		Msg("comment moderated")
	return out, nil
}

// Delete removes a comment that has no replies. The reply check and the
// delete share one transaction and fk_mp_comments_parent refuses the delete
// if a reply slips in concurrently.
func (s *CommentService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "Delete", trace.WithAttributes(attribute.String("comment.id", id.String())))
	defer span.End()
	defer func() { err = finish(span, "delete", err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.CountChildren(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &ConflictError{Reason: "comment has replies; delete or move them first"}
		}
		return repo.DeleteComment(ctx, tx, id)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return commentNotFound(id)
	}
	if repo.IsForeignKeyViolation(err) {
		return &ConflictError{Reason: "comment has replies; delete or move them first"}
	}
	if err != nil {
		return err
	}

	commentsDeleted.Inc()
	log.Ctx(ctx).Info().Str("comment_id", id.String()).Msg("comment deleted")
	return nil
}

// SiteReport counts the comments of siteID per moderation status. All four
// statuses are present in the result.
func (s *CommentService) SiteReport(ctx context.Context, siteID uuid.UUID) (out *SiteReport, err error) {
	ctx, span := tracer.Start(ctx, "SiteReport", trace.WithAttributes(attribute.String("site.id", siteID.String())))
	defer span.End()
	defer func() { err = finish(span, "site_report", err) }()

	if err := requireID("site_id", siteID); err != nil {
		return nil, err
	}
	counts, err := repo.SiteModerationCounts(ctx, s.DB, siteID)
	if err != nil {
		return nil, err
	}
	rep := &SiteReport{SiteID: siteID, Counts: make(map[string]int64, len(domain.AllStatuses))}
	for _, st := range domain.AllStatuses {
		rep.Counts[st.String()] = counts[st]
		rep.Total += counts[st]
	}
	return rep, nil
}

// ContentStats returns the number of comments on contentID and their latest
// modification time, for cache validators.
func (s *CommentService) ContentStats(ctx context.Context, contentID uuid.UUID) (count int64, maxModified *time.Time, err error) {
	ctx, span := tracer.Start(ctx, "ContentStats", trace.WithAttributes(attribute.String("content.id", contentID.String())))
	defer span.End()
	defer func() { err = finish(span, "stats", err) }()

	return repo.ContentStats(ctx, s.DB, contentID)
}
