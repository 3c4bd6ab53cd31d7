// Package repo implements the data persistence layer for comments, backed by
// GORM. This file provides repository functions for the Comment model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they work
// the same on the root handle and inside a transaction. They follow the
// "thin repository" approach: no business rules, only persistence and query
// composition. Validation, clock handling and moderation policy live in
// services.CommentService.
//
// Error semantics:
//   - A missing row is reported as ErrNotFound (gorm.ErrRecordNotFound).
//   - Driver errors are wrapped with github.com/pkg/errors; errors.Is and
//     errors.As still see the cause. IsForeignKeyViolation and IsDuplicate
//     classify constraint failures across SQLite and PostgreSQL.
//
// Every list is ordered by (created_utc ASC, id ASC) so pages are stable even
// when several comments share a timestamp.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	errs "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

const commentOrder = "created_utc ASC, id ASC"

// InsertComment persists c as-is. The caller sets ID, timestamps and status.
func InsertComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return errs.Wrap(db.WithContext(ctx).Create(c).Error, "insert comment")
}

// GetComment fetches a single comment by id, or ErrNotFound.
func GetComment(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Comment, error) {
	var c domain.Comment
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(err, "get comment")
	}
	return &c, nil
}

// ListChildren returns the direct replies of parentID. It never recurses.
func ListChildren(ctx context.Context, db *gorm.DB, parentID uuid.UUID) ([]domain.Comment, error) {
	out := []domain.Comment{}
	err := db.WithContext(ctx).
		Where("parent_guid = ?", parentID).
		Order(commentOrder).
		Find(&out).Error
	return out, errs.Wrap(err, "list children")
}

// ListTopLevel returns the comments of contentID that have no parent.
func ListTopLevel(ctx context.Context, db *gorm.DB, contentID uuid.UUID) ([]domain.Comment, error) {
	out := []domain.Comment{}
	err := db.WithContext(ctx).
		Where("content_guid = ? AND parent_guid IS NULL", contentID).
		Order(commentOrder).
		Find(&out).Error
	return out, errs.Wrap(err, "list top-level")
}

// ListByContent returns a page of comments for contentID, optionally filtered
// by moderation status. limit <= 0 means no limit.
func ListByContent(ctx context.Context, db *gorm.DB, contentID uuid.UUID, status *domain.ModerationStatus, offset, limit int) ([]domain.Comment, error) {
	out := []domain.Comment{}
	q := contentScope(db.WithContext(ctx), contentID, status).Order(commentOrder)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, errs.Wrap(err, "list by content")
}

// CountByContent counts the comments ListByContent would return without
// paging.
func CountByContent(ctx context.Context, db *gorm.DB, contentID uuid.UUID, status *domain.ModerationStatus) (int64, error) {
	var total int64
	err := contentScope(db.WithContext(ctx).Model(&domain.Comment{}), contentID, status).
		Count(&total).Error
	return total, errs.Wrap(err, "count by content")
}

func contentScope(q *gorm.DB, contentID uuid.UUID, status *domain.ModerationStatus) *gorm.DB {
	q = q.Where("content_guid = ?", contentID)
	if status != nil {
		q = q.Where("moderation_status = ?", uint8(*status))
	}
	return q
}

// CountChildren returns how many comments reference id as their parent.
func CountChildren(ctx context.Context, db *gorm.DB, id uuid.UUID) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("parent_guid = ?", id).
		Count(&n).Error
	return n, errs.Wrap(err, "count children")
}

// UpdateCommentColumns writes the given columns of comment id. Zero values
// are written too. Returns ErrNotFound when no row matched.
func UpdateCommentColumns(ctx context.Context, db *gorm.DB, id uuid.UUID, cols map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Where("id = ?", id).
		Updates(cols)
	if res.Error != nil {
		return errs.Wrap(res.Error, "update comment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment removes comment id. Returns ErrNotFound when no row matched.
// A comment that still has replies is refused by fk_mp_comments_parent; see
// IsForeignKeyViolation.
func DeleteComment(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Comment{})
	if res.Error != nil {
		return errs.Wrap(res.Error, "delete comment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsForeignKeyViolation reports whether err was raised by a foreign key
// constraint. GORM translates the PostgreSQL error; glebarez/sqlite may
// surface plain text.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "foreign key constraint") ||
		strings.Contains(low, "violates foreign key")
}

// IsDuplicate reports whether err was raised by a unique or primary key
// constraint.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
