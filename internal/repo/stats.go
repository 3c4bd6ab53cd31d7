// Package repo implements the data persistence layer for comments, backed by
// GORM. This file provides small aggregate queries: content statistics used
// for weak ETags on list endpoints, and the per-site moderation report.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	errs "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

// ContentStats returns the number of comments attached to contentID and the
// greatest last_mod_utc among them.
//
// When the content has no comments, count is 0 and maxModified is nil.
func ContentStats(ctx context.Context, db *gorm.DB, contentID uuid.UUID) (count int64, maxModified *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Comment{}).Where("content_guid = ?", contentID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, errs.Wrap(err, "content stats count")
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest last_mod_utc (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastModUTC time.Time `gorm:"column:last_mod_utc"`
	}
	if err = q.Select("last_mod_utc").Order("last_mod_utc DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, errs.Wrap(err, "content stats max")
	}
	t := row.LastModUTC.UTC()
	return count, &t, nil
}

// SiteModerationCounts returns the number of comments of siteID per
// moderation status. Statuses with no comments are absent from the map.
func SiteModerationCounts(ctx context.Context, db *gorm.DB, siteID uuid.UUID) (map[domain.ModerationStatus]int64, error) {
	var rows []struct {
		Status int   `gorm:"column:moderation_status"`
		N      int64 `gorm:"column:n"`
	}
	err := db.WithContext(ctx).
		Model(&domain.Comment{}).
		Select("moderation_status, COUNT(*) AS n").
		Where("site_guid = ?", siteID).
		Group("moderation_status").
		Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "site moderation counts")
	}
	out := make(map[domain.ModerationStatus]int64, len(rows))
	for _, r := range rows {
		out[domain.ModerationStatus(r.Status)] = r.N
	}
	return out, nil
}
