// Package domain defines the persistence model for threaded, moderated
// comments. The types are mapped with GORM and shared by the repository,
// service and HTTP layers.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Column length limits, in characters.
const (
	MaxTitleLen            = 255
	MaxAuthorNameLen       = 50
	MaxAuthorEmailLen      = 100
	MaxAuthorURLLen        = 255
	MaxAuthorIPLen         = 50
	MaxModerationReasonLen = 255
)

// Comment is a single comment attached to one content item within one module,
// feature and site. Replies reference their parent by id; a nil ParentID marks
// a top-level comment.
//
// Fields:
//   - ID: random UUID primary key, immutable.
//   - ParentID: parent comment (FK with ON DELETE RESTRICT), nil for top-level.
//   - SiteID / FeatureID / ModuleID / ContentID: required tenancy identifiers.
//   - UserID: author; uuid.Nil for anonymous comments.
//   - Title, Body, Author*: optional text, bounded by the Max*Len constants
//     (Body is unbounded).
//   - CreatedAt: set once at insert. LastModifiedAt: refreshed on every mutation.
//   - ModerationStatus / ModeratedBy / ModerationReason: moderation state.
type Comment struct {
	ID               uuid.UUID        `json:"id"                          gorm:"column:id;type:char(36);primaryKey"`
	ParentID         *uuid.UUID       `json:"parent_id,omitempty"         gorm:"column:parent_guid;type:char(36)"`
	SiteID           uuid.UUID        `json:"site_id"                     gorm:"column:site_guid;type:char(36);not null"`
	FeatureID        uuid.UUID        `json:"feature_id"                  gorm:"column:feature_guid;type:char(36);not null"`
	ModuleID         uuid.UUID        `json:"module_id"                   gorm:"column:module_guid;type:char(36);not null"`
	ContentID        uuid.UUID        `json:"content_id"                  gorm:"column:content_guid;type:char(36);not null"`
	UserID           uuid.UUID        `json:"user_id"                     gorm:"column:user_guid;type:char(36);not null"`
	Title            string           `json:"title,omitempty"             gorm:"column:title;type:varchar(255)"`
	Body             string           `json:"body,omitempty"              gorm:"column:user_comment;type:text"`
	AuthorName       string           `json:"author_name,omitempty"       gorm:"column:user_name;type:varchar(50)"`
	AuthorEmail      string           `json:"author_email,omitempty"      gorm:"column:user_email;type:varchar(100)"`
	AuthorURL        string           `json:"author_url,omitempty"        gorm:"column:user_url;type:varchar(255)"`
	AuthorIP         string           `json:"author_ip,omitempty"         gorm:"column:user_ip;type:varchar(50)"`
	CreatedAt        time.Time        `json:"created_at"                  gorm:"column:created_utc;not null;autoCreateTime:false"`
	LastModifiedAt   time.Time        `json:"last_modified_at"            gorm:"column:last_mod_utc;not null;autoUpdateTime:false"`
	ModerationStatus ModerationStatus `json:"moderation_status"           gorm:"column:moderation_status;type:smallint;not null"`
	ModeratedBy      *uuid.UUID       `json:"moderated_by,omitempty"      gorm:"column:moderated_by;type:char(36)"`
	ModerationReason string           `json:"moderation_reason,omitempty" gorm:"column:moderation_reason;type:varchar(255)"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "mp_comments" }

// IsTopLevel reports whether the comment has no parent.
func (c Comment) IsTopLevel() bool { return c.ParentID == nil }
