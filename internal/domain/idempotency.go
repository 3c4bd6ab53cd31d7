package domain

import "time"

// Idempotency records the comment produced by a previously processed
// submission, keyed by (user_id, content_id, idem_key). A retried POST
// carrying the same Idempotency-Key is answered with the stored comment
// instead of inserting a duplicate. The table is created by the schema
// migrations in package repo.
type Idempotency struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;not null"`
	ContentID string    `gorm:"column:content_id;not null"`
	Key       string    `gorm:"column:idem_key;not null"`
	CommentID string    `gorm:"column:comment_id;not null"`
	Status    int       `gorm:"column:status;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "comment_idempotency" }
