package services

import (
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

// ModerationPolicy decides the status of a new comment when the caller does
// not supply one.
type ModerationPolicy interface {
	DefaultStatus(siteID uuid.UUID) domain.ModerationStatus
}

// StaticPolicy assigns the same status to every new comment.
type StaticPolicy struct {
	Status domain.ModerationStatus
}

func (p StaticPolicy) DefaultStatus(uuid.UUID) domain.ModerationStatus { return p.Status }

// PerSitePolicy holds comments on pre-moderated sites as pending and applies
// Default everywhere else.
type PerSitePolicy struct {
	Default      domain.ModerationStatus
	Premoderated map[uuid.UUID]struct{}
}

// NewPerSitePolicy builds a PerSitePolicy from a list of pre-moderated sites.
func NewPerSitePolicy(def domain.ModerationStatus, premoderated []uuid.UUID) *PerSitePolicy {
	p := &PerSitePolicy{Default: def, Premoderated: make(map[uuid.UUID]struct{}, len(premoderated))}
	for _, id := range premoderated {
		p.Premoderated[id] = struct{}{}
	}
	return p
}

func (p *PerSitePolicy) DefaultStatus(siteID uuid.UUID) domain.ModerationStatus {
	if _, ok := p.Premoderated[siteID]; ok {
		return domain.StatusPending
	}
	return p.Default
}

// Sanitizer cleans user-supplied comment markup before it is stored.
type Sanitizer interface {
	Sanitize(s string) string
}

// NewHTMLSanitizer returns a Sanitizer that keeps the safe subset of HTML
// commonly allowed in user generated content.
func NewHTMLSanitizer() Sanitizer {
	return bluemonday.UGCPolicy()
}
