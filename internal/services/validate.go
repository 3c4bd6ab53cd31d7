package services

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

// normalizeText converts s to NFC so that lengths are counted in the same
// characters a reader sees. Whitespace and markup are kept as given.
func normalizeText(s string) string {
	return norm.NFC.String(s)
}

func checkLen(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return nil
}

func checkStatus(s domain.ModerationStatus) error {
	if !s.Valid() {
		return &ValidationError{Field: "moderation_status", Reason: fmt.Sprintf("unknown status %d", uint8(s))}
	}
	return nil
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
