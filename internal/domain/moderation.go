package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ModerationStatus classifies a comment's publication eligibility. Values are
// persisted as small unsigned integers and must stay stable.
type ModerationStatus uint8

const (
	StatusPending  ModerationStatus = 0
	StatusApproved ModerationStatus = 1
	StatusSpam     ModerationStatus = 2
	StatusRejected ModerationStatus = 3
)

// AllStatuses lists every valid moderation status in persisted order.
var AllStatuses = []ModerationStatus{StatusPending, StatusApproved, StatusSpam, StatusRejected}

var statusNames = [...]string{"pending", "approved", "spam", "rejected"}

// Valid reports whether s is one of the four defined statuses.
func (s ModerationStatus) Valid() bool { return int(s) < len(statusNames) }

// String returns the lowercase name of the status, or "status(N)" when invalid.
func (s ModerationStatus) String() string {
	if !s.Valid() {
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
	return statusNames[s]
}

// ParseModerationStatus accepts a status name (case-insensitive) or its
// numeric value.
func ParseModerationStatus(v string) (ModerationStatus, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statusNames {
		if v == name {
			return ModerationStatus(i), nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(statusNames) {
		return ModerationStatus(n), nil
	}
	return 0, fmt.Errorf("invalid moderation status %q", v)
}

// MarshalJSON encodes the status by name.
func (s ModerationStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid moderation status %d", uint8(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the status name or its numeric value.
func (s *ModerationStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		v, err := ParseModerationStatus(name)
		if err != nil {
			return err
		}
		*s = v
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("moderation status must be a name or number: %w", err)
	}
	if n < 0 || n >= len(statusNames) {
		return fmt.Errorf("invalid moderation status %d", n)
	}
	*s = ModerationStatus(n)
	return nil
}
