package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// commentsCreated counts inserted comments by initial moderation status.
	commentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comments_created_total",
			Help: "Total number of comments created, by initial moderation status.",
		},
		[]string{"status"},
	)

	// moderationTransitions counts Moderate calls by previous and new status.
	moderationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_moderation_transitions_total",
			Help: "Total number of moderation actions, by previous and new status.",
		},
		[]string{"from", "to"},
	)

	// commentsDeleted counts removed comments.
	commentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comments_deleted_total",
			Help: "Total number of comments deleted.",
		},
	)

	// storeErrors counts failed store operations by operation and error kind.
	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_store_errors_total",
			Help: "Total number of failed comment store operations.",
		},
		[]string{"op", "kind"},
	)
)

func init() {
	prometheus.MustRegister(commentsCreated, moderationTransitions, commentsDeleted, storeErrors)
}

// errorKind returns a bounded label for err.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "unavailable"
	}
	return "internal"
}
