package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-comments-backend/internal/domain"
)

func TestContentStats_CountError_NoTable(t *testing.T) {
	db := newBareDB(t /* no migrations */)
	_, _, err := ContentStats(context.Background(), db, uuid.New())
	if err == nil {
		t.Fatalf("expected error due to missing mp_comments table")
	}
}

func TestContentStats_ZeroRows(t *testing.T) {
	db := newTestDB(t)
	count, maxAt, err := ContentStats(context.Background(), db, uuid.New())
	if err != nil {
		t.Fatalf("ContentStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestContentStats_FilterAndMax(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := newScope()

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for s
	t3 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)   // other content

	c1 := mkComment(s, nil, t1, domain.StatusApproved)
	c2 := mkComment(s, nil, t1, domain.StatusApproved)
	c2.LastModifiedAt = t2
	c3 := mkComment(newScope(), nil, t3, domain.StatusApproved)
	for _, c := range []*domain.Comment{c1, c2, c3} {
		if err := InsertComment(ctx, db, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, maxAt, err := ContentStats(ctx, db, s.content)
	if err != nil {
		t.Fatalf("ContentStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected max %v, got %v", t2, maxAt)
	}
}

func TestSiteModerationCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := newScope()
	now := time.Now().UTC()

	seed := []domain.ModerationStatus{
		domain.StatusApproved, domain.StatusApproved, domain.StatusSpam, domain.StatusPending,
	}
	for _, st := range seed {
		if err := InsertComment(ctx, db, mkComment(s, nil, now, st)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// another content item on the same site counts too
	sameSite := newScope()
	sameSite.site = s.site
	if err := InsertComment(ctx, db, mkComment(sameSite, nil, now, domain.StatusRejected)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := InsertComment(ctx, db, mkComment(newScope(), nil, now, domain.StatusSpam)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := SiteModerationCounts(ctx, db, s.site)
	if err != nil {
		t.Fatalf("SiteModerationCounts: %v", err)
	}
	want := map[domain.ModerationStatus]int64{
		domain.StatusApproved: 2,
		domain.StatusSpam:     1,
		domain.StatusPending:  1,
		domain.StatusRejected: 1,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("status %s: got %d, want %d", k, got[k], v)
		}
	}

	empty, err := SiteModerationCounts(ctx, db, uuid.New())
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty report, got %v, %v", empty, err)
	}
}
