package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type lookupCall struct {
	actor, scope, key string
}

// idemSeen records what the handler observed.
type idemSeen struct {
	key    string
	replay bool
	bypass bool
	body   string
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *idemSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Actor(), IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, _ = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.bypass = IsRateBypass(c)
		var body struct {
			ContentID string `json:"content_id"`
		}
		_ = c.ShouldBindBodyWith(&body, binding.JSON)
		seen.body = body.ContentID
		c.Status(http.StatusCreated)
	}
	r.POST("/comments", h)
	r.POST("/contents/:contentId/comments", h)
	r.GET("/contents/:contentId/comments", h)
	return r
}

func TestIdempotency_NoHeaderIsNoop(t *testing.T) {
	var seen idemSeen
	called := false
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}, &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contents/c1/comments", nil))
	if w.Code != http.StatusCreated || called || seen.key != "" || seen.replay {
		t.Fatalf("unexpected: code=%d called=%v seen=%+v", w.Code, called, seen)
	}
}

func TestIdempotency_InvalidKeyRejected(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{MaxLen: 8}, nil, &seen)

	for _, key := range []string{"has space", "way-too-long-key", "bad/char"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/contents/c1/comments", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: code=%d body=%s", key, w.Code, w.Body.String())
		}
	}
}

func TestIdempotency_CustomPattern(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, nil, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/contents/c1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestIdempotency_ReplayFlagsAndParamScope(t *testing.T) {
	var seen idemSeen
	var got lookupCall
	r := idemRouter(IdempotencyOptions{}, func(_ context.Context, actor, scope, key string, _ time.Time) (bool, error) {
		got = lookupCall{actor, scope, key}
		return key == "k-replay", nil
	}, &seen)

	req := httptest.NewRequest(http.MethodPost, "/contents/c9/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-replay")
	req.Header.Set(HeaderActorID, "u-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got != (lookupCall{"u-1", "c9", "k-replay"}) {
		t.Fatalf("lookup args = %+v", got)
	}
	if seen.key != "k-replay" || !seen.replay || !seen.bypass {
		t.Fatalf("flags = %+v", seen)
	}

	req = httptest.NewRequest(http.MethodPost, "/contents/c9/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-fresh")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if seen.key != "k-fresh" || seen.replay || seen.bypass {
		t.Fatalf("fresh key flags = %+v", seen)
	}
}

func TestIdempotency_LookupErrorDoesNotBlock(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{}, func(context.Context, string, string, string, time.Time) (bool, error) {
		return false, errors.New("db down")
	}, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/contents/c1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated || seen.replay {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
}

func TestIdempotency_JSONFieldScopeKeepsBodyReadable(t *testing.T) {
	var seen idemSeen
	var scope string
	r := idemRouter(IdempotencyOptions{Scope: ScopeFromJSONField("content_id")}, func(_ context.Context, _, s, _ string, _ time.Time) (bool, error) {
		scope = s
		return false, nil
	}, &seen)

	req := httptest.NewRequest(http.MethodPost, "/comments", strings.NewReader(`{"content_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, "k1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if scope != "abc" {
		t.Fatalf("scope = %q", scope)
	}
	if seen.body != "abc" {
		t.Fatalf("handler could not re-read body: %q", seen.body)
	}
}

func TestIdempotency_SafeMethodsIgnored(t *testing.T) {
	var seen idemSeen
	r := idemRouter(IdempotencyOptions{}, nil, &seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/contents/c1/comments", nil)
	req.Header.Set(HeaderIdempotencyKey, "has space")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated || seen.key != "" {
		t.Fatalf("GET should bypass validation: code=%d seen=%+v", w.Code, seen)
	}
}
