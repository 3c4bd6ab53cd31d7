package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderActorID carries the caller's user id. Authentication is handled by the
// gateway in front of this service; the header is trusted as-is.
const HeaderActorID = "X-User-ID"

// actorKey is the Gin context key under which the actor id is stored.
const actorKey = "userID"

// Actor copies X-User-ID into the Gin context so rate limiting, idempotency
// and logging can key on it.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderActorID)); id != "" {
			c.Set(actorKey, id)
		}
		c.Next()
	}
}

// ActorID returns the caller id set by Actor, or "" for anonymous requests.
func ActorID(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
