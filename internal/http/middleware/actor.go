// README: Caller identity middleware; the header value becomes the audit actor.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ActorHeader  = "X-Actor-ID"
	actorKey     = "actor"
	defaultActor = "anonymous"
)

// Actor records who is calling. Authentication happens upstream of this service.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = defaultActor
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// CallerID returns the actor set by Actor, or "anonymous" when the middleware did not run.
func CallerID(c *gin.Context) string {
	if v, ok := c.Get(actorKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultActor
}
