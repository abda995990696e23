package clmiddleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionUserKey is the session value holding the authenticated user id.
const SessionUserKey = "user_id"

func hasSession(c *gin.Context) bool {
	_, ok := c.Get(sessions.DefaultKey)
	return ok
}

// CurrentUserID returns the authenticated user id, or nil for anonymous
// requests and requests without a session.
func CurrentUserID(c *gin.Context) *uint {
	if !hasSession(c) {
		return nil
	}
	id, ok := sessions.Default(c).Get(SessionUserKey).(uint)
	if !ok {
		return nil
	}
	return &id
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}
