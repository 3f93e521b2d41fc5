package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jimdaga/givethnotes/internal/apierr"
)

// Context keys set by RequireAuth for downstream handlers
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// CurrentUser returns the authenticated user's id, or aborts the request
// with 401 when there is none.
func CurrentUser(c *gin.Context) (uint, bool) {
	id, ok := UserID(c)
	if !ok {
		apierr.Respond(c, apierr.ErrUnauthenticated)
		return 0, false
	}
	return id, true
}
