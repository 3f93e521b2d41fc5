package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/models"
)

// UserResolver maps verified token claims to a user row.
type UserResolver interface {
	FindOrCreate(ctx context.Context, externalID, email string) (*models.User, error)
}

// RequireAuth is a middleware that ensures the request carries a valid
// bearer token and resolves it to a user
func RequireAuth(verifier *Verifier, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			apierr.Respond(c, fmt.Errorf("missing bearer token: %w", apierr.ErrUnauthenticated))
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			slog.Debug("Rejected bearer token", "path", c.Request.URL.Path, "error", err)
			apierr.Respond(c, fmt.Errorf("invalid bearer token: %w", apierr.ErrUnauthenticated))
			return
		}

		user, err := users.FindOrCreate(c.Request.Context(), claims.Subject, claims.Email)
		if err != nil {
			apierr.Respond(c, err)
			return
		}

		// User is authenticated - set context values for downstream handlers
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUserEmail, user.Email)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
