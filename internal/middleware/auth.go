package middleware

import (
	"strings"

	"bloodbank/internal/auth"
	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"
	"bloodbank/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID   = "userID"
	ctxUserRole = "userRole"
	ctxIdentity = "identity"
)

// Authenticate validates the bearer token and stores the caller identity on the context.
func Authenticate(signer *auth.Signer, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperror.Unauthenticated("Authorization is missing"))
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortWithError(c, apperror.Unauthenticated("Invalid authorization format. Expected 'Bearer <token>'"))
			return
		}

		identity, err := signer.Parse(parts[1])
		if err != nil {
			abortWithError(c, apperror.Wrap(apperror.CodeUnauthenticated, err, "Invalid or expired token"))
			return
		}

		c.Set(ctxIdentity, identity)
		c.Set(ctxUserID, identity.UserID.String())
		c.Set(ctxUserRole, identity.Role)
		if log != nil {
			c.Request = c.Request.WithContext(log.WithActor(c.Request.Context(), identity.UserID.String(), identity.Role))
		}

		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated role is in allowedRoles.
// It must run after Authenticate.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			abortWithError(c, apperror.Unauthenticated("Authorization is missing"))
			return
		}

		for _, role := range allowedRoles {
			if identity.Role == role {
				c.Next()
				return
			}
		}
		abortWithError(c, apperror.Forbidden("Access denied: insufficient permissions"))
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}

func abortWithError(c *gin.Context, err error) {
	status, body := response.FromError(err)
	c.AbortWithStatusJSON(status, body)
}
