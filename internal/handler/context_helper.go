package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-identity-api/internal/middleware"
	"github.com/noah-isme/tutor-identity-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// currentUserID is empty for anonymous requests; services reject that as Unauthorized.
func currentUserID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
