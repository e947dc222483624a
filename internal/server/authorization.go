package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/upkeep/internal/authorization"
)

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := adminFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		actor := authorization.AdminActor(claims.AdminID)
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
