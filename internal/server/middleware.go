package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/upkeep/internal/auth/domain"
	obscontext "github.com/smallbiznis/upkeep/internal/observability/context"
)

const (
	contextAdminKey  = "admin_claims"
	contextClientKey = "client_code"

	corsAllowMethods = "GET, POST, PUT, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-Id"
)

// CORSMiddleware allows browser access from the configured origins. A "*"
// entry allows any origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if allowAny || ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Methods", corsAllowMethods)
				c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
				c.Header("Access-Control-Expose-Headers", "Retry-After, X-Request-Id")
				c.Header("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AdminRequired authenticates the bearer token and binds the admin to the
// request context.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "admin", claims.AdminID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAdminKey, claims)
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func adminFromContext(c *gin.Context) (*authdomain.Claims, bool) {
	value, ok := c.Get(contextAdminKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*authdomain.Claims)
	if !ok || claims == nil || strings.TrimSpace(claims.AdminID) == "" {
		return nil, false
	}
	return claims, true
}
