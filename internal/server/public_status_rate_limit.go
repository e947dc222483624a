package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) PublicStatusRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.statusLimiter == nil {
			c.Next()
			return
		}

		res := s.statusLimiter.Allow(c.Request.Context(), c.ClientIP())
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "public_status")
		}
		AbortWithError(c, ErrRateLimited)
	}
}
