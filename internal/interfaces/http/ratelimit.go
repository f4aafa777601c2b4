package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// triggerRateLimit caps how fast clients may enqueue triggers. A request over
// the limit gets 429 with a Retry-After hint and consumes no token.
func triggerRateLimit(limiter *rate.Limiter, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow() {
			c.Next()
			return
		}

		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		retryAfter := int(math.Ceil(delay.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}

		logger.Info("Trigger rate limited", "path", c.Request.URL.Path, "retry_after", retryAfter)

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
			Success: false,
			Error:   "too many trigger requests",
		})
	}
}
