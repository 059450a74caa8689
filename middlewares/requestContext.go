package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/sirupsen/logrus"
)

// RequestContextMiddleware stamps every request with a correlation id
// (honoring an inbound X-Correlation-Id header) and the acting user, and
// logs one structured line per completed request.
func RequestContextMiddleware() gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.New().String()
		}

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		if actor := c.Request.Header.Get("X-Actor"); actor != "" {
			ctx = utils.SetActorInContext(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)

		start := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"correlation_id": correlationId,
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"duration_ms":    time.Since(start).Milliseconds(),
		}).Info("request completed")
	}
}
