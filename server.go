package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/mmdatafocus/docflow_backend/middlewares"
	"github.com/mmdatafocus/docflow_backend/models"
	"github.com/mmdatafocus/docflow_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("docflow-backend")

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs only requests that recorded gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// respondError maps the error taxonomy onto HTTP statuses and a stable JSON
// shape: {"error": {"kind": ..., "message": ...}}.
func respondError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	c.JSON(utils.HTTPStatus(kind), gin.H{
		"error": gin.H{"kind": kind, "message": utils.MessageOf(err)},
	})
}

func setupRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middlewares.RequestContextMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Correlation-Id", "X-Actor")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-Id")
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/templates", createTemplateHandler())
		api.GET("/templates", listTemplatesHandler())
		api.GET("/templates/:id", getTemplateHandler())
		api.DELETE("/templates/:id", deleteTemplateHandler())
		api.PATCH("/templates/:id/archive", archiveTemplateHandler())
		api.POST("/templates/:id/preview", previewTemplateHandler())
		api.POST("/templates/:id/batch", uploadBatchHandler())
		api.GET("/templates/:id/sessions", listSessionsHandler())
		api.GET("/templates/:id/export", exportDocumentsHandler())

		api.GET("/sessions/:id", getSessionHandler())
		api.PATCH("/sessions/:id/candidates/:ordinal/status", setCandidateStatusHandler())
		api.PATCH("/sessions/:id/candidates/:ordinal/fields", updateCandidateFieldsHandler())
		api.GET("/sessions/:id/candidates/:ordinal/preview", previewCandidateHandler())
		api.POST("/sessions/:id/materialize", materializeSessionHandler())
		api.DELETE("/sessions/:id", abandonSessionHandler())

		api.GET("/documents", listDocumentsHandler())
		api.GET("/documents/:id", getDocumentHandler())
		api.PATCH("/documents/:id/archive", archiveDocumentHandler())
	}

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := setupRouter(logger)

	// Start listening immediately; until DB is ready the readiness gate
	// answers 503 for app endpoints.
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if err := config.InitPubSub(context.Background()); err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pub/sub disabled: " + err.Error())
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
	config.ClosePubSub()
}
