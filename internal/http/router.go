package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas.
// /healthz y /metrics quedan sin autenticacion.
func NewRouter(
	logger *zap.Logger,
	auth gin.HandlerFunc,
	gatherer prometheus.Gatherer,
	teamH *TeamHandler,
	assignH *AssignmentHandler,
	adminH *AdminHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("", jsonContentTypeMiddleware(), auth)

	api.POST("/teams/:id/complete", teamH.CompleteTeam)

	assignments := api.Group("/assignments")
	assignments.GET("/:teamId", assignH.Get)
	assignments.POST("/:teamId/enqueue", assignH.Enqueue)
	assignments.POST("/:teamId/justifications", assignH.RegenerateJustifications)

	admin := api.Group("/admin")
	admin.GET("/queue", adminH.QueueStatus)
	admin.GET("/health", adminH.Health)
	admin.POST("/recover", adminH.Recover)
	admin.POST("/sweep", adminH.Sweep)
	admin.POST("/process", adminH.Process)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
