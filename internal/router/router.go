package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "materialflow/docs"
	"materialflow/internal/handler"
	"materialflow/internal/middleware"
	"materialflow/internal/service"
)

// Options holds router settings.
type Options struct {
	AllowedOrigins []string
	// RequireAuth puts the API group behind service tokens. Feedback stays public.
	RequireAuth bool
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	opts Options,
	tokens service.TokenService,
	documentH *handler.DocumentHandler,
	exportH *handler.ExportHandler,
	feedbackH *handler.FeedbackHandler,
	healthH *handler.HealthHandler,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")

	// Feedback links carry their own signed token.
	v1.GET("/feedback", feedbackH.Quick)
	v1.POST("/feedback", feedbackH.Submit)

	protected := v1.Group("")
	if opts.RequireAuth {
		protected.Use(middleware.ServiceAuth(tokens))
	}

	documents := protected.Group("/documents")
	documents.POST("", documentH.Submit)
	documents.GET("/:id", documentH.GetResult)
	documents.GET("/:id/lifecycle", documentH.GetLifecycle)

	results := protected.Group("/results")
	results.GET("", documentH.ListResults)
	results.GET("/export", exportH.Export)

	protected.GET("/lifecycle", documentH.ListLifecycle)

	return r
}
