package api

import (
	"github.com/gin-gonic/gin"
	"github.com/halvard/modelwatch/internal/api/handler"
	"github.com/halvard/modelwatch/internal/api/middleware"
	"github.com/halvard/modelwatch/internal/logger"
	"github.com/halvard/modelwatch/internal/repository"
	"github.com/halvard/modelwatch/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	extractions *service.ExtractionService,
	monitor *service.FileMonitor,
	files *repository.FileRepository,
	log *logger.Logger,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	extractionHandler := handler.NewExtractionHandler(extractions)
	monitorHandler := handler.NewMonitorHandler(monitor, files)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Extraction runs
		v1.POST("/extractions", extractionHandler.StartRun)
		v1.GET("/extractions", extractionHandler.ListRuns)
		v1.GET("/extractions/:id", extractionHandler.GetRun)
		v1.POST("/extractions/:id/cancel", extractionHandler.CancelRun)
		v1.POST("/extractions/:id/resume", extractionHandler.ResumeRun)

		// File monitor
		v1.POST("/monitor/check", monitorHandler.Check)
		v1.GET("/monitor/changes", monitorHandler.ListChanges)
		v1.GET("/monitor/files", monitorHandler.ListFiles)
	}

	return r
}
