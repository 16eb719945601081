package api

import (
	"github.com/gin-gonic/gin"

	"github.com/olegk/qrsync/internal/api/handler"
	"github.com/olegk/qrsync/internal/api/middleware"
	"github.com/olegk/qrsync/internal/config"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
	"github.com/olegk/qrsync/internal/service"
)

// Services bundles what the router wires into handlers.
type Services struct {
	Jobs      service.JobStore
	Products  *repository.ProductRepository
	Processor *service.BatchProcessor
	Reconcile *service.ReconcileService
	Generate  *service.GenerateService
	Archive   *service.ArchiveService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svcs Services, cfg *config.Config, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
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
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(svcs.Jobs)
	syncHandler := handler.NewSyncHandler(svcs.Reconcile, svcs.Processor)
	qrHandler := handler.NewQRCodeHandler(svcs.Generate, svcs.Archive, svcs.Processor)
	productHandler := handler.NewProductHandler(svcs.Products, svcs.Archive, cfg.Sync.RedirectURL)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Public barcode redirect
	r.GET("/r/:barcode", productHandler.RedirectByBarcode)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.GET("/jobs/:id", jobHandler.GetJob)

		// Reconciliation
		v1.POST("/sync", syncHandler.StartSync)

		// QR codes
		v1.POST("/qrcodes/generate", qrHandler.Generate)
		v1.GET("/qrcodes/archive", qrHandler.Archive)
		v1.DELETE("/qrcodes", qrHandler.DeleteAll)

		// Products
		v1.GET("/products", productHandler.ListProducts)
		v1.GET("/products/:id", productHandler.GetProduct)
		v1.GET("/products/:id/archive", productHandler.ProductArchive)
	}

	return r
}
