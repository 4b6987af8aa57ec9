package api

import (
	"github.com/gin-gonic/gin"
	"github.com/kitade/kita-jobs/internal/api/handler"
	"github.com/kitade/kita-jobs/internal/api/middleware"
	"github.com/kitade/kita-jobs/internal/config"
	"github.com/kitade/kita-jobs/internal/logger"
	"github.com/kitade/kita-jobs/internal/service"
)

// Dependencies are the collaborators the router wires into handlers.
// Kitas, Posts, Runs and DB may be nil when no database is configured; the read
// endpoints are then not registered.
type Dependencies struct {
	Imports   *service.ImportService
	Knowledge *service.KnowledgeService
	Registry  *service.JobRegistry
	Kitas     handler.KitaReader
	Posts     handler.KnowledgeReader
	Runs      handler.RunReader
	DB        handler.Pinger
	Logger    *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Dependencies, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(deps.DB)
	importHandler := handler.NewImportHandler(deps.Imports, deps.Knowledge, deps.Registry)

	r.GET("/health", healthHandler.Health)

	routes := r.Group("/api")

	imports := routes.Group("/import")
	{
		imports.GET("/bezirke", importHandler.ListBezirke)
		imports.POST("/start", importHandler.StartImport)
		imports.GET("/status/:jobId", importHandler.Status)
		imports.GET("/results/:jobId", importHandler.Results)
		imports.GET("/jobs", importHandler.ListJobs)

		imports.POST("/knowledge", importHandler.StartKnowledgeImport)
		imports.GET("/knowledge/preview", importHandler.PreviewKnowledge)
		imports.GET("/knowledge/search", importHandler.SearchKnowledge)
		imports.POST("/knowledge/specific", importHandler.ImportSpecificKnowledge)
	}

	if deps.Kitas != nil {
		kitaHandler := handler.NewKitaHandler(deps.Kitas)
		routes.GET("/kitas", kitaHandler.ListKitas)
		routes.GET("/kitas/:id", kitaHandler.GetKita)
	}

	if deps.Runs != nil {
		runHandler := handler.NewRunHandler(deps.Runs)
		imports.GET("/runs", runHandler.ListRuns)
	}

	if deps.Posts != nil {
		knowledgeHandler := handler.NewKnowledgeHandler(deps.Posts)
		routes.GET("/knowledge", knowledgeHandler.ListPosts)
		routes.GET("/knowledge/:slug", knowledgeHandler.GetPost)
	}

	return r
}
