package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/handler"
	internalmiddleware "github.com/hmxfpv/admin-api/internal/middleware"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/service"
	"github.com/hmxfpv/admin-api/pkg/config"
	"github.com/hmxfpv/admin-api/pkg/logger"
	corsmiddleware "github.com/hmxfpv/admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/hmxfpv/admin-api/pkg/middleware/requestid"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Auth           *handler.AuthHandler
	Workflow       *handler.WorkflowHandler
	Members        *handler.MemberHandler
	EmailTemplates *handler.EmailTemplateHandler
	Exports        *handler.ExportHandler
	Metrics        *handler.MetricsHandler
}

// Dependencies are the cross-cutting collaborators of the router.
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *service.MetricsService
	Tokens   internalmiddleware.TokenValidator
	Handlers Handlers
}

var (
	readRoles  = models.ReviewerRoles()
	writeRoles = models.DecisionRoles()
)

var rosters = []models.Roster{models.RosterPilots, models.RosterEditors, models.RosterReferrals, models.RosterClients}

// NewRouter builds the gin engine with every admin route mounted under the
// configured API prefix.
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(internalmiddleware.Metrics(deps.Metrics))
	}
	r.Use(internalmiddleware.WithResponseMeta())
	r.Use(internalmiddleware.AuditMeta())

	h := deps.Handlers
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(deps.Tokens))
	secured.GET("/auth/verify", h.Auth.Verify)

	admin := secured.Group("/admin")
	read := internalmiddleware.RequireRoles(readRoles...)
	write := internalmiddleware.RequireRoles(writeRoles...)

	applications := admin.Group("/applications")
	applications.GET("/:type", read, h.Workflow.ListApplications)
	applications.GET("/:type/:id", read, h.Workflow.GetApplication)
	applications.POST("/:type/:id/:action", write, h.Workflow.DecideApplication)

	orders := admin.Group("/orders")
	orders.GET("", read, h.Workflow.ListOrders)
	orders.GET("/:id", read, h.Workflow.GetOrder)
	orders.PUT("/:id/status", write, h.Workflow.UpdateOrderStatus)

	cancellations := admin.Group("/cancellations")
	cancellations.GET("", read, h.Workflow.ListCancellations)
	cancellations.POST("", write, h.Workflow.CreateCancellation)
	cancellations.GET("/:id", read, h.Workflow.GetCancellation)
	cancellations.PUT("/:id", write, h.Workflow.DecideCancellation)

	videos := admin.Group("/video-reviews")
	videos.GET("", read, h.Workflow.ListVideoReviews)
	videos.GET("/:id", read, h.Workflow.GetVideoReview)
	videos.PUT("/:id", write, h.Workflow.UpdateVideoReview)

	admin.GET("/workflow/vocabulary", read, h.Workflow.Vocabulary)
	admin.GET("/workflow/stats", read, h.Workflow.Stats)
	admin.GET("/history/:kind/:id", read, h.Workflow.History)
	admin.GET("/exports/:kind", read, h.Exports.Export)
	admin.GET("/metrics", read, h.Metrics.Summary)

	for _, roster := range rosters {
		group := admin.Group("/" + string(roster))
		group.GET("", read, h.Members.List(roster))
		group.POST("", write, h.Members.Create(roster))
		group.GET("/:id", read, h.Members.Get(roster))
		group.GET("/:id/details", read, h.Members.Details(roster))
		group.PUT("/:id", write, h.Members.Update(roster))
		group.DELETE("/:id", write, h.Members.Delete(roster))
	}

	templates := admin.Group("/email-templates")
	templates.GET("", read, h.EmailTemplates.List)
	templates.POST("", write, h.EmailTemplates.Create)
	templates.GET("/:name", read, h.EmailTemplates.Get)
	templates.PUT("/:name", write, h.EmailTemplates.Update)
	templates.POST("/:name/preview", read, h.EmailTemplates.Preview)

	return r
}
