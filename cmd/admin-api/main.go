package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/hmxfpv/admin-api/api/swagger"
	"github.com/hmxfpv/admin-api/internal/handler"
	"github.com/hmxfpv/admin-api/internal/repository"
	"github.com/hmxfpv/admin-api/internal/server"
	"github.com/hmxfpv/admin-api/internal/service"
	"github.com/hmxfpv/admin-api/internal/workflow"
	"github.com/hmxfpv/admin-api/pkg/cache"
	"github.com/hmxfpv/admin-api/pkg/config"
	"github.com/hmxfpv/admin-api/pkg/database"
	"github.com/hmxfpv/admin-api/pkg/email"
	"github.com/hmxfpv/admin-api/pkg/jobs"
	"github.com/hmxfpv/admin-api/pkg/logger"
)

// @title HMX FPV Tours Admin API
// @version 1.0.0
// @description Approval workflow for applications, orders, cancellations and video reviews
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, list cache disabled", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, "hmx-admin", logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Workflow.CacheTTL, logr, cfg.Workflow.CacheEnabled)

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	templateRepo := repository.NewEmailTemplateRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	created, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.Email, cfg.Bootstrap.Password, cfg.Bootstrap.FullName)
	if err != nil {
		logr.Fatal("failed to bootstrap administrator", zap.Error(err))
	}
	if created {
		logr.Info("bootstrap administrator created", zap.String("email", cfg.Bootstrap.Email))
	}

	templateSvc := service.NewEmailTemplateService(templateRepo, userRepo, logr)

	workflowOpts := []service.WorkflowServiceOption{
		service.WithWorkflowMetrics(metricsSvc),
		service.WithRosterActivator(memberRepo),
	}
	if cfg.Workflow.CacheEnabled {
		workflowOpts = append(workflowOpts, service.WithWorkflowCache(cacheSvc, cfg.Workflow.CacheTTL))
	}

	var queue *jobs.Queue
	if cfg.Notifications.Enabled {
		sender, err := email.NewSender(cfg.Notifications, logr)
		if err != nil {
			logr.Fatal("failed to configure email sender", zap.Error(err))
		}
		notificationSvc := service.NewNotificationService(templateSvc, sender, metricsSvc, logr)
		queue = jobs.NewQueue("notifications", notificationSvc.Handle, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: 128,
			MaxRetries: cfg.Notifications.Retries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
			OnDiscard:  notificationSvc.Discarded,
		})
		notificationSvc.UseQueue(queue)
		queue.Start(ctx)
		workflowOpts = append(workflowOpts, service.WithWorkflowNotifier(notificationSvc))
	}

	vocab := workflow.NewVocabulary(workflow.OrderPolicy(cfg.Workflow.OrderPolicy))
	workflowSvc := service.NewWorkflowService(workflowRepo, vocab, userRepo, logr, workflowOpts...)
	memberSvc := service.NewMemberService(memberRepo, workflowRepo, userRepo, validate, logr)
	exportSvc := service.NewExportService(workflowSvc, nil, userRepo, logr)

	readiness := database.NewReadinessChecker(db)
	router := server.NewRouter(server.Dependencies{
		Config:  cfg,
		Logger:  logr,
		Metrics: metricsSvc,
		Tokens:  authSvc,
		Handlers: server.Handlers{
			Auth:           handler.NewAuthHandler(authSvc),
			Workflow:       handler.NewWorkflowHandler(workflowSvc),
			Members:        handler.NewMemberHandler(memberSvc),
			EmailTemplates: handler.NewEmailTemplateHandler(templateSvc),
			Exports:        handler.NewExportHandler(exportSvc),
			Metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
				"postgres": readiness.CheckReady,
				"redis":    cacheRepo.Ping,
			}),
		},
	})

	srv := server.New(cfg.Port, router, cfg.ShutdownTimeout, logr)
	logr.Info("admin api starting", zap.Int("port", cfg.Port), zap.String("env", cfg.Env), zap.String("order_policy", string(vocab.Policy())))
	if err := srv.Run(ctx); err != nil {
		logr.Error("server stopped with error", zap.Error(err))
	}

	if queue != nil {
		queue.Stop()
	}
}
