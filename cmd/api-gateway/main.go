package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-fee-api/api/swagger"
	"github.com/noah-isme/sma-fee-api/internal/handler"
	"github.com/noah-isme/sma-fee-api/internal/middleware"
	"github.com/noah-isme/sma-fee-api/internal/models"
	"github.com/noah-isme/sma-fee-api/internal/repository"
	"github.com/noah-isme/sma-fee-api/internal/service"
	"github.com/noah-isme/sma-fee-api/pkg/cache"
	"github.com/noah-isme/sma-fee-api/pkg/channel"
	"github.com/noah-isme/sma-fee-api/pkg/config"
	"github.com/noah-isme/sma-fee-api/pkg/database"
	"github.com/noah-isme/sma-fee-api/pkg/jobs"
	"github.com/noah-isme/sma-fee-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-fee-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-fee-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-fee-api/pkg/storage"
)

// @title SMA Fee API
// @version 1.0.0
// @description Fee ledger, fee status and guardian notifications for SMA schools.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const receiptJanitorInterval = time.Hour

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.MigrateUp(db); err != nil {
		logr.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, fee status cache disabled", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr.Named("cache"))
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Fees.StatusCacheTTL, logr.Named("cache"), redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	feeCatalogRepo := repository.NewFeeCatalogRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	batchRepo := repository.NewNotificationBatchRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	receiptStore, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare receipt storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL)

	validate := validator.New()
	channels := channel.NewSet(ctx, cfg, logr.Named("channel"))
	dispatcher := service.NewNotificationService(channels, userRepo, metricsSvc, cfg.Notifications.Timeout, logr.Named("notify"))

	feeStatusSvc := service.NewFeeStatusService(userRepo, feeCatalogRepo, paymentRepo, cacheSvc, dispatcher, metricsSvc, service.FeeStatusConfig{
		CacheTTL:        cfg.Fees.StatusCacheTTL,
		ReminderChannel: models.Channel(cfg.Fees.ReminderChannel),
		InstituteName:   cfg.InstituteName,
	}, nil, logr.Named("fee_status"))
	ledgerSvc := service.NewLedgerService(paymentRepo, feeStatusSvc, validate, logr.Named("ledger"))
	catalogSvc := service.NewFeeCatalogService(feeCatalogRepo, sessionRepo, courseRepo, feeStatusSvc, validate, logr.Named("fee_catalog"))
	courseSvc := service.NewCourseService(courseRepo, userRepo, feeStatusSvc, validate, logr.Named("course"))
	sessionSvc := service.NewAcademicSessionService(sessionRepo, feeStatusSvc, validate, logr.Named("session"))
	enrollmentSvc := service.NewEnrollmentService(courseRepo, userRepo, courseRepo, sessionRepo, feeStatusSvc, logr.Named("enrollment"))
	attendanceSvc := service.NewAttendanceService(attendanceRepo, userRepo, dispatcher, models.Channel(cfg.Notifications.AbsenceGuardianChannel), validate, logr.Named("attendance"))
	receiptSvc := service.NewReceiptService(paymentRepo, receiptStore, signer, cfg.InstituteName, cfg.Receipts.PublicBaseURL+cfg.APIPrefix, logr.Named("receipt"))
	messageSvc := service.NewMessageService(userRepo, messageRepo, dispatcher, validate, nil, logr.Named("message"))
	userSvc := service.NewUserService(userRepo, sessionRepo, feeStatusSvc, validate, logr.Named("user"))
	tokenSvc := service.NewTokenService(cfg.JWT, nil)

	bulkSvc := service.NewBulkNotifyService(batchRepo, userRepo, messageRepo, dispatcher, metricsSvc, validate, nil, logr.Named("bulk"))
	notifyQueue := jobs.NewQueue("notifications", bulkSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: 2 * time.Second,
		OnComplete: bulkSvc.OnJobComplete,
		Logger:     logr.Named("queue"),
	})
	bulkSvc.UseQueue(notifyQueue)
	// Workers outlive the signal context so queued batches can drain on shutdown.
	notifyQueue.Start(context.Background())
	announcementSvc := service.NewAnnouncementService(announcementRepo, bulkSvc, validate, logr.Named("announcement"))

	go runReceiptJanitor(ctx, receiptSvc, 2*cfg.Receipts.SignedURLTTL, logr.Named("receipt"))

	feeHandler := handler.NewFeeHandler(catalogSvc, feeStatusSvc)
	paymentHandler := handler.NewPaymentHandler(ledgerSvc, receiptSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	notificationHandler := handler.NewNotificationHandler(bulkSvc, messageSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.HealthCheck{
		"database": db.PingContext,
		"redis":    cacheRepo.Ping,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	studentScope := middleware.RBACWithGuardian(userRepo.IsGuardianOf,
		string(models.RoleAdmin), string(models.RoleTeacher), middleware.AllowSelf, middleware.AllowGuardian)
	ownInbox := middleware.RBAC(string(models.RoleAdmin), middleware.AllowSelf)

	api := r.Group(cfg.APIPrefix)
	api.GET("/receipts/:token", paymentHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokenSvc))

	secured.PUT("/me/device-token", userHandler.RegisterDeviceToken)
	secured.DELETE("/me/device-token", userHandler.RemoveDeviceToken)

	secured.GET("/users", admin, userHandler.List)
	secured.POST("/users", admin, userHandler.Create)
	secured.GET("/users/:id", admin, userHandler.Get)
	secured.PUT("/users/:id", admin, userHandler.Update)
	secured.DELETE("/users/:id", admin, userHandler.Delete)

	secured.GET("/fee-entries", admin, feeHandler.ListEntries)
	secured.POST("/fee-entries", admin, feeHandler.CreateEntry)
	secured.GET("/fee-entries/:id", admin, feeHandler.GetEntry)
	secured.PUT("/fee-entries/:id", admin, feeHandler.UpdateEntry)
	secured.DELETE("/fee-entries/:id", admin, feeHandler.DeleteEntry)

	secured.POST("/payments", admin, paymentHandler.Record)
	secured.GET("/payments/:id/receipt", admin, paymentHandler.Receipt)

	secured.GET("/fee-status", admin, feeHandler.ListStatuses)
	secured.GET("/reports/fee-pending", admin, feeHandler.ExportPending)
	secured.GET("/reports/attendance", staff, attendanceHandler.Summary)
	secured.GET("/metrics/summary", admin, metricsHandler.Summary)

	secured.GET("/students/:id", studentScope, enrollmentHandler.Profile)
	secured.GET("/students/:id/fee-status", studentScope, feeHandler.StudentStatus)
	secured.GET("/students/:id/payments", studentScope, paymentHandler.ListForStudent)
	secured.GET("/students/:id/attendance", studentScope, attendanceHandler.History)
	secured.POST("/students/:id/fee-reminders", admin, feeHandler.SendReminder)
	secured.POST("/students/:id/courses/:courseId", admin, enrollmentHandler.Enroll)
	secured.DELETE("/students/:id/courses/:courseId", admin, enrollmentHandler.Unenroll)
	secured.PUT("/students/:id/session", admin, enrollmentHandler.AssignSession)

	secured.POST("/attendance", staff, attendanceHandler.Mark)

	secured.GET("/announcements", announcementHandler.List)
	secured.POST("/announcements", admin, announcementHandler.Publish)
	secured.DELETE("/announcements/:id", admin, announcementHandler.Delete)

	secured.POST("/notifications/bulk", admin, notificationHandler.Bulk)
	secured.GET("/notifications/batches/:id", admin, notificationHandler.Batch)
	secured.POST("/notifications/direct", staff, notificationHandler.Direct)
	secured.GET("/parents/:id/messages", ownInbox, notificationHandler.ParentMessages)

	secured.GET("/courses", courseHandler.List)
	secured.POST("/courses", admin, courseHandler.Create)
	secured.PUT("/courses/:id", admin, courseHandler.Update)
	secured.DELETE("/courses/:id", admin, courseHandler.Delete)
	secured.GET("/sessions", sessionHandler.List)
	secured.POST("/sessions", admin, sessionHandler.Create)
	secured.PUT("/sessions/:id", admin, sessionHandler.Update)
	secured.DELETE("/sessions/:id", admin, sessionHandler.Delete)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	if err := notifyQueue.Drain(shutdownCtx); err != nil {
		logr.Warn("notification queue not drained", zap.Error(err))
	}
	notifyQueue.Stop()
}

func runReceiptJanitor(ctx context.Context, receipts *service.ReceiptService, maxAge time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(receiptJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := receipts.PurgeOlderThan(maxAge); err != nil {
				logr.Warn("receipt cleanup failed", zap.Error(err))
			}
		}
	}
}
