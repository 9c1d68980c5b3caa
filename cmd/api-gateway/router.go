// Package main 是应用程序入口
package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/song-studio-backend/internal/common/config"
	"github.com/dumeirei/song-studio-backend/internal/common/jwt"
	"github.com/dumeirei/song-studio-backend/internal/common/metrics"
	affiliateHandler "github.com/dumeirei/song-studio-backend/internal/handler/affiliate"
	authHandler "github.com/dumeirei/song-studio-backend/internal/handler/auth"
	orderHandler "github.com/dumeirei/song-studio-backend/internal/handler/order"
	paymentHandler "github.com/dumeirei/song-studio-backend/internal/handler/payment"
	promoHandler "github.com/dumeirei/song-studio-backend/internal/handler/promo"
	"github.com/dumeirei/song-studio-backend/internal/middleware"
	"github.com/dumeirei/song-studio-backend/internal/repository"
	"github.com/dumeirei/song-studio-backend/internal/scheduler"
	affiliateService "github.com/dumeirei/song-studio-backend/internal/service/affiliate"
	authService "github.com/dumeirei/song-studio-backend/internal/service/auth"
	orderService "github.com/dumeirei/song-studio-backend/internal/service/order"
	paymentService "github.com/dumeirei/song-studio-backend/internal/service/payment"
	promoService "github.com/dumeirei/song-studio-backend/internal/service/promo"
	"github.com/dumeirei/song-studio-backend/pkg/mailer"
	"github.com/dumeirei/song-studio-backend/pkg/paygate"
)

// setupRouter 设置路由，返回组装好的后台任务调度器
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
) *scheduler.Scheduler {
	// 创建 JWT 管理器
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	// 初始化仓储
	userRepo := repository.NewUserRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	promoRepo := repository.NewPromoCodeRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	eventRepo := repository.NewReferralEventRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	revisionRepo := repository.NewOrderRevisionRepository(db)
	versionRepo := repository.NewSongVersionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	// 初始化外部服务客户端
	gateway := paygate.NewClient(&paygate.Config{
		MerchantID:    cfg.PayGate.MerchantID,
		APIKey:        cfg.PayGate.APIKey,
		WebhookSecret: cfg.PayGate.WebhookSecret,
		NotifyURL:     cfg.PayGate.NotifyURL,
		IsSandbox:     cfg.PayGate.IsSandbox,
	})

	var mail mailer.Sender
	if cfg.Mailer.Provider == "smtp" {
		mail = mailer.NewSMTPSender(&mailer.Config{
			Host:     cfg.Mailer.Host,
			Port:     cfg.Mailer.Port,
			Username: cfg.Mailer.Username,
			Password: cfg.Mailer.Password,
			From:     cfg.Mailer.From,
			Enabled:  true,
		})
	} else {
		mail = mailer.NewMockSender()
	}

	// 初始化服务
	validator := promoService.NewValidatorService(db, cfg.Business.Promo, promoRepo, affiliateRepo)
	promoSvc := promoService.NewService(db, promoRepo)

	attributionSvc := affiliateService.NewAttributionService(cfg.Business.Affiliate, promoRepo, affiliateRepo, eventRepo)
	commissionSvc := affiliateService.NewCommissionService(db, cfg.Business.Affiliate, affiliateRepo, commissionRepo, promoRepo, eventRepo)
	affiliateSvc := affiliateService.NewService(db, cfg.Business.Affiliate, cfg.Server.BaseURL, affiliateRepo, promoRepo, commissionRepo, eventRepo)
	payoutSvc := affiliateService.NewPayoutService(db, cfg.Business.Affiliate, affiliateRepo, commissionRepo, payoutRepo)

	tracker := orderService.NewRevisionTracker(cfg.Business.Workflow)
	workflowSvc := orderService.NewWorkflowService(db, orderRepo, revisionRepo, versionRepo, userRepo, tracker, mail)
	orderSvc := orderService.NewService(db, cfg.Business, orderRepo, validator, attributionSvc)

	paymentSvc := paymentService.NewService(db, orderRepo, paymentRepo, userRepo, commissionSvc, gateway, mail)
	authSvc := authService.NewService(db, jwtManager, userRepo, adminRepo, attributionSvc)

	// 初始化处理器
	authH := authHandler.NewHandler(authSvc, cfg.Business.Affiliate.CookieName)
	promoH := promoHandler.NewHandler(promoSvc)
	affiliateH := affiliateHandler.NewHandler(affiliateSvc, attributionSvc, commissionSvc, payoutSvc, cfg.Business.Affiliate)
	orderH := orderHandler.NewHandler(orderSvc, workflowSvc, cfg.Business.Affiliate.CookieName)
	paymentH := paymentHandler.NewHandler(paymentSvc)

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RealIP())
	r.Use(middleware.CORS(nil))
	r.Use(middleware.AccessLog(logger))

	// Prometheus 指标
	if cfg.Metrics.Enabled {
		r.Use(metrics.GetMetrics().Middleware())
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 推广链接落地页（公开，带防刷限流）
	if cfg.RateLimit.Enabled {
		affiliateH.RegisterPublicRoutes(r, middleware.ClickRateLimit(redisClient))
	} else {
		affiliateH.RegisterPublicRoutes(r)
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		// 公开接口（无需认证）
		public := v1.Group("")
		if cfg.RateLimit.Enabled {
			public.Use(middleware.IPRateLimit(redisClient, cfg.RateLimit.Burst, time.Minute))
		}
		{
			authH.RegisterRoutes(public)
			orderH.RegisterPublicRoutes(public)
		}

		// 支付回调（需要验签，不需要认证）
		paymentH.RegisterCallbackRoutes(v1)

		// 用户端接口（需要用户认证）
		user := v1.Group("")
		user.Use(middleware.UserAuth(jwtManager))
		{
			orderH.RegisterRoutes(user)
			paymentH.RegisterRoutes(user)
			affiliateH.RegisterRoutes(user)
		}

		// 管理端接口（需要管理员认证）
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(jwtManager))
		{
			promoH.RegisterAdminRoutes(admin)
			affiliateH.RegisterAdminRoutes(admin)
			orderH.RegisterAdminRoutes(admin)
		}
	}

	// 404 处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    404,
			"message": "接口不存在",
		})
	})

	// 组装后台任务
	sched := scheduler.NewScheduler()
	taskHandler := scheduler.NewTaskHandler(db, paymentSvc, commissionSvc)
	scheduler.SetupTasks(sched, taskHandler)

	return sched
}
