// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"humanly-server/internal/cache"
	"humanly-server/internal/config"
	"humanly-server/internal/guard"
	"humanly-server/internal/handler"
	"humanly-server/internal/llm"
	"humanly-server/internal/middleware"
	"humanly-server/internal/model"
	"humanly-server/internal/repository"
	"humanly-server/internal/service"
	"humanly-server/internal/websocket"
	"humanly-server/pkg/jwt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	streakRepo := repository.NewStreakRepository(db)

	// 初始化补全服务客户端
	llmClient := llm.NewClient(cfg)

	// 初始化 WebSocket Hub
	// Hub 同时是对话事件的 Notifier，先于对话服务创建
	wsHub := websocket.NewHub()

	// 初始化 Service 层
	streakService := service.NewStreakService(streakRepo)
	coachService := service.NewCoachService(
		messageRepo,
		profileRepo,
		redisCache,
		llmClient,
		streakService,
		wsHub,
		cfg,
	)
	wsHub.SetCoach(coachService)
	go wsHub.Run() // 在单独的 goroutine 中运行

	authService := service.NewAuthService(userRepo, profileRepo, redisCache, jwtService, coachService)
	userService := service.NewUserService(userRepo, profileRepo, coachService)

	// 初始化导航守卫
	navGuard := guard.New(cfg.Coach.GuardCooldown)

	// 初始化 Handler 层
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService, streakService)
	chatHandler := handler.NewChatHandler(coachService)
	navHandler := handler.NewNavHandler(navGuard, profileRepo, coachService)
	wsHandler := websocket.NewHandler(wsHub, jwtService, redisCache)

	// 对话接口的发送频率限制
	sendLimiter := middleware.NewSendRateLimiter(cfg.Coach.SendRatePerMinute)
	go func() {
		for range time.Tick(10 * time.Minute) {
			sendLimiter.Cleanup()
		}
	}()

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware()) // 恢复 panic
	router.Use(middleware.LoggerMiddleware())   // 请求日志
	router.Use(corsMiddleware(cfg))             // CORS

	// 注册路由
	registerRoutes(router, jwtService, redisCache, sendLimiter,
		authHandler, userHandler, chatHandler, navHandler, wsHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// 补全请求可能长达数十秒，写超时放宽
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// 刷新所有会话中未落盘的消息
	coachService.Shutdown()

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.User{},
		&model.Profile{},
		&model.ChatMessage{},
		&model.Streak{},
		&model.Achievement{},
		&model.EngagementEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// corsMiddleware 根据配置构建 CORS 中间件
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORS) > 0 {
		corsCfg.AllowOrigins = cfg.Server.CORS
	}
	return middleware.CORSMiddleware(corsCfg)
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	sendLimiter *middleware.SendRateLimiter,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	navHandler *handler.NavHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		if err := redisCache.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 路由组
	v1 := router.Group("/api/v1")

	// 认证相关
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}
	// 登出需要知道当前 Token，挂认证中间件
	v1.POST("/auth/logout",
		middleware.AuthMiddleware(jwtService, redisCache), authHandler.Logout)

	// 用户相关（需要登录）
	users := v1.Group("/users")
	users.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		users.GET("/me", userHandler.GetMe)
		users.PUT("/me", userHandler.UpdateProfile)
		users.POST("/me/onboarding", userHandler.CompleteOnboarding)
	}

	// 对话相关（需要登录）
	chat := v1.Group("/chat")
	chat.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		// 发送和重试挂发送频率限制
		chat.POST("/messages", sendLimiter.Middleware(), chatHandler.SendMessage)
		chat.POST("/retry", sendLimiter.Middleware(), chatHandler.RetryMessage)
		chat.POST("/new", chatHandler.NewChat)
		chat.GET("/history", chatHandler.GetHistory)
		chat.DELETE("/history", chatHandler.PurgeHistory)
	}

	// 导航、用量、打卡、成就（需要登录）
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		authed.GET("/nav", navHandler.Evaluate)
		authed.GET("/usage", chatHandler.GetUsage)
		authed.GET("/streak", userHandler.GetStreak)
		authed.GET("/achievements", userHandler.ListAchievements)
	}

	// WebSocket 路由
	wsHandler.RegisterRoutes(router)
}
