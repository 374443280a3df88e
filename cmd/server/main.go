// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digicon-go/internal/config"
	"digicon-go/internal/handler"
	"digicon-go/internal/middleware"
	"digicon-go/internal/pipeline"
	"digicon-go/internal/repository"
	"digicon-go/internal/service"
	"digicon-go/pkg/database"
	"digicon-go/pkg/kafka"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"
	"digicon-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store := storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	batchRepository := repository.NewBatchRepository(database.DB)
	mediaRepository := repository.NewMediaRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	policy := service.NewAccessPolicy()
	userService := service.NewUserService(userRepository, jwtManager, store)
	batchService := service.NewBatchService(batchRepository, mediaRepository, policy)
	uploadService := service.NewUploadService(batchRepository, mediaRepository, store, policy, kafka.Producer(), cfg.Ingest)
	mediaService := service.NewMediaService(mediaRepository, store, policy)
	reportService := service.NewReportService(store, cfg.Report)

	// 6. 初始化批次后处理管道 (Processor)
	processor := pipeline.NewProcessor(mediaRepository, store, cfg.Report)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	authHandler := handler.NewAuthHandler(userService)
	userHandler := handler.NewUserHandler(userService)
	uploadHandler := handler.NewUploadHandler(uploadService)
	mediaHandler := handler.NewMediaHandler(mediaService)
	batchHandler := handler.NewBatchHandler(batchService, reportService, policy)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			// 无需认证的路由 (公开访问)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh-token", authHandler.RefreshToken)

			authed := auth.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.POST("/logout", authHandler.Logout)
			}
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.Me)
				// 资料更新同时接受 PUT 和 POST，兼容旧客户端
				authed.PUT("/profile/update", userHandler.UpdateProfile)
				authed.POST("/profile/update", userHandler.UpdateProfile)
				authed.POST("/password/change", userHandler.ChangePassword)
				authed.POST("/:id/reset-password", userHandler.ResetPassword)
			}

			// 管理员路由，需要同时通过认证和管理员授权两个中间件
			admin := users.Group("/")
			admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
			{
				admin.GET("/list", userHandler.ListUsers)
			}
		}

		// Upload 路由组，需要认证
		upload := apiV1.Group("/")
		upload.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			upload.POST("/upload", uploadHandler.Upload)
			upload.POST("/batch-upload", uploadHandler.BatchUpload)
		}

		// Media 批次路由组，需要认证
		media := apiV1.Group("/media")
		media.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			media.GET("", mediaHandler.ListMine)
			media.DELETE("/:id", mediaHandler.Delete)
			media.GET("/batches", batchHandler.ListMine)
			media.POST("/add-to-batch", uploadHandler.AddToBatch)
		}

		batches := apiV1.Group("/batches")
		batches.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			batches.POST("/:id/images", uploadHandler.AddImagesToBatch)
			batches.GET("/:id/export-pdf", batchHandler.ExportPDF)
			batches.DELETE("/:id", batchHandler.Delete)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束，
	// 这里不需要手动关闭。
	log.Info("服务已优雅关闭")
}
