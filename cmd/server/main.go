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

	"github.com/gin-gonic/gin"

	"support-desk-go/internal/config"
	"support-desk-go/internal/handler"
	"support-desk-go/internal/middleware"
	"support-desk-go/internal/pipeline"
	"support-desk-go/internal/repository"
	"support-desk-go/internal/service"
	"support-desk-go/internal/session"
	"support-desk-go/pkg/assistant"
	"support-desk-go/pkg/database"
	"support-desk-go/pkg/es"
	"support-desk-go/pkg/kafka"
	"support-desk-go/pkg/log"
	"support-desk-go/pkg/storage"
	"support-desk-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、检索与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository 与会话存储
	ticketRepo := repository.NewTicketRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	sessionStore := session.NewRedisStore(database.RDB, time.Duration(cfg.Chat.SessionTTLHours)*time.Hour)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.Identity.Secret, cfg.Identity.Issuer)
	assistantClient := assistant.NewClient(cfg.Assistant)
	reconciler := session.NewReconciler(sessionStore)
	chatService := service.NewChatService(assistantClient, reconciler, cfg.Chat.HistoryPageSize, cfg.Chat.ScrollThresholdPx)
	ticketService := service.NewTicketService(ticketRepo, cfg.Elasticsearch)
	documentService := service.NewDocumentService(documentRepo, cfg.MinIO, cfg.Elasticsearch)

	// 6. 初始化文档事件处理管道 (Processor)
	processor := pipeline.NewProcessor(cfg.Elasticsearch)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	updatesHandler := handler.NewUpdatesHandler(reconciler)
	ticketHandler := handler.NewTicketHandler(ticketService)
	documentHandler := handler.NewDocumentHandler(documentService)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		// Chat 路由组：会话网关
		chat := apiV1.Group("/chat")
		{
			chat.POST("/send", chatHandler.Send)
			chat.GET("/history", chatHandler.History)
			chat.GET("/ids", chatHandler.ListChatIDs)
			chat.POST("/delete", chatHandler.DeleteChat)
			chat.GET("/updates", updatesHandler.Handle)
		}

		// Ticket 路由组
		tickets := apiV1.Group("/tickets")
		{
			tickets.POST("", ticketHandler.Create)
			tickets.GET("", ticketHandler.List)
			tickets.GET("/search", ticketHandler.Search)
			tickets.GET("/:id", ticketHandler.Get)
			tickets.PUT("/:id", ticketHandler.Update)
			tickets.DELETE("/:id", ticketHandler.Delete)
			tickets.POST("/:id/comments", ticketHandler.AddComment)
		}

		// 自定义字段：读全员可见，写仅组织管理员
		fields := apiV1.Group("/ticket-fields")
		{
			fields.GET("", ticketHandler.ListCustomFields)
			admin := fields.Group("")
			admin.Use(middleware.RequireRole("org:admin"))
			{
				admin.POST("", ticketHandler.CreateCustomField)
				admin.DELETE("/:id", ticketHandler.DeleteCustomField)
			}
		}

		// Document 路由组
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/search", documentHandler.Search)
			documents.GET("/:id/download", documentHandler.DownloadURL)
			documents.DELETE("/:id", documentHandler.Delete)
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

	log.Info("服务已优雅关闭")
}
