package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"huru-chat/internal/config"
	"huru-chat/internal/db"
	"huru-chat/internal/email"
	"huru-chat/internal/fanout"
	"huru-chat/internal/handlers"
	"huru-chat/internal/middleware"
	"huru-chat/internal/observability"
	"huru-chat/internal/rabbitmq"
	"huru-chat/internal/repositories"
	"huru-chat/internal/retention"
	"huru-chat/internal/telemetry"
	"huru-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	if cfg.EnableTracing {
		shutdown, err := telemetry.SetupTracing(ctx, "huru-chat", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer shutdown(context.Background())
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()

	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRouteKey, "huru-chat", cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub()
	emailSender := email.NewSender(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFromName, cfg.EmailFromAddr, userRepo)
	notifyChannel := rabbitmq.NewNotifyChannel(publisher, cfg.NotifyRouteKey)

	dispatcher := fanout.NewDispatcher(messageRepo, notificationRepo, hub, notifyChannel, emailSender)

	messageHandler := handlers.NewMessageHandler(messageRepo, groupRepo, userRepo, dispatcher, hub, audit, cfg.EditWindow)
	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, userRepo, dispatcher, audit)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)
	notifyWS := ws.NewNotifyWebSocketHandler(hub, cfg.JWTSecret)

	sweeper, err := retention.NewSweeper(database, messageRepo, cfg.RetentionCron, cfg.RetentionWindow)
	if err != nil {
		log.Fatalf("failed to build retention sweeper: %v", err)
	}
	sweeper.Start(ctx)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(observability.HTTPMetricsMiddleware())
	if cfg.EnableTracing {
		router.Use(otelgin.Middleware("huru-chat"))
	}

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.POST("/messages", authMiddleware, messageHandler.Send)
	router.GET("/messages", authMiddleware, messageHandler.List)
	router.DELETE("/messages", authMiddleware, messageHandler.DeleteAll)
	router.GET("/messages/unread", authMiddleware, messageHandler.ListUnread)
	router.GET("/messages/not-received", authMiddleware, messageHandler.ListNotReceived)
	router.GET("/messages/search", authMiddleware, messageHandler.Search)
	router.GET("/messages/attachments/:kind", authMiddleware, messageHandler.ListByAttachmentKind)
	router.POST("/messages/archive", authMiddleware, messageHandler.ArchiveAll)
	router.POST("/messages/restore", authMiddleware, messageHandler.RestoreArchived)
	router.POST("/messages/:message_id/reply", authMiddleware, messageHandler.Reply)
	router.PATCH("/messages/:message_id", authMiddleware, messageHandler.Edit)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.Delete)
	router.POST("/messages/:message_id/reactions", authMiddleware, messageHandler.React)
	router.POST("/messages/:message_id/received", authMiddleware, messageHandler.MarkReceived)
	router.POST("/messages/:message_id/read", authMiddleware, messageHandler.MarkRead)

	router.POST("/groups", authMiddleware, groupHandler.Create)
	router.GET("/groups", authMiddleware, groupHandler.ListForUser)
	router.GET("/groups/:group_id", authMiddleware, groupHandler.Get)
	router.PATCH("/groups/:group_id", authMiddleware, groupHandler.Update)
	router.DELETE("/groups/:group_id", authMiddleware, groupHandler.Delete)
	router.GET("/groups/:group_id/history", authMiddleware, groupHandler.History)
	router.GET("/groups/:group_id/participants", authMiddleware, groupHandler.Participants)
	router.POST("/groups/:group_id/participants", authMiddleware, groupHandler.AddParticipant)
	router.POST("/groups/:group_id/participants/batch", authMiddleware, groupHandler.AddParticipants)
	router.POST("/groups/:group_id/admins", authMiddleware, groupHandler.PromoteAdmin)
	router.POST("/groups/:group_id/leave", authMiddleware, groupHandler.Leave)
	router.POST("/groups/:group_id/force-leave", authMiddleware, groupHandler.ForceLeave)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.POST("/notifications/:notification_id/read", authMiddleware, notificationHandler.MarkRead)

	router.GET("/ws/notifications", notifyWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Printf("huru-chat listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
