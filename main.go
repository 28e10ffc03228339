package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/delivery"
	"dm-service/internal/handlers"
	"dm-service/internal/identity"
	"dm-service/internal/logging"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/session"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

const serviceName = "dm-service"

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Server.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if cfg.Session.Secret == "" {
		log.Fatal("SESSION_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.Server.Environment, cfg.OTLP.Endpoint)
	if err != nil {
		log.Fatal("tracing init failed", zap.Error(err))
	}

	database, err := db.Connect(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer database.Close()

	redisClient := session.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	sessionStore := session.NewStore(redisClient)
	authenticator := session.NewAuthenticator(cfg.Session.Secret, sessionStore, cfg.Session.Timeout)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.dm", serviceName, cfg.Server.Environment, log)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database, chatRepo)
	users := identity.NewPostgresProvider(database)

	hub := ws.NewHub()
	coordinator := delivery.NewCoordinator(chatRepo, messageRepo, users, hub, log)
	gateway := ws.NewGateway(hub, chatRepo, coordinator, authenticator, cfg.Session.CookieName, log)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, users, coordinator, audit, log)

	if cfg.Server.Environment == logging.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authRequired := middleware.SessionAuth(authenticator, cfg.Session.CookieName)

	router.GET("/chats", authRequired, chatHandler.ListChats)
	router.POST("/chats", authRequired, chatHandler.StartChat)
	router.DELETE("/chats/:chat_id", authRequired, chatHandler.DeleteChat)
	router.GET("/chats/:chat_id/messages", authRequired, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authRequired, chatHandler.PostChatMessage)
	router.DELETE("/chats/:chat_id/messages/:message_id", authRequired, chatHandler.DeleteMessage)
	router.GET("/messages/unread-count", authRequired, chatHandler.UnreadCount)

	router.GET("/ws", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", zap.Error(err))
	}
}
