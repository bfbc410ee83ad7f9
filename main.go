package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/db"
	grpcserver "chat-realtime/internal/grpc"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/realtime"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Printf("tracing setup failed, continuing without export: %v", err)
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if verifier.Insecure() {
		log.Printf("JWT_SECRET is empty: join trusts the raw userId, do not run this in production")
	}

	core := realtime.NewCore(realtime.Deps{
		Groups:   repositories.NewGroupRepo(database),
		Messages: repositories.NewMessageRepo(database),
		Users:    repositories.NewUserRepo(database),
		Audit:    audit,
		Verifier: verifier,
	}, realtime.Options{
		DeliveryDelay:       cfg.DeliveryDelay,
		AdminsCanAddMembers: cfg.AdminsCanAddMembers,
	})
	defer core.Shutdown()

	groupHandler := handlers.NewGroupHandler(core.Groups, core.Messages, core.Registry, audit)
	wsHandler := ws.NewHandler(core.Gateway, ws.ClientConfig{
		SendBuffer:     cfg.WSSendBuffer,
		MaxMessageSize: cfg.WSMaxMessageSize,
		RateBurst:      cfg.WSRateBurst,
		RateInterval:   cfg.WSRateInterval,
	})

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_users": core.Registry.OnlineCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(verifier)
	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.GET("/groups/:group_id", authMiddleware, groupHandler.GetGroup)
	router.GET("/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)
	router.DELETE("/messages/:message_id", authMiddleware, groupHandler.DeleteMessage)
	router.GET("/users/:user_id/presence", authMiddleware, groupHandler.GetPresence)
	handlers.RegisterDebugRoutes(router, audit, core, cfg.DebugRoutes)

	grpcSrv := grpcserver.NewServer()
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("failed to listen for grpc: %v", err)
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Printf("grpc server error: %v", err)
		}
	}()
	grpcSrv.SetServing(true)

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("http listening addr=%s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	grpcSrv.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	grpcSrv.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
}
