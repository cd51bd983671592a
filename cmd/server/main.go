package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"ronda-svr/internal/audit"
	"ronda-svr/internal/broadcast"
	"ronda-svr/internal/catalog"
	"ronda-svr/internal/config"
	"ronda-svr/internal/events"
	"ronda-svr/internal/httpapi"
	"ronda-svr/internal/observability"
	"ronda-svr/internal/patrol"
	"ronda-svr/internal/server"
	"ronda-svr/internal/store"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger()
	logger.Info("starting ronda-svr", "tcp_port", cfg.TCPPort, "http_port", cfg.HTTPPort)

	ctx := context.Background()

	db, err := store.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("postgres init failed", "error", err)
		return
	}
	defer db.Close()

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("redis init failed", "error", err)
		return
	}
	redisStore := store.NewRedisStore(rdb, logger, cfg.LivePositionTTL, cfg.CatalogCacheTTL)

	amqpConn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("rabbitmq init failed", "error", err)
		return
	}
	defer amqpConn.Close()

	eventPub, err := events.NewPublisher(amqpConn)
	if err != nil {
		logger.Error("event publisher init failed", "error", err)
		return
	}

	mqttClient, err := broadcast.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		logger.Error("mqtt init failed", "error", err)
		return
	}
	defer mqttClient.Disconnect(250)

	broadcaster := broadcast.New(cfg.Broadcast, logger, redisStore)
	transport := broadcast.NewMQTTTransport(mqttClient)

	checkpointCatalog := catalog.NewCachedCatalog(
		catalog.NewPostgresCatalog(db), redisStore, logger)
	sink := store.NewPostgresSink(db)
	trail := audit.NewTrail(cfg.AuditDir, logger)

	engine := patrol.NewEngine(cfg, logger, checkpointCatalog, sink, eventPub,
		broadcaster, trail, transport)

	go observability.StartMetricsServer(cfg.MetricsPort)

	tcpServer := server.New(engine, logger)
	go func() {
		if err := tcpServer.Start(":" + cfg.TCPPort); err != nil {
			logger.Error("TCP server failed", "error", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	health := httpapi.NewHealthChecker(db, rdb, amqpConn, mqttClient)
	health.Register(router)

	api := httpapi.NewHandler(engine, redisStore)
	api.Register(router.Group("/api"))

	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		logger.Error("HTTP server failed", "error", err)
	}
}
