package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/driftchat/delivery/internal/buffer"
	"github.com/driftchat/delivery/internal/cache"
	"github.com/driftchat/delivery/internal/config"
	"github.com/driftchat/delivery/internal/domain"
	"github.com/driftchat/delivery/internal/handler"
	"github.com/driftchat/delivery/internal/hub"
	"github.com/driftchat/delivery/internal/offline"
	"github.com/driftchat/delivery/internal/presence"
	"github.com/driftchat/delivery/internal/registry"
	"github.com/driftchat/delivery/internal/repository"
	"github.com/driftchat/delivery/internal/service"
	"github.com/driftchat/delivery/internal/subscriber"
	"github.com/driftchat/delivery/pkg/database"
	"github.com/driftchat/delivery/pkg/jwt"
	"github.com/driftchat/delivery/pkg/log"
	"github.com/driftchat/delivery/pkg/pubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()

	// Durable store
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := database.AutoMigrate(db, &domain.Chat{}, &domain.Message{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	chatRepo := repository.NewGormChatRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Shared redis: chat-list cache and offline queue
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	pingCancel()

	chatListCache := cache.NewRedisChatListCacheFromClient(redisClient)
	offlineQueue := offline.NewRedisQueueFromClient(redisClient, cfg.Offline.MaxLen, cfg.Offline.Retention)

	// Write-back buffer for message persistence
	batch := buffer.New(buffer.Config{
		Size:     cfg.Buffer.Size,
		Interval: cfg.Buffer.Interval,
	}, messageRepo)

	// Shared bus
	bus, err := pubsub.New(cfg.Bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect bus")
	}

	nodeID := uuid.New().String()
	logger.Info().Str("node_id", nodeID).Msg("starting delivery node")

	reg := registry.NewMemoryRegistry()
	wsHub := hub.NewHub(reg)
	tracker := presence.NewTracker(nodeID)
	broadcaster := presence.NewBroadcaster(bus, nodeID)

	svc := service.New(service.Deps{
		Chats:    chatRepo,
		Messages: messageRepo,
		Cache:    chatListCache,
		Offline:  offlineQueue,
		Buffer:   batch,
		Bus:      bus,
		Registry: reg,
		Remote:   tracker,
		Presence: broadcaster,
	}, cfg.Delivery, cfg.Cache.TTL)

	wsHub.SetHandlers(svc.Connected, svc.Disconnected)
	go wsHub.Run()

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	sub := subscriber.New(bus, wsHub, tracker)
	go func() {
		if err := sub.Run(subCtx); err != nil && subCtx.Err() == nil {
			logger.Error().Err(err).Msg("bus subscriber stopped")
		}
	}()

	verifier := jwt.NewVerifier(cfg.Auth.JWTSecret)
	wsHandler := handler.NewWSHandler(wsHub, svc, verifier, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.HandleFunc("/health", wsHandler.HandleHealth)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("delivery service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down delivery service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	subCancel()

	// Flush any buffered messages before the process exits; losing them
	// here would break the write-back guarantee.
	batch.Close(shutdownCtx)

	if err := bus.Close(); err != nil {
		logger.Warn().Err(err).Msg("bus close failed")
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("redis close failed")
	}

	logger.Info().Msg("delivery service stopped")
}
