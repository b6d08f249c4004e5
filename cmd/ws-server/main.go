package main

import (
	"context"
	"log"
	"time"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/router"
	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	"livechat-backend/internal/jwt"
	"livechat-backend/internal/presence"
	"livechat-backend/internal/queue"
	"livechat-backend/internal/service/assignment"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/service/trigger"
	"livechat-backend/internal/service/webhook"
	"livechat-backend/internal/websocket"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	env.Check()
	jwt.Init()

	queueManager := queue.NewRequestQueueManager(100, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	webhooks := webhook.New(
		db,
		queueManager,
		time.Duration(env.GetIntOrDefault(env.WebhookTimeoutSeconds, 10))*time.Second,
		time.Duration(env.GetIntOrDefault(env.WebhookBaseDelaySecs, 1))*time.Second,
	)

	chatService := chat.New(db)
	chatService.SetEventSink(webhooks)

	engine := assignment.New(db, env.GetOrDefault(env.DefaultAssignmentMode, assignment.MethodRoundRobin))
	engine.SetEventSink(webhooks)

	triggers := trigger.New(db)

	registry := presence.NewRegistry()
	publisher := websocket.NewPublisher(redis.NewClient(&redis.Options{
		Addr:     env.Get(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	}))
	handler := websocket.NewHandler(registry, chatService, engine, triggers, publisher)

	chatService.SetNotifier(handler)
	engine.SetNotifier(handler)
	triggers.SetEmitter(handler)

	ctx := context.Background()
	handler.Run(ctx)

	startPendingSweeper(ctx, chatService)

	server := api.NewAPIServer(
		env.GetOrDefault(env.WSListenAddr, ":83"),
		queueManager,
		db,
		handler,
		router.UtilsRoutes("/api/ws/v1"),
		router.WebsocketRoutes("/api/ws/v1"),
	)

	server.Run()
}

// startPendingSweeper times out conversations no agent picked up. A zero
// timeout disables the sweep.
func startPendingSweeper(ctx context.Context, chatService *chat.Service) {
	minutes := env.GetIntOrDefault(env.PendingTimeoutMinutes, 0)
	if minutes <= 0 {
		return
	}
	timeout := time.Duration(minutes) * time.Minute

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := chatService.ExpirePending(ctx, timeout)
				if err != nil {
					log.Printf("pending sweep: %v", err)
					continue
				}
				if expired > 0 {
					log.Printf("pending sweep: %d conversations marked missed", expired)
				}
			}
		}
	}()
}
