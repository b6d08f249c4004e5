package main

import (
	"log"
	"time"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/router"
	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	"livechat-backend/internal/jwt"
	"livechat-backend/internal/queue"
	"livechat-backend/internal/service/assignment"
	"livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/service/webhook"

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

	authService := auth.New(db)

	server := api.NewAPIServer(
		env.GetOrDefault(env.APIListenAddr, ":81"),
		queueManager,
		db,
		nil,
		router.UtilsRoutes("/api/v1"),
		router.AuthRoutes("/api/v1", authService),
		router.ConversationPublicRoutes("/api/v1/public", chatService, engine),
		router.ConversationAgentRoutes("/api/v1", chatService, engine),
		router.WebhookRoutes("/api/v1", webhooks),
	)

	server.Run()
}
