package jwt

import (
	"time"

	"livechat-backend/internal/env"

	"github.com/go-redis/redis/v8"
)

var (
	agentSecret string
	RedisClient *redis.Client
)

const RefreshTokenTTL = 24 * 30 * time.Hour

const (
	RoleAgent Role = iota
)

// Init reads secrets and connects the refresh-token store. Call it once from
// main after the environment has been loaded and checked.
func Init() {
	agentSecret = env.Get(env.AgentSecretKey)

	RedisClient = redis.NewClient(&redis.Options{
		Addr:     env.Get(env.AuthRedisURL),
		Password: env.Get(env.AuthRedisPass),
		DB:       0,
	})
}

func roleSecret(role Role) (string, bool) {
	switch role {
	case RoleAgent:
		return agentSecret, true
	}
	return "", false
}
