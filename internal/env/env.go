package env

import (
	"os"
	"strconv"
)

const (
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	AgentSecretKey   = "AGENT_SECRET"
	AuthRedisURL     = "AUTH_REDIS_URL"
	AuthRedisPass    = "AUTH_REDIS_PASS"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	WebUrl           = "WEB_URL"

	// Orchestration knobs.
	PendingTimeoutMinutes = "PENDING_TIMEOUT_MINUTES"
	WebhookTimeoutSeconds = "WEBHOOK_TIMEOUT_SECONDS"
	WebhookMaxRetries     = "WEBHOOK_MAX_RETRIES"
	WebhookBaseDelaySecs  = "WEBHOOK_BASE_DELAY_SECONDS"
	DefaultAssignmentMode = "DEFAULT_ASSIGNMENT_METHOD"
	APIListenAddr         = "API_LISTEN_ADDR"
	WSListenAddr          = "WS_LISTEN_ADDR"
)

// Check verifies the required variables are present. Called by cmd mains
// after godotenv has had a chance to populate the process environment.
func Check() {
	required := []string{
		AWSRegion,
		AWSID,
		AWSSecret,
		AgentSecretKey,
		AuthRedisURL,
		ChatRedisURL,
		WebUrl,
	}
	for _, key := range required {
		if os.Getenv(key) == "" {
			panic("env: required environment variable not set: " + key)
		}
	}
}

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}
