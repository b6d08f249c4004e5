package model

// Webhook event names mirror the public contract; subscriptions filter on them.
const (
	EventConversationNew      = "conversation.new"
	EventConversationAssigned = "conversation.assigned"
	EventConversationResolved = "conversation.resolved"
	EventConversationClosed   = "conversation.closed"
	EventConversationMissed   = "conversation.missed"
	EventMessageNew           = "message.new"
	EventRatingReceived       = "rating.received"
	EventAgentStatusChanged   = "agent.status.changed"
	EventWebhookTest          = "webhook.test"
)

type RetryPolicy struct {
	MaxRetries        int `dynamodbav:"maxRetries" json:"maxRetries"`
	RetryDelaySeconds int `dynamodbav:"retryDelaySeconds" json:"retryDelaySeconds"`
}

type WebhookError struct {
	Message   string `dynamodbav:"message,omitempty" json:"message,omitempty"`
	Timestamp string `dynamodbav:"timestamp,omitempty" json:"timestamp,omitempty"`
}

type WebhookItem struct {
	WebhookID       string            `dynamodbav:"webhookId" json:"webhookId"`
	Name            string            `dynamodbav:"name" json:"name"`
	URL             string            `dynamodbav:"url" json:"url"`
	Events          []string          `dynamodbav:"events" json:"events"`
	IsActive        bool              `dynamodbav:"isActive" json:"isActive"`
	Secret          string            `dynamodbav:"secret,omitempty" json:"-"`
	Headers         map[string]string `dynamodbav:"headers,omitempty" json:"headers,omitempty"`
	Retry           RetryPolicy       `dynamodbav:"retryPolicy" json:"retryPolicy"`
	LastTriggeredAt string            `dynamodbav:"lastTriggeredAt,omitempty" json:"lastTriggeredAt,omitempty"`
	SuccessCount    int               `dynamodbav:"successCount" json:"successCount"`
	FailureCount    int               `dynamodbav:"failureCount" json:"failureCount"`
	LastError       WebhookError      `dynamodbav:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt       string            `dynamodbav:"createdAt" json:"createdAt"`
}

// SubscribesTo reports whether the subscription wants the given event.
func (w WebhookItem) SubscribesTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
