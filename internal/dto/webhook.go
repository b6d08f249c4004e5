package dto

import "livechat-backend/internal/model"

type CreateWebhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Retry   model.RetryPolicy `json:"retry,omitempty"`
}

type WebhookListResponse struct {
	Webhooks []model.WebhookItem `json:"webhooks"`
}
