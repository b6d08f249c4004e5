package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"livechat-backend/internal/dto"
	webhooksvc "livechat-backend/internal/service/webhook"
)

// WebhookPaths carries the admin mount points.
type WebhookPaths struct {
	WebhooksPath  string
	WebhookPrefix string
}

type WebhookEndpoints struct {
	service *webhooksvc.Service
	paths   WebhookPaths
}

func NewWebhookEndpoints(service *webhooksvc.Service, paths WebhookPaths) *WebhookEndpoints {
	return &WebhookEndpoints{service: service, paths: paths}
}

func (h *WebhookEndpoints) Webhooks(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleList,
		http.MethodPost: h.handleCreate,
	})
}

// WebhookSubtree serves /webhooks/{id} and /webhooks/{id}/test.
func (h *WebhookEndpoints) WebhookSubtree(w http.ResponseWriter, r *http.Request) error {
	webhookID, action := splitSubtree(r.URL.Path, h.paths.WebhookPrefix)
	if webhookID == "" {
		return notFoundRoute(r)
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		return h.handleDelete(w, r, webhookID)
	case action == "test" && r.Method == http.MethodPost:
		return h.handleTest(w, r, webhookID)
	}
	return notFoundRoute(r)
}

func (h *WebhookEndpoints) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode webhook request: %w", err))
	}

	webhook, err := h.service.Create(r.Context(), webhooksvc.CreateWebhookParams{
		Name:    req.Name,
		URL:     req.URL,
		Events:  req.Events,
		Secret:  req.Secret,
		Headers: req.Headers,
		Retry:   req.Retry,
	})
	if err != nil {
		return badRequest(err.Error(), err)
	}

	return WriteJSON(w, http.StatusCreated, webhook)
}

func (h *WebhookEndpoints) handleList(w http.ResponseWriter, r *http.Request) error {
	webhooks, err := h.service.List(r.Context())
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("list webhooks: %w", err),
		}
	}

	return WriteJSON(w, http.StatusOK, dto.WebhookListResponse{Webhooks: webhooks})
}

func (h *WebhookEndpoints) handleDelete(w http.ResponseWriter, r *http.Request, webhookID string) error {
	if err := h.service.Delete(r.Context(), webhookID); err != nil {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Webhook not found.",
			ErrorLog:   fmt.Errorf("delete webhook %s: %w", webhookID, err),
		}
	}
	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Webhook deleted."})
}

func (h *WebhookEndpoints) handleTest(w http.ResponseWriter, r *http.Request, webhookID string) error {
	if err := h.service.Test(r.Context(), webhookID); err != nil {
		return &HTTPError{
			StatusCode: http.StatusNotFound,
			Message:    "Webhook not found.",
			ErrorLog:   fmt.Errorf("test webhook %s: %w", webhookID, err),
		}
	}
	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Test delivery queued."})
}
