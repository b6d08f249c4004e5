package router

import (
	"net/http"
	"strings"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
	webhooksvc "livechat-backend/internal/service/webhook"
)

// WebhookRoutes mounts the webhook admin surface behind agent JWT.
func WebhookRoutes(prefix string, service *webhooksvc.Service) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		paths := endpoints.WebhookPaths{
			WebhooksPath:  strings.TrimRight(prefix, "/") + "/webhooks",
			WebhookPrefix: strings.TrimRight(prefix, "/") + "/webhooks/",
		}
		webhookEndpoints := endpoints.NewWebhookEndpoints(service, paths)

		mux.HandleFunc(paths.WebhooksPath, s.MakeHTTPHandleFunc(webhookEndpoints.Webhooks, middleware.ValidateAgentJWT))
		mux.HandleFunc(paths.WebhookPrefix, s.MakeHTTPHandleFunc(webhookEndpoints.WebhookSubtree, middleware.ValidateAgentJWT))
	}
}
