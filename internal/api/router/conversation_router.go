package router

import (
	"net/http"
	"strings"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/endpoints"
	"livechat-backend/internal/api/middleware"
	assignmentsvc "livechat-backend/internal/service/assignment"
	chatsvc "livechat-backend/internal/service/chat"
)

// ConversationPublicRoutes mounts the widget-facing conversation routes.
func ConversationPublicRoutes(prefix string, chat *chatsvc.Service, engine *assignmentsvc.Engine) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		paths := endpoints.ConversationPaths{
			PublicConversationsPath:  strings.TrimRight(prefix, "/") + "/conversations",
			PublicConversationPrefix: strings.TrimRight(prefix, "/") + "/conversations/",
		}
		convEndpoints := endpoints.NewConversationEndpoints(chat, engine, paths)

		mux.HandleFunc(paths.PublicConversationsPath, s.MakeHTTPHandleFunc(convEndpoints.PublicConversations))
		mux.HandleFunc(paths.PublicConversationPrefix, s.MakeHTTPHandleFunc(convEndpoints.PublicConversationSubtree))
	}
}

// ConversationAgentRoutes mounts the dashboard routes behind agent JWT.
func ConversationAgentRoutes(prefix string, chat *chatsvc.Service, engine *assignmentsvc.Engine) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		paths := endpoints.ConversationPaths{
			AgentConversationsPath:  strings.TrimRight(prefix, "/") + "/conversations",
			AgentConversationPrefix: strings.TrimRight(prefix, "/") + "/conversations/",
		}
		convEndpoints := endpoints.NewConversationEndpoints(chat, engine, paths)

		mux.HandleFunc(paths.AgentConversationsPath, s.MakeHTTPHandleFunc(convEndpoints.Conversations, middleware.ValidateAgentJWT))
		mux.HandleFunc(paths.AgentConversationPrefix, s.MakeHTTPHandleFunc(convEndpoints.ConversationSubtree, middleware.ValidateAgentJWT))
	}
}
