package router

import (
	"net/http"

	"livechat-backend/internal/api"
)

// WebsocketRoutes registers the upgrade endpoints directly on the mux. The
// connections are long lived, so they bypass the request queue.
func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		mux.HandleFunc(prefix+"/ws/agent", s.Handler().ServeAgent)
		mux.HandleFunc(prefix+"/ws/visitor", s.Handler().ServeVisitor)
	}
}
