package endpoints

import (
	"net/http"
	"strings"

	internaljwt "livechat-backend/internal/jwt"
)

func ExtractTokenFromHeaders(r *http.Request) string {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return ""
	}
	return strings.TrimPrefix(tokenString, "Bearer ")
}

// agentIDFromRequest resolves the calling agent from the bearer token. The
// auth middleware has already validated it, so failures here mean the route
// was registered without that middleware.
func agentIDFromRequest(r *http.Request) (string, error) {
	claims, err := internaljwt.ParseToken(ExtractTokenFromHeaders(r), internaljwt.RoleAgent)
	if err != nil {
		return "", err
	}
	agentID, _ := claims["id"].(string)
	return agentID, nil
}
