package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"livechat-backend/internal/api"
	"livechat-backend/internal/dto"
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/model"
	"livechat-backend/internal/queue"
	authsvc "livechat-backend/internal/service/auth"
)

type testAuthRepository struct {
	agents map[string]model.AgentItem
}

func (m *testAuthRepository) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	agent, ok := m.agents[agentID]
	if !ok {
		return model.AgentItem{}, authsvc.ErrNotFound
	}
	return agent, nil
}

func (m *testAuthRepository) GetAgentByEmail(ctx context.Context, email string) (model.AgentItem, error) {
	for _, agent := range m.agents {
		if agent.Email == email {
			return agent, nil
		}
	}
	return model.AgentItem{}, authsvc.ErrNotFound
}

func newAuthMux(t *testing.T, repo *testAuthRepository) *http.ServeMux {
	t.Helper()

	authsvc.SetTokenIssuer(func(identity internaljwt.Identity, role internaljwt.Role, validUntil int64) (internaljwt.TokenResponse, error) {
		return internaljwt.TokenResponse{AccessToken: "access-" + identity.ID, RefreshToken: "refresh"}, nil
	})
	t.Cleanup(func() { authsvc.SetTokenIssuer(nil) })

	queueManager := queue.NewRequestQueueManager(10, 1)
	t.Cleanup(queueManager.Shutdown)

	testServerSeq++
	server := api.NewAPIServer(fmt.Sprintf(":%d", testServerSeq), queueManager, nil, nil)

	authEndpoints := NewAuthEndpoints(authsvc.NewWithRepository(repo, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", server.MakeHTTPHandleFunc(authEndpoints.Login))
	return mux
}

func TestLoginEndpoint(t *testing.T) {
	hash, err := internaljwt.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &testAuthRepository{agents: map[string]model.AgentItem{
		"agent-1": {AgentID: "agent-1", Email: "alice@example.com", Name: "Alice", PasswordHash: hash},
	}}
	mux := newAuthMux(t, repo)

	body, _ := json.Marshal(dto.LoginRequest{Email: "alice@example.com", Password: "s3cret"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.AuthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken != "access-agent-1" || resp.Agent.AgentID != "agent-1" {
		t.Fatalf("unexpected auth response: %+v", resp)
	}
}

func TestLoginEndpointRejectsBadCredentials(t *testing.T) {
	hash, err := internaljwt.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo := &testAuthRepository{agents: map[string]model.AgentItem{
		"agent-1": {AgentID: "agent-1", Email: "alice@example.com", PasswordHash: hash},
	}}
	mux := newAuthMux(t, repo)

	body, _ := json.Marshal(dto.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}
