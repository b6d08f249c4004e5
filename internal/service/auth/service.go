package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"livechat-backend/internal/database"
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/model"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

var createTokenWithRefresh = internaljwt.CreateTokenWithRefresh

// SetTokenIssuer swaps the token issuer, used by tests to avoid redis.
func SetTokenIssuer(issuer func(internaljwt.Identity, internaljwt.Role, int64) (internaljwt.TokenResponse, error)) {
	if issuer == nil {
		createTokenWithRefresh = internaljwt.CreateTokenWithRefresh
		return
	}
	createTokenWithRefresh = issuer
}

func New(db *database.Database) *Service {
	return &Service{
		repo: NewDynamoRepository(db),
		now:  time.Now,
	}
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		now:  now,
	}
}

// Login verifies agent credentials and issues an access/refresh token pair.
// Wrong email and wrong password produce the same error so the endpoint does
// not leak which one it was.
func (s *Service) Login(ctx context.Context, params LoginParams) (LoginResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)

	if email == "" || password == "" {
		return LoginResult{}, newError(ErrorCodeValidation, "email and password are required", nil)
	}

	agent, err := s.repo.GetAgentByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", err)
		}
		return LoginResult{}, newError(ErrorCodeInternal, "failed to look up agent", err)
	}

	if !internaljwt.ValidatePassword(agent.PasswordHash, password) {
		return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	tokens, err := createTokenWithRefresh(internaljwt.Identity{
		ID:    agent.AgentID,
		Email: agent.Email,
	}, internaljwt.RoleAgent, 0)
	if err != nil {
		return LoginResult{}, newError(ErrorCodeInternal, "failed to issue tokens", err)
	}

	return LoginResult{
		Agent:  agent,
		Tokens: tokens,
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(refreshToken string) (internaljwt.TokenResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return internaljwt.TokenResponse{}, newError(ErrorCodeValidation, "refresh token is required", nil)
	}

	accessToken, err := internaljwt.RefreshToken(refreshToken, internaljwt.RoleAgent)
	if err != nil {
		return internaljwt.TokenResponse{}, newError(ErrorCodeUnauthorized, "invalid refresh token", err)
	}

	return internaljwt.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Me resolves the agent behind a bearer token.
func (s *Service) Me(ctx context.Context, accessToken string) (model.AgentItem, error) {
	claims, err := internaljwt.ParseToken(accessToken, internaljwt.RoleAgent)
	if err != nil {
		return model.AgentItem{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	agentID, _ := claims["id"].(string)
	if agentID == "" {
		return model.AgentItem{}, newError(ErrorCodeUnauthorized, "invalid token", nil)
	}

	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to look up agent", err)
	}
	return agent, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
