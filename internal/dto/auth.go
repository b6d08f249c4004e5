package dto

import "livechat-backend/internal/model"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	Agent        AgentResponse `json:"agent"`
}

type AgentResponse struct {
	AgentID string            `json:"agentId"`
	Email   string            `json:"email"`
	Name    string            `json:"name"`
	Role    string            `json:"role"`
	Status  model.AgentStatus `json:"status"`
}

func ToAgentResponse(agent model.AgentItem) AgentResponse {
	return AgentResponse{
		AgentID: agent.AgentID,
		Email:   agent.Email,
		Name:    agent.Name,
		Role:    agent.Role,
		Status:  agent.Status,
	}
}
