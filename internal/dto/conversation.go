package dto

import "livechat-backend/internal/model"

type CreateConversationRequest struct {
	VisitorID    string                     `json:"visitorId"`
	VisitorName  string                     `json:"visitorName,omitempty"`
	DepartmentID string                     `json:"departmentId,omitempty"`
	Priority     model.ConversationPriority `json:"priority,omitempty"`
	Message      string                     `json:"message,omitempty"`
	PageURL      string                     `json:"pageUrl,omitempty"`
}

type PostMessageRequest struct {
	Content     string             `json:"content"`
	Type        model.MessageType  `json:"type,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

type AssignRequest struct {
	AgentID string `json:"agentId,omitempty"`
}

type TransferRequest struct {
	ToAgentID string `json:"toAgentId"`
	Reason    string `json:"reason,omitempty"`
}

type RatingRequest struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

type ConversationListResponse struct {
	Conversations []model.ConversationItem `json:"conversations"`
}

type MessageListResponse struct {
	Messages []model.MessageItem `json:"messages"`
}
