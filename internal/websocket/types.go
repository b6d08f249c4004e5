package websocket

import (
	"encoding/json"

	"livechat-backend/internal/model"
)

// Event is the client-to-server frame. Payload stays raw until the dispatch
// switch knows which shape to decode.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutEvent is the server-to-client frame.
type OutEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Client-to-server event types.
const (
	EventMessageSend     = "message:send"
	EventMessageRead     = "message:read"
	EventMessageEdit     = "message:edit"
	EventMessageDelete   = "message:delete"
	EventMessageReaction = "message:reaction"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventAgentStatus     = "agent:status:change"
	EventVisitorPageView = "visitor:page:view"
	EventConvAssign      = "conversation:assign"
	EventConvTransfer    = "conversation:transfer"
	EventConvResolve     = "conversation:resolve"
	EventConvClose       = "conversation:close"
)

// Server-to-client event types.
const (
	EventMessageReceive      = "message:receive"
	EventMessageUpdate       = "message:update"
	EventMessagesRead        = "messages:read"
	EventConvAssigned        = "conversation:assigned"
	EventConvTransferred     = "conversation:transferred"
	EventConvResolved        = "conversation:resolved"
	EventConvClosed          = "conversation:closed"
	EventConvMissed          = "conversation:missed"
	EventAgentOnline         = "agent:online"
	EventAgentOffline        = "agent:offline"
	EventVisitorJoined       = "visitor:joined"
	EventVisitorLeft         = "visitor:left"
	EventTriggerMessage      = "trigger:message"
	EventTriggerOpenChat     = "trigger:open_chat"
	EventTriggerNotification = "trigger:notification"
	EventError               = "error"
)

type sendMessagePayload struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	Type           model.MessageType  `json:"type,omitempty"`
	Attachments    []model.Attachment `json:"attachments,omitempty"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type editMessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
}

type deleteMessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type reactionPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
}

type agentStatusPayload struct {
	Status model.AgentStatus `json:"status"`
}

type pageViewPayload struct {
	URL        string            `json:"url"`
	TimeOnPage int               `json:"timeOnPage,omitempty"`
	Location   string            `json:"location,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
}

type assignPayload struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId,omitempty"`
}

type transferPayload struct {
	ConversationID string `json:"conversationId"`
	ToAgentID      string `json:"toAgentId"`
	Reason         string `json:"reason,omitempty"`
}

type typingRelayPayload struct {
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	ID             string `json:"id"`
}

type errorPayload struct {
	Message string `json:"message"`
}
