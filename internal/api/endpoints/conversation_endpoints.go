package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	assignmentsvc "livechat-backend/internal/service/assignment"
	chatsvc "livechat-backend/internal/service/chat"
)

// ConversationPaths carries the mount points so the subtree handlers can
// strip their own prefix regardless of which router registered them.
type ConversationPaths struct {
	PublicConversationsPath  string
	PublicConversationPrefix string
	AgentConversationsPath   string
	AgentConversationPrefix  string
}

type ConversationEndpoints struct {
	chat   *chatsvc.Service
	engine *assignmentsvc.Engine
	paths  ConversationPaths
}

func NewConversationEndpoints(chat *chatsvc.Service, engine *assignmentsvc.Engine, paths ConversationPaths) *ConversationEndpoints {
	return &ConversationEndpoints{
		chat:   chat,
		engine: engine,
		paths:  paths,
	}
}

// PublicConversations serves the widget-facing collection route.
func (h *ConversationEndpoints) PublicConversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleCreate,
	})
}

// PublicConversationSubtree serves widget routes under /conversations/{id}/.
func (h *ConversationEndpoints) PublicConversationSubtree(w http.ResponseWriter, r *http.Request) error {
	conversationID, action := splitSubtree(r.URL.Path, h.paths.PublicConversationPrefix)
	if conversationID == "" {
		return notFoundRoute(r)
	}

	switch {
	case action == "messages" && r.Method == http.MethodGet:
		return h.handleListMessages(w, r, conversationID)
	case action == "messages" && r.Method == http.MethodPost:
		return h.handleVisitorMessage(w, r, conversationID)
	case action == "rating" && r.Method == http.MethodPost:
		return h.handleRating(w, r, conversationID)
	}
	return notFoundRoute(r)
}

// Conversations serves the agent dashboard collection route.
func (h *ConversationEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleList,
	})
}

// ConversationSubtree serves agent routes under /conversations/{id}/.
func (h *ConversationEndpoints) ConversationSubtree(w http.ResponseWriter, r *http.Request) error {
	conversationID, action := splitSubtree(r.URL.Path, h.paths.AgentConversationPrefix)
	if conversationID == "" {
		return notFoundRoute(r)
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		return h.handleGet(w, r, conversationID)
	case action == "messages" && r.Method == http.MethodGet:
		return h.handleListMessages(w, r, conversationID)
	case action == "messages" && r.Method == http.MethodPost:
		return h.handleAgentMessage(w, r, conversationID)
	case action == "read" && r.Method == http.MethodPost:
		return h.handleMarkRead(w, r, conversationID)
	case action == "assign" && r.Method == http.MethodPost:
		return h.handleAssign(w, r, conversationID)
	case action == "transfer" && r.Method == http.MethodPost:
		return h.handleTransfer(w, r, conversationID)
	case action == "resolve" && r.Method == http.MethodPost:
		return h.handleResolve(w, r, conversationID)
	case action == "close" && r.Method == http.MethodPost:
		return h.handleClose(w, r, conversationID)
	}
	return notFoundRoute(r)
}

func (h *ConversationEndpoints) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req dto.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode create conversation request: %w", err))
	}

	result, err := h.chat.CreateConversation(r.Context(), chatsvc.CreateConversationParams{
		VisitorID:    req.VisitorID,
		VisitorName:  req.VisitorName,
		DepartmentID: req.DepartmentID,
		Priority:     req.Priority,
		Message:      req.Message,
		PageURL:      req.PageURL,
	})
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusCreated, result)
}

func (h *ConversationEndpoints) handleList(w http.ResponseWriter, r *http.Request) error {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	conversations, err := h.chat.ListConversations(r.Context(), limit)
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ConversationListResponse{Conversations: conversations})
}

func (h *ConversationEndpoints) handleGet(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conversation, err := h.chat.GetConversation(r.Context(), conversationID)
	if err != nil {
		return chatError(err)
	}
	return WriteJSON(w, http.StatusOK, conversation)
}

func (h *ConversationEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, conversationID string) error {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.chat.ListMessages(r.Context(), conversationID, limit)
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.MessageListResponse{Messages: messages})
}

func (h *ConversationEndpoints) handleAgentMessage(w http.ResponseWriter, r *http.Request, conversationID string) error {
	agentID, err := agentIDFromRequest(r)
	if err != nil {
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized", ErrorLog: err}
	}

	var req dto.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode message request: %w", err))
	}

	message, err := h.chat.SendMessage(r.Context(), chatsvc.SendMessageParams{
		ConversationID: conversationID,
		Sender:         model.Sender{Type: model.SenderAgent, ID: agentID},
		Content:        req.Content,
		Type:           req.Type,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusCreated, message)
}

// handleVisitorMessage is the REST fallback for widgets without a live
// websocket. The sender is the conversation's own visitor.
func (h *ConversationEndpoints) handleVisitorMessage(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conversation, err := h.chat.GetConversation(r.Context(), conversationID)
	if err != nil {
		return chatError(err)
	}

	var req dto.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode message request: %w", err))
	}

	message, err := h.chat.SendMessage(r.Context(), chatsvc.SendMessageParams{
		ConversationID: conversationID,
		Sender:         model.Sender{Type: model.SenderVisitor, ID: conversation.VisitorID},
		Content:        req.Content,
		Type:           req.Type,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusCreated, message)
}

func (h *ConversationEndpoints) handleMarkRead(w http.ResponseWriter, r *http.Request, conversationID string) error {
	if err := h.chat.MarkRead(r.Context(), conversationID, model.SenderAgent); err != nil {
		return chatError(err)
	}
	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "Messages marked as read."})
}

func (h *ConversationEndpoints) handleAssign(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode assign request: %w", err))
	}

	var conversation model.ConversationItem
	var err error
	if req.AgentID != "" {
		conversation, _, err = h.engine.AssignTo(r.Context(), conversationID, req.AgentID)
	} else {
		conversation, _, err = h.engine.Assign(r.Context(), conversationID)
	}
	if err != nil {
		return assignmentError(err)
	}

	return WriteJSON(w, http.StatusOK, conversation)
}

func (h *ConversationEndpoints) handleTransfer(w http.ResponseWriter, r *http.Request, conversationID string) error {
	agentID, err := agentIDFromRequest(r)
	if err != nil {
		return &HTTPError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized", ErrorLog: err}
	}

	var req dto.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode transfer request: %w", err))
	}

	conversation, _, err := h.engine.Transfer(r.Context(), conversationID, agentID, req.ToAgentID, req.Reason)
	if err != nil {
		return assignmentError(err)
	}

	return WriteJSON(w, http.StatusOK, conversation)
}

func (h *ConversationEndpoints) handleResolve(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conversation, err := h.chat.Resolve(r.Context(), conversationID)
	if err != nil {
		return chatError(err)
	}
	return WriteJSON(w, http.StatusOK, conversation)
}

func (h *ConversationEndpoints) handleClose(w http.ResponseWriter, r *http.Request, conversationID string) error {
	conversation, err := h.chat.Close(r.Context(), conversationID)
	if err != nil {
		return chatError(err)
	}
	return WriteJSON(w, http.StatusOK, conversation)
}

func (h *ConversationEndpoints) handleRating(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.RatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Invalid request payload", fmt.Errorf("decode rating request: %w", err))
	}

	conversation, err := h.chat.Rate(r.Context(), conversationID, req.Score, req.Feedback)
	if err != nil {
		return chatError(err)
	}

	return WriteJSON(w, http.StatusOK, conversation)
}

func splitSubtree(urlPath, prefix string) (string, string) {
	rest := strings.TrimPrefix(urlPath, prefix)
	if rest == urlPath {
		return "", ""
	}
	rest = strings.Trim(rest, "/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func notFoundRoute(r *http.Request) error {
	return &HTTPError{
		StatusCode: http.StatusNotFound,
		Message:    "Not found.",
		ErrorLog:   fmt.Errorf("no route for %s %s", r.Method, r.URL.Path),
	}
}

func chatError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*chatsvc.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("chat service: %w", err),
		}
	}

	var errorLog error
	if svcErr.Err != nil {
		errorLog = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		errorLog = svcErr
	}

	switch svcErr.Code {
	case chatsvc.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: errorLog}
	case chatsvc.ErrorCodeUnauthorized:
		return &HTTPError{StatusCode: http.StatusForbidden, Message: svcErr.Message, ErrorLog: errorLog}
	case chatsvc.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: errorLog}
	case chatsvc.ErrorCodeConflict:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: errorLog}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: errorLog}
	}
}

func assignmentError(err error) error {
	if err == nil {
		return nil
	}

	svcErr, ok := err.(*assignmentsvc.Error)
	if !ok {
		return &HTTPError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			ErrorLog:   fmt.Errorf("assignment engine: %w", err),
		}
	}

	var errorLog error
	if svcErr.Err != nil {
		errorLog = fmt.Errorf("%s: %w", svcErr.Message, svcErr.Err)
	} else {
		errorLog = svcErr
	}

	switch svcErr.Code {
	case assignmentsvc.ErrorCodeValidation:
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: svcErr.Message, ErrorLog: errorLog}
	case assignmentsvc.ErrorCodeNotFound:
		return &HTTPError{StatusCode: http.StatusNotFound, Message: svcErr.Message, ErrorLog: errorLog}
	case assignmentsvc.ErrorCodeConflict:
		return &HTTPError{StatusCode: http.StatusConflict, Message: svcErr.Message, ErrorLog: errorLog}
	case assignmentsvc.ErrorCodeAgentUnavailable:
		return &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: svcErr.Message, ErrorLog: errorLog}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: errorLog}
	}
}
