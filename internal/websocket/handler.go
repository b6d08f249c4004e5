package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"livechat-backend/internal/jwt"
	"livechat-backend/internal/model"
	"livechat-backend/internal/presence"
	"livechat-backend/internal/service/assignment"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/service/trigger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler owns the event surface: it upgrades connections, dispatches client
// events into the services and fans service outcomes back to live sessions.
// It implements chat.Notifier, assignment.Notifier and trigger.ActionEmitter.
type Handler struct {
	registry  *presence.Registry
	chat      *chat.Service
	engine    *assignment.Engine
	triggers  *trigger.Service
	publisher *Publisher
	nodeID    string
}

func NewHandler(registry *presence.Registry, chatSvc *chat.Service, engine *assignment.Engine, triggers *trigger.Service, publisher *Publisher) *Handler {
	return &Handler{
		registry:  registry,
		chat:      chatSvc,
		engine:    engine,
		triggers:  triggers,
		publisher: publisher,
		nodeID:    uuid.NewString(),
	}
}

// Run starts the cross-node relay consumer.
func (h *Handler) Run(ctx context.Context) {
	go h.publisher.Subscribe(ctx, h.handleRelay)
}

// ServeAgent upgrades an agent connection. Identity comes from the access
// token; an invalid token never reaches the registry.
func (h *Handler) ServeAgent(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := jwt.ParseToken(token, jwt.RoleAgent)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	agentID, _ := claims["id"].(string)
	if agentID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(conn, presence.RoleAgent, agentID)
	h.registry.Register(presence.RoleAgent, agentID, client)
	incConnections(string(presence.RoleAgent))

	agent, err := h.engine.SetAgentStatus(r.Context(), agentID, model.AgentStatusOnline)
	if err != nil {
		log.Printf("websocket: agent %s connect status flip: %v", agentID, err)
	}
	h.broadcastAgents(EventAgentOnline, map[string]interface{}{
		"agentId": agentID,
		"name":    agent.Name,
	}, agentID)

	go client.keepAlive()
	go client.writePump()
	go client.readPump(h)
}

// ServeVisitor upgrades a visitor connection keyed by the widget's visitor id.
func (h *Handler) ServeVisitor(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitorId")
	if visitorID == "" {
		http.Error(w, "visitorId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(conn, presence.RoleVisitor, visitorID)
	h.registry.Register(presence.RoleVisitor, visitorID, client)
	incConnections(string(presence.RoleVisitor))

	h.broadcastAgents(EventVisitorJoined, map[string]interface{}{
		"visitorId": visitorID,
	}, "")

	go client.keepAlive()
	go client.writePump()
	go client.readPump(h)
}

// disconnected runs once per connection teardown, after the read pump exits.
func (h *Handler) disconnected(cl *WSClient) {
	h.registry.Unregister(cl.role, cl.id, cl)
	decConnections(string(cl.role))

	switch cl.role {
	case presence.RoleAgent:
		if _, err := h.engine.SetAgentStatus(context.Background(), cl.id, model.AgentStatusOffline); err != nil {
			log.Printf("websocket: agent %s disconnect status flip: %v", cl.id, err)
		}
		h.broadcastAgents(EventAgentOffline, map[string]interface{}{
			"agentId": cl.id,
		}, cl.id)
	case presence.RoleVisitor:
		if err := h.triggers.MarkVisitorOffline(context.Background(), cl.id); err != nil {
			log.Printf("websocket: visitor %s offline flag: %v", cl.id, err)
		}
		h.broadcastAgents(EventVisitorLeft, map[string]interface{}{
			"visitorId": cl.id,
		}, "")
	}
}

func (h *Handler) dispatch(cl *WSClient, event Event) {
	incDispatched()
	h.registry.Touch(cl.role, cl.id)
	ctx := context.Background()

	switch event.Type {
	case EventMessageSend:
		var payload sendMessagePayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.SendMessage(ctx, chat.SendMessageParams{
			ConversationID: payload.ConversationID,
			Sender:         h.sender(cl),
			Content:        payload.Content,
			Type:           payload.Type,
			Attachments:    payload.Attachments,
		})
		h.reportError(cl, err)

	case EventMessageRead:
		var payload conversationPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		h.reportError(cl, h.chat.MarkRead(ctx, payload.ConversationID, senderType(cl.role)))

	case EventMessageEdit:
		var payload editMessagePayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.EditMessage(ctx, payload.ConversationID, payload.MessageID, h.sender(cl), false, payload.Content)
		h.reportError(cl, err)

	case EventMessageDelete:
		var payload deleteMessagePayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.DeleteMessage(ctx, payload.ConversationID, payload.MessageID, h.sender(cl), false)
		h.reportError(cl, err)

	case EventMessageReaction:
		var payload reactionPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.React(ctx, payload.ConversationID, payload.MessageID, h.sender(cl), payload.Emoji)
		h.reportError(cl, err)

	case EventTypingStart, EventTypingStop:
		var payload conversationPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		h.relayTyping(ctx, cl, event.Type, payload.ConversationID)

	case EventAgentStatus:
		if !h.requireRole(cl, presence.RoleAgent) {
			return
		}
		var payload agentStatusPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		agent, err := h.engine.SetAgentStatus(ctx, cl.id, payload.Status)
		if err != nil {
			h.reportError(cl, err)
			return
		}
		broadcastEvent := EventAgentOnline
		if !agent.Status.Assignable() {
			broadcastEvent = EventAgentOffline
		}
		h.broadcastAgents(broadcastEvent, map[string]interface{}{
			"agentId": agent.AgentID,
			"name":    agent.Name,
			"status":  agent.Status,
		}, cl.id)

	case EventVisitorPageView:
		if !h.requireRole(cl, presence.RoleVisitor) {
			return
		}
		var payload pageViewPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.triggers.RecordPageView(ctx, trigger.Signal{
			VisitorID:  cl.id,
			PageURL:    payload.URL,
			TimeOnPage: payload.TimeOnPage,
			Location:   payload.Location,
			Custom:     payload.Custom,
		})
		if err != nil {
			log.Printf("websocket: page view for visitor %s: %v", cl.id, err)
		}

	case EventConvAssign:
		if !h.requireRole(cl, presence.RoleAgent) {
			return
		}
		var payload assignPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		var err error
		if payload.AgentID != "" {
			_, _, err = h.engine.AssignTo(ctx, payload.ConversationID, payload.AgentID)
		} else {
			_, _, err = h.engine.Assign(ctx, payload.ConversationID)
		}
		h.reportError(cl, err)

	case EventConvTransfer:
		if !h.requireRole(cl, presence.RoleAgent) {
			return
		}
		var payload transferPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, _, err := h.engine.Transfer(ctx, payload.ConversationID, cl.id, payload.ToAgentID, payload.Reason)
		h.reportError(cl, err)

	case EventConvResolve:
		if !h.requireRole(cl, presence.RoleAgent) {
			return
		}
		var payload conversationPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.Resolve(ctx, payload.ConversationID)
		h.reportError(cl, err)

	case EventConvClose:
		if !h.requireRole(cl, presence.RoleAgent) {
			return
		}
		var payload conversationPayload
		if !h.decode(cl, event, &payload) {
			return
		}
		_, err := h.chat.Close(ctx, payload.ConversationID)
		h.reportError(cl, err)

	default:
		h.sendError(cl, "unknown event type "+event.Type)
	}
}

func (h *Handler) relayTyping(ctx context.Context, cl *WSClient, eventType, conversationID string) {
	conversation, err := h.chat.GetConversation(ctx, conversationID)
	if err != nil {
		return
	}

	payload := typingRelayPayload{
		ConversationID: conversationID,
		Role:           string(cl.role),
		ID:             cl.id,
	}

	if cl.role == presence.RoleVisitor {
		if conversation.AssignedAgentID != "" {
			h.deliver(presence.RoleAgent, conversation.AssignedAgentID, eventType, payload)
		}
		return
	}
	h.deliver(presence.RoleVisitor, conversation.VisitorID, eventType, payload)
}

// MessageReceived implements chat.Notifier.
func (h *Handler) MessageReceived(conversation model.ConversationItem, message model.MessageItem) {
	payload := map[string]interface{}{
		"message":      message,
		"conversation": conversation,
	}
	h.deliver(presence.RoleVisitor, conversation.VisitorID, EventMessageReceive, payload)
	if conversation.AssignedAgentID != "" {
		h.deliver(presence.RoleAgent, conversation.AssignedAgentID, EventMessageReceive, payload)
		return
	}
	// Unassigned conversations surface on every agent dashboard.
	h.broadcastAgents(EventMessageReceive, payload, "")
}

// MessageUpdated implements chat.Notifier.
func (h *Handler) MessageUpdated(conversation model.ConversationItem, message model.MessageItem) {
	payload := map[string]interface{}{
		"message": message,
	}
	h.deliver(presence.RoleVisitor, conversation.VisitorID, EventMessageUpdate, payload)
	if conversation.AssignedAgentID != "" {
		h.deliver(presence.RoleAgent, conversation.AssignedAgentID, EventMessageUpdate, payload)
	}
}

// MessagesRead implements chat.Notifier: the side that did not read learns
// its messages were seen.
func (h *Handler) MessagesRead(conversation model.ConversationItem, readerRole model.SenderType) {
	payload := map[string]interface{}{
		"conversationId": conversation.ConversationID,
		"readerRole":     readerRole,
	}
	if readerRole == model.SenderAgent {
		h.deliver(presence.RoleVisitor, conversation.VisitorID, EventMessagesRead, payload)
		return
	}
	if conversation.AssignedAgentID != "" {
		h.deliver(presence.RoleAgent, conversation.AssignedAgentID, EventMessagesRead, payload)
	}
}

// ConversationResolved implements chat.Notifier.
func (h *Handler) ConversationResolved(conversation model.ConversationItem) {
	h.notifyConversation(conversation, EventConvResolved)
}

// ConversationClosed implements chat.Notifier.
func (h *Handler) ConversationClosed(conversation model.ConversationItem) {
	h.notifyConversation(conversation, EventConvClosed)
}

// ConversationMissed implements chat.Notifier.
func (h *Handler) ConversationMissed(conversation model.ConversationItem) {
	h.deliver(presence.RoleVisitor, conversation.VisitorID, EventConvMissed, conversation)
	h.broadcastAgents(EventConvMissed, conversation, "")
}

func (h *Handler) notifyConversation(conversation model.ConversationItem, event string) {
	h.deliver(presence.RoleVisitor, conversation.VisitorID, event, conversation)
	if conversation.AssignedAgentID != "" {
		h.deliver(presence.RoleAgent, conversation.AssignedAgentID, event, conversation)
	}
}

// ConversationAssigned implements assignment.Notifier.
func (h *Handler) ConversationAssigned(conversation model.ConversationItem, agent model.AgentItem) {
	payload := map[string]interface{}{
		"conversation": conversation,
		"agent": map[string]string{
			"agentId": agent.AgentID,
			"name":    agent.Name,
		},
	}
	h.deliver(presence.RoleAgent, agent.AgentID, EventConvAssigned, payload)
	h.deliver(presence.RoleVisitor, conversation.VisitorID, EventConvAssigned, payload)
}

// ConversationTransferred implements assignment.Notifier.
func (h *Handler) ConversationTransferred(conversation model.ConversationItem, fromAgentID string, agent model.AgentItem) {
	payload := map[string]interface{}{
		"conversation": conversation,
		"fromAgentId":  fromAgentID,
		"agent": map[string]string{
			"agentId": agent.AgentID,
			"name":    agent.Name,
		},
	}
	h.deliver(presence.RoleAgent, fromAgentID, EventConvTransferred, payload)
	h.deliver(presence.RoleAgent, agent.AgentID, EventConvTransferred, payload)
	h.deliver(presence.RoleVisitor, conversation.VisitorID, EventConvTransferred, payload)
}

// SendMessage implements trigger.ActionEmitter.
func (h *Handler) SendMessage(visitorID, content string) error {
	h.deliver(presence.RoleVisitor, visitorID, EventTriggerMessage, map[string]string{
		"message": content,
	})
	return nil
}

// OpenChat implements trigger.ActionEmitter.
func (h *Handler) OpenChat(visitorID string) error {
	h.deliver(presence.RoleVisitor, visitorID, EventTriggerOpenChat, nil)
	return nil
}

// ShowNotification implements trigger.ActionEmitter.
func (h *Handler) ShowNotification(visitorID, content string) error {
	h.deliver(presence.RoleVisitor, visitorID, EventTriggerNotification, map[string]string{
		"message": content,
	})
	return nil
}

// AssignToAgent implements trigger.ActionEmitter. Assignment needs a
// conversation, which a page view does not have yet; the widget opens one
// first, so this only records the intent.
func (h *Handler) AssignToAgent(visitorID, agentID string) error {
	log.Printf("trigger requested assignment of visitor %s to agent %s", visitorID, agentID)
	return nil
}

// deliver sends to a local session when one exists, otherwise relays to the
// other nodes.
func (h *Handler) deliver(role presence.Role, id, event string, payload interface{}) {
	if _, ok := h.registry.Lookup(role, id); ok {
		h.registry.Send(role, id, event, payload)
		return
	}
	h.relay(relayEnvelope{Role: role, ID: id, Event: event}, payload)
}

func (h *Handler) broadcastAgents(event string, payload interface{}, excludeID string) {
	h.registry.BroadcastAgents(event, payload, excludeID)
	h.relay(relayEnvelope{Role: presence.RoleAgent, Broadcast: true, Exclude: excludeID, Event: event}, payload)
}

func (h *Handler) relay(envelope relayEnvelope, payload interface{}) {
	if h.publisher == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("websocket relay: marshal %s payload: %v", envelope.Event, err)
		return
	}
	envelope.Origin = h.nodeID
	envelope.Payload = raw
	if err := h.publisher.Publish(envelope); err != nil {
		log.Printf("websocket relay: %v", err)
	}
}

func (h *Handler) handleRelay(envelope relayEnvelope) {
	if envelope.Origin == h.nodeID {
		return
	}
	if envelope.Broadcast {
		h.registry.BroadcastAgents(envelope.Event, envelope.Payload, envelope.Exclude)
		return
	}
	if _, ok := h.registry.Lookup(envelope.Role, envelope.ID); ok {
		h.registry.Send(envelope.Role, envelope.ID, envelope.Event, envelope.Payload)
	}
}

func (h *Handler) sender(cl *WSClient) model.Sender {
	return model.Sender{
		Type: senderType(cl.role),
		ID:   cl.id,
	}
}

func senderType(role presence.Role) model.SenderType {
	if role == presence.RoleAgent {
		return model.SenderAgent
	}
	return model.SenderVisitor
}

func (h *Handler) decode(cl *WSClient, event Event, out interface{}) bool {
	if err := json.Unmarshal(event.Payload, out); err != nil {
		h.sendError(cl, "malformed payload for "+event.Type)
		return false
	}
	return true
}

func (h *Handler) requireRole(cl *WSClient, role presence.Role) bool {
	if cl.role != role {
		h.sendError(cl, "event not allowed for role "+string(cl.role))
		return false
	}
	return true
}

func (h *Handler) reportError(cl *WSClient, err error) {
	if err == nil {
		return
	}
	h.sendError(cl, err.Error())
}

func (h *Handler) sendError(cl *WSClient, message string) {
	if err := cl.Send(EventError, errorPayload{Message: message}); err != nil {
		log.Printf("websocket: error feedback to %s:%s: %v", cl.role, cl.id, err)
	}
}
