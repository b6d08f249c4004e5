package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/google/uuid"
)

// Notifier pushes conversation events to live connections. The websocket
// handler implements it; a nil notifier is replaced with a no-op so the
// service stays usable from REST-only processes.
type Notifier interface {
	MessageReceived(conversation model.ConversationItem, message model.MessageItem)
	MessageUpdated(conversation model.ConversationItem, message model.MessageItem)
	MessagesRead(conversation model.ConversationItem, readerRole model.SenderType)
	ConversationResolved(conversation model.ConversationItem)
	ConversationClosed(conversation model.ConversationItem)
	ConversationMissed(conversation model.ConversationItem)
}

// EventSink receives lifecycle events for external delivery. The webhook
// service implements it. Calls must never block chat flow; the webhook
// dispatcher returns before any HTTP work happens.
type EventSink interface {
	Trigger(eventType string, payload interface{})
}

type noopNotifier struct{}

func (noopNotifier) MessageReceived(model.ConversationItem, model.MessageItem)  {}
func (noopNotifier) MessageUpdated(model.ConversationItem, model.MessageItem)   {}
func (noopNotifier) MessagesRead(model.ConversationItem, model.SenderType)      {}
func (noopNotifier) ConversationResolved(model.ConversationItem)                {}
func (noopNotifier) ConversationClosed(model.ConversationItem)                  {}
func (noopNotifier) ConversationMissed(model.ConversationItem)                  {}

type noopSink struct{}

func (noopSink) Trigger(string, interface{}) {}

type CreateConversationParams struct {
	VisitorID    string
	VisitorName  string
	DepartmentID string
	Priority     model.ConversationPriority
	Message      string
	PageURL      string
}

type ConversationResult struct {
	Conversation model.ConversationItem
	Message      model.MessageItem
}

type SendMessageParams struct {
	ConversationID string
	Sender         model.Sender
	Content        string
	Type           model.MessageType
	Attachments    []model.Attachment
}

type Service struct {
	repo     Repository
	notifier Notifier
	hooks    EventSink
	locks    *conversationLocks
	now      func() time.Time
}

func New(db *database.Database) *Service {
	return NewWithRepository(NewDynamoRepository(db), nil, nil, nil)
}

func NewWithRepository(repo Repository, notifier Notifier, hooks EventSink, now func() time.Time) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if hooks == nil {
		hooks = noopSink{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		hooks:    hooks,
		locks:    newConversationLocks(),
		now:      now,
	}
}

// SetNotifier wires the live fan-out path once the websocket handler exists.
func (s *Service) SetNotifier(notifier Notifier) {
	if notifier != nil {
		s.notifier = notifier
	}
}

// SetEventSink wires webhook delivery.
func (s *Service) SetEventSink(hooks EventSink) {
	if hooks != nil {
		s.hooks = hooks
	}
}

// CreateConversation opens a new pending conversation for a visitor,
// optionally seeded with their first message.
func (s *Service) CreateConversation(ctx context.Context, params CreateConversationParams) (ConversationResult, error) {
	visitorID := strings.TrimSpace(params.VisitorID)
	if visitorID == "" {
		return ConversationResult{}, newError(ErrorCodeValidation, "visitorId is required", nil)
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	priority := params.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	conversation := model.ConversationItem{
		ConversationID: uuid.NewString(),
		VisitorID:      visitorID,
		VisitorName:    strings.TrimSpace(params.VisitorName),
		DepartmentID:   strings.TrimSpace(params.DepartmentID),
		Status:         model.ConversationStatusPending,
		Priority:       priority,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
		Version:        1,
	}

	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return ConversationResult{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}

	result := ConversationResult{Conversation: conversation}

	if body := strings.TrimSpace(params.Message); body != "" {
		message, err := s.SendMessage(ctx, SendMessageParams{
			ConversationID: conversation.ConversationID,
			Sender: model.Sender{
				Type: model.SenderVisitor,
				ID:   visitorID,
				Name: conversation.VisitorName,
			},
			Content: body,
			Type:    model.MessageTypeText,
		})
		if err != nil {
			return ConversationResult{}, err
		}
		result.Message = message
		if updated, err := s.repo.GetConversation(ctx, conversation.ConversationID); err == nil {
			result.Conversation = updated
		}
	}

	s.hooks.Trigger(model.EventConversationNew, result.Conversation)

	return result, nil
}

// SendMessage validates, persists and fans out one message. Ordering within a
// conversation follows the per-conversation lock: messages are committed in
// the order their senders' handlers arrive here.
func (s *Service) SendMessage(ctx context.Context, params SendMessageParams) (model.MessageItem, error) {
	conversationID := strings.TrimSpace(params.ConversationID)
	content := strings.TrimSpace(params.Content)

	if conversationID == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	if content == "" && len(params.Attachments) == 0 {
		return model.MessageItem{}, newError(ErrorCodeValidation, "message content is required", nil)
	}
	switch params.Sender.Type {
	case model.SenderAgent, model.SenderVisitor, model.SenderSystem:
	default:
		return model.MessageItem{}, newError(ErrorCodeValidation, "invalid sender type", nil)
	}

	messageType := params.Type
	if messageType == "" {
		messageType = model.MessageTypeText
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.MessageItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	if conversation.Status == model.ConversationStatusClosed {
		return model.MessageItem{}, newError(ErrorCodeConflict, "conversation is closed", nil)
	}

	now := s.now().UTC()
	nowStr := now.Format(time.RFC3339)

	messageID := uuid.NewString()
	message := model.MessageItem{
		PK:             model.MessagePK(conversationID, messageID),
		ConversationID: conversationID,
		MessageID:      messageID,
		Sender:         params.Sender,
		Type:           messageType,
		Content:        content,
		Status:         model.MessageStatusSent,
		Attachments:    params.Attachments,
		CreatedAt:      nowStr,
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	conversation.LastMessageAt = nowStr
	conversation.UpdatedAt = nowStr

	switch params.Sender.Type {
	case model.SenderVisitor:
		conversation.Unread.Agent++
	case model.SenderAgent:
		conversation.Unread.Visitor++
		if conversation.Status == model.ConversationStatusPending || conversation.Status == model.ConversationStatusActive {
			if conversation.Status == model.ConversationStatusPending {
				conversation.Status = model.ConversationStatusActive
			}
			// firstResponseAt is set at most once, on the first
			// agent-authored message.
			if conversation.FirstResponseAt == "" {
				conversation.FirstResponseAt = nowStr
				conversation.ResponseTimeMinutes = minutesBetween(conversation.CreatedAt, nowStr)
			}
		}
	}

	if err := s.commitConversation(ctx, conversation, ""); err != nil {
		return model.MessageItem{}, err
	}
	conversation.Version++

	s.notifier.MessageReceived(conversation, message)
	s.hooks.Trigger(model.EventMessageNew, map[string]interface{}{
		"message":      message,
		"conversation": conversation,
	})

	return message, nil
}

// EditMessage overwrites the content of the caller's own message. Elevated
// callers (admin role) may edit any message. Soft: the record survives with
// isEdited set.
func (s *Service) EditMessage(ctx context.Context, conversationID, messageID string, editor model.Sender, elevated bool, content string) (model.MessageItem, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "message content is required", nil)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	message, err := s.loadMessage(ctx, conversationID, messageID)
	if err != nil {
		return model.MessageItem{}, err
	}
	if message.IsDeleted {
		return model.MessageItem{}, newError(ErrorCodeConflict, "message is deleted", nil)
	}
	if !elevated && !sameSender(message.Sender, editor) {
		return model.MessageItem{}, newError(ErrorCodeUnauthorized, "cannot edit another sender's message", nil)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	message.Content = content
	message.IsEdited = true
	message.EditedAt = nowStr

	if err := s.repo.UpdateMessage(ctx, message); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to update message", err)
	}

	s.notifyMessageUpdated(ctx, message)
	return message, nil
}

// DeleteMessage is soft only: the message stays for audit and replay.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID string, caller model.Sender, elevated bool) (model.MessageItem, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	message, err := s.loadMessage(ctx, conversationID, messageID)
	if err != nil {
		return model.MessageItem{}, err
	}
	if !elevated && !sameSender(message.Sender, caller) {
		return model.MessageItem{}, newError(ErrorCodeUnauthorized, "cannot delete another sender's message", nil)
	}
	if message.IsDeleted {
		return message, nil
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	message.IsDeleted = true
	message.DeletedAt = nowStr

	if err := s.repo.UpdateMessage(ctx, message); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to update message", err)
	}

	s.notifyMessageUpdated(ctx, message)
	return message, nil
}

// React toggles a reaction: the same emoji from the same user removes it,
// a different emoji replaces that user's existing reaction.
func (s *Service) React(ctx context.Context, conversationID, messageID string, user model.Sender, emoji string) (model.MessageItem, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return model.MessageItem{}, newError(ErrorCodeValidation, "emoji is required", nil)
	}
	if user.ID == "" {
		return model.MessageItem{}, newError(ErrorCodeUnauthorized, "reaction requires an identified user", nil)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	message, err := s.loadMessage(ctx, conversationID, messageID)
	if err != nil {
		return model.MessageItem{}, err
	}
	if message.IsDeleted {
		return model.MessageItem{}, newError(ErrorCodeConflict, "message is deleted", nil)
	}

	kept := message.Reactions[:0]
	removedSame := false
	for _, reaction := range message.Reactions {
		if reaction.UserType == user.Type && reaction.UserID == user.ID {
			if reaction.Emoji == emoji {
				removedSame = true
			}
			// Either way the user's previous reaction goes: at most one
			// reaction per (message, user).
			continue
		}
		kept = append(kept, reaction)
	}
	message.Reactions = kept

	if !removedSame {
		message.Reactions = append(message.Reactions, model.Reaction{
			Emoji:     emoji,
			UserType:  user.Type,
			UserID:    user.ID,
			CreatedAt: s.now().UTC().Format(time.RFC3339),
		})
	}

	if err := s.repo.UpdateMessage(ctx, message); err != nil {
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to update message", err)
	}

	s.notifyMessageUpdated(ctx, message)
	return message, nil
}

// MarkRead transitions every unread message authored by the other role to
// read and zeroes the reader's unread counter, as one bulk unit per
// conversation.
func (s *Service) MarkRead(ctx context.Context, conversationID string, readerRole model.SenderType) error {
	if readerRole != model.SenderAgent && readerRole != model.SenderVisitor {
		return newError(ErrorCodeValidation, "invalid reader role", nil)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	authorRole := model.SenderVisitor
	if readerRole == model.SenderVisitor {
		authorRole = model.SenderAgent
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	if _, err := s.repo.MarkConversationRead(ctx, conversationID, authorRole, nowStr); err != nil {
		return newError(ErrorCodeInternal, "failed to mark messages read", err)
	}

	if readerRole == model.SenderAgent {
		conversation.Unread.Agent = 0
	} else {
		conversation.Unread.Visitor = 0
	}
	conversation.UpdatedAt = nowStr

	if err := s.commitConversation(ctx, conversation, ""); err != nil {
		return err
	}
	conversation.Version++

	s.notifier.MessagesRead(conversation, readerRole)
	return nil
}

// Resolve moves an active or pending conversation to resolved and releases
// the assigned agent's capacity slot in the same commit.
func (s *Service) Resolve(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	return s.finish(ctx, conversationID, model.ConversationStatusResolved)
}

// Close moves any non-closed conversation to closed. If the conversation
// was still holding an agent slot (pending/active), the slot is released.
func (s *Service) Close(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	return s.finish(ctx, conversationID, model.ConversationStatusClosed)
}

func (s *Service) finish(ctx context.Context, conversationID string, target model.ConversationStatus) (model.ConversationItem, error) {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	from := conversation.Status
	switch target {
	case model.ConversationStatusResolved:
		if from != model.ConversationStatusActive && from != model.ConversationStatusPending {
			return model.ConversationItem{}, newError(ErrorCodeConflict,
				fmt.Sprintf("cannot resolve a %s conversation", from), nil)
		}
	case model.ConversationStatusClosed:
		if from == model.ConversationStatusClosed {
			return model.ConversationItem{}, newError(ErrorCodeConflict, "conversation is already closed", nil)
		}
	default:
		return model.ConversationItem{}, newError(ErrorCodeValidation, "invalid target status", nil)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	conversation.Status = target
	conversation.UpdatedAt = nowStr

	// The agent slot is held only while the conversation is pending/active,
	// so releasing exactly on that edge keeps release idempotent: a second
	// terminal transition starts from a state with no held slot.
	releaseAgentID := ""
	if !from.Terminal() && conversation.AssignedAgentID != "" {
		releaseAgentID = conversation.AssignedAgentID
	}

	if target == model.ConversationStatusResolved {
		conversation.ResolvedAt = nowStr
		conversation.ResolutionTimeMinutes = minutesBetween(conversation.CreatedAt, nowStr)
	} else {
		conversation.ClosedAt = nowStr
		if conversation.ResolutionTimeMinutes == 0 {
			conversation.ResolutionTimeMinutes = minutesBetween(conversation.CreatedAt, nowStr)
		}
	}

	if err := s.commitConversation(ctx, conversation, releaseAgentID); err != nil {
		return model.ConversationItem{}, err
	}
	conversation.Version++

	if target == model.ConversationStatusResolved {
		s.notifier.ConversationResolved(conversation)
		s.hooks.Trigger(model.EventConversationResolved, conversation)
	} else {
		s.notifier.ConversationClosed(conversation)
		s.hooks.Trigger(model.EventConversationClosed, conversation)
	}

	return conversation, nil
}

// Rate records the visitor's rating on a conversation.
func (s *Service) Rate(ctx context.Context, conversationID string, score int, feedback string) (model.ConversationItem, error) {
	if score < 1 || score > 5 {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "score must be between 1 and 5", nil)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	conversation.Rating = &model.Rating{
		Score:    score,
		Feedback: strings.TrimSpace(feedback),
		RatedAt:  nowStr,
	}
	conversation.UpdatedAt = nowStr

	if err := s.commitConversation(ctx, conversation, ""); err != nil {
		return model.ConversationItem{}, err
	}
	conversation.Version++

	s.hooks.Trigger(model.EventRatingReceived, conversation)
	return conversation, nil
}

// ExpirePending marks pending conversations older than the timeout as
// missed. A non-positive timeout disables the sweep; the interval is a
// configuration hook, not a built-in default.
func (s *Service) ExpirePending(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().Add(-timeout).Format(time.RFC3339)
	pending, err := s.repo.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "failed to list pending conversations", err)
	}

	expired := 0
	for _, conversation := range pending {
		unlock := s.locks.lock(conversation.ConversationID)

		current, err := s.repo.GetConversation(ctx, conversation.ConversationID)
		if err != nil || current.Status != model.ConversationStatusPending {
			unlock()
			continue
		}

		nowStr := s.now().UTC().Format(time.RFC3339)
		current.Status = model.ConversationStatusMissed
		current.UpdatedAt = nowStr

		if err := s.commitConversation(ctx, current, ""); err != nil {
			unlock()
			continue
		}
		current.Version++
		unlock()

		expired++
		s.notifier.ConversationMissed(current)
		s.hooks.Trigger(model.EventConversationMissed, current)
	}

	return expired, nil
}

func (s *Service) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation, nil
}

func (s *Service) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	conversations, err := s.repo.ListConversations(ctx, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}
	return conversations, nil
}

func (s *Service) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

func (s *Service) loadMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error) {
	message, err := s.repo.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.MessageItem{}, newError(ErrorCodeNotFound, "message not found", err)
		}
		return model.MessageItem{}, newError(ErrorCodeInternal, "failed to fetch message", err)
	}
	return message, nil
}

func (s *Service) commitConversation(ctx context.Context, conversation model.ConversationItem, releaseAgentID string) error {
	expected := conversation.Version
	conversation.Version++
	if err := s.repo.CommitConversation(ctx, conversation, expected, releaseAgentID); err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return newError(ErrorCodeConflict, "conversation changed concurrently", err)
		}
		return newError(ErrorCodeInternal, "failed to update conversation", err)
	}
	return nil
}

func (s *Service) notifyMessageUpdated(ctx context.Context, message model.MessageItem) {
	conversation, err := s.repo.GetConversation(ctx, message.ConversationID)
	if err != nil {
		return
	}
	s.notifier.MessageUpdated(conversation, message)
}

func sameSender(a, b model.Sender) bool {
	return a.Type == b.Type && a.ID == b.ID
}

// minutesBetween floors the span between two RFC3339 timestamps to whole
// minutes. Malformed input counts as zero.
func minutesBetween(fromStr, toStr string) int {
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return 0
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return 0
	}
	span := to.Sub(from)
	if span < 0 {
		return 0
	}
	return int(span / time.Minute)
}
