package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"
)

type memoryRepository struct {
	mu            sync.Mutex
	conversations map[string]model.ConversationItem
	messages      map[string]model.MessageItem
	agentCounts   map[string]int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		conversations: make(map[string]model.ConversationItem),
		messages:      make(map[string]model.MessageItem),
		agentCounts:   make(map[string]int),
	}
}

func (r *memoryRepository) CreateConversation(_ context.Context, conversation model.ConversationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[conversation.ConversationID] = conversation
	return nil
}

func (r *memoryRepository) GetConversation(_ context.Context, conversationID string) (model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conversation, nil
}

func (r *memoryRepository) CommitConversation(_ context.Context, conversation model.ConversationItem, expectedVersion int, releaseAgentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conversations[conversation.ConversationID]
	if !ok || current.Version != expectedVersion {
		return database.ErrConditionFailed
	}
	if releaseAgentID != "" {
		if r.agentCounts[releaseAgentID] <= 0 {
			return database.ErrConditionFailed
		}
		r.agentCounts[releaseAgentID]--
	}
	r.conversations[conversation.ConversationID] = conversation
	return nil
}

func (r *memoryRepository) ListConversations(_ context.Context, limit int) ([]model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ConversationItem, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		if conversation.Archived {
			continue
		}
		out = append(out, conversation)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt > out[j].LastMessageAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) ListPendingBefore(_ context.Context, cutoff string) ([]model.ConversationItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConversationItem
	for _, conversation := range r.conversations {
		if conversation.Status == model.ConversationStatusPending && conversation.CreatedAt < cutoff {
			out = append(out, conversation)
		}
	}
	return out, nil
}

func (r *memoryRepository) CreateMessage(_ context.Context, message model.MessageItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[message.PK] = message
	return nil
}

func (r *memoryRepository) GetMessage(_ context.Context, conversationID, messageID string) (model.MessageItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.messages[model.MessagePK(conversationID, messageID)]
	if !ok {
		return model.MessageItem{}, ErrNotFound
	}
	return message, nil
}

func (r *memoryRepository) UpdateMessage(_ context.Context, message model.MessageItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[message.PK] = message
	return nil
}

func (r *memoryRepository) ListMessages(_ context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MessageItem
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memoryRepository) MarkConversationRead(_ context.Context, conversationID string, authorRole model.SenderType, readAt string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for pk, message := range r.messages {
		if message.ConversationID != conversationID || message.Sender.Type != authorRole || message.IsDeleted {
			continue
		}
		if !message.Status.CanAdvance(model.MessageStatusRead) {
			continue
		}
		message.Status = model.MessageStatusRead
		message.ReadAt = readAt
		r.messages[pk] = message
		marked++
	}
	return marked, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	received []string
	resolved []string
	closed   []string
	missed   []string
	read     []string
}

func (n *recordingNotifier) MessageReceived(c model.ConversationItem, _ model.MessageItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, c.ConversationID)
}
func (n *recordingNotifier) MessageUpdated(model.ConversationItem, model.MessageItem) {}
func (n *recordingNotifier) MessagesRead(c model.ConversationItem, _ model.SenderType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.read = append(n.read, c.ConversationID)
}
func (n *recordingNotifier) ConversationResolved(c model.ConversationItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, c.ConversationID)
}
func (n *recordingNotifier) ConversationClosed(c model.ConversationItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, c.ConversationID)
}
func (n *recordingNotifier) ConversationMissed(c model.ConversationItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missed = append(n.missed, c.ConversationID)
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Trigger(eventType string, _ interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

func (s *recordingSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService() (*Service, *memoryRepository, *recordingNotifier, *recordingSink, *testClock) {
	repo := newMemoryRepository()
	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	clock := newTestClock()
	svc := NewWithRepository(repo, notifier, sink, clock.Now)
	return svc, repo, notifier, sink, clock
}

func expectCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if svcErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, svcErr.Code, err)
	}
}

func visitorSender(id string) model.Sender {
	return model.Sender{Type: model.SenderVisitor, ID: id, Name: "Visitor"}
}

func agentSender(id string) model.Sender {
	return model.Sender{Type: model.SenderAgent, ID: id, Name: "Agent"}
}

func TestCreateConversationSeedsFirstMessage(t *testing.T) {
	svc, _, _, sink, _ := newTestService()
	ctx := context.Background()

	result, err := svc.CreateConversation(ctx, CreateConversationParams{
		VisitorID:   "visitor-1",
		VisitorName: "Ann",
		Message:     "hello, I need help",
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if result.Conversation.Status != model.ConversationStatusPending {
		t.Errorf("expected pending status, got %s", result.Conversation.Status)
	}
	if result.Conversation.Priority != model.PriorityMedium {
		t.Errorf("expected default medium priority, got %s", result.Conversation.Priority)
	}
	if result.Message.Content != "hello, I need help" {
		t.Errorf("expected seeded message, got %q", result.Message.Content)
	}
	if result.Conversation.Unread.Agent != 1 {
		t.Errorf("expected agent unread 1, got %d", result.Conversation.Unread.Agent)
	}
	if sink.count(model.EventConversationNew) != 1 {
		t.Errorf("expected one conversation.new event, got %d", sink.count(model.EventConversationNew))
	}
	if sink.count(model.EventMessageNew) != 1 {
		t.Errorf("expected one message.new event, got %d", sink.count(model.EventMessageNew))
	}
}

func TestCreateConversationRequiresVisitor(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.CreateConversation(context.Background(), CreateConversationParams{})
	expectCode(t, err, ErrorCodeValidation)
}

func TestAgentFirstReplySetsFirstResponseOnce(t *testing.T) {
	svc, _, _, _, clock := newTestService()
	ctx := context.Background()

	result, err := svc.CreateConversation(ctx, CreateConversationParams{
		VisitorID: "visitor-1",
		Message:   "hi",
	})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	convID := result.Conversation.ConversationID

	clock.Advance(3 * time.Minute)
	if _, err := svc.SendMessage(ctx, SendMessageParams{
		ConversationID: convID,
		Sender:         agentSender("agent-1"),
		Content:        "hello, how can I help?",
	}); err != nil {
		t.Fatalf("first agent message: %v", err)
	}

	conversation, err := svc.GetConversation(ctx, convID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if conversation.Status != model.ConversationStatusActive {
		t.Errorf("expected active after agent reply, got %s", conversation.Status)
	}
	if conversation.FirstResponseAt == "" {
		t.Fatal("expected firstResponseAt to be set")
	}
	if conversation.ResponseTimeMinutes != 3 {
		t.Errorf("expected response time 3 minutes, got %d", conversation.ResponseTimeMinutes)
	}

	firstResponse := conversation.FirstResponseAt
	clock.Advance(10 * time.Minute)
	if _, err := svc.SendMessage(ctx, SendMessageParams{
		ConversationID: convID,
		Sender:         agentSender("agent-1"),
		Content:        "still there?",
	}); err != nil {
		t.Fatalf("second agent message: %v", err)
	}

	conversation, _ = svc.GetConversation(ctx, convID)
	if conversation.FirstResponseAt != firstResponse {
		t.Errorf("firstResponseAt changed on second reply: %s -> %s", firstResponse, conversation.FirstResponseAt)
	}
	if conversation.ResponseTimeMinutes != 3 {
		t.Errorf("response time changed on second reply: got %d", conversation.ResponseTimeMinutes)
	}
}

func TestSendMessageClosedConversationRejected(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	if _, err := svc.Close(ctx, result.Conversation.ConversationID); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := svc.SendMessage(ctx, SendMessageParams{
		ConversationID: result.Conversation.ConversationID,
		Sender:         visitorSender("visitor-1"),
		Content:        "anyone?",
	})
	expectCode(t, err, ErrorCodeConflict)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	_, err := svc.SendMessage(context.Background(), SendMessageParams{
		ConversationID: "missing",
		Sender:         visitorSender("visitor-1"),
		Content:        "hi",
	})
	expectCode(t, err, ErrorCodeNotFound)
}

func TestMarkReadBulk(t *testing.T) {
	svc, repo, notifier, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "first"})
	convID := result.Conversation.ConversationID
	for _, body := range []string{"second", "third"} {
		if _, err := svc.SendMessage(ctx, SendMessageParams{
			ConversationID: convID,
			Sender:         visitorSender("visitor-1"),
			Content:        body,
		}); err != nil {
			t.Fatalf("send %q: %v", body, err)
		}
	}

	if err := svc.MarkRead(ctx, convID, model.SenderAgent); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	messages, _ := repo.ListMessages(ctx, convID, 0)
	for _, message := range messages {
		if message.Status != model.MessageStatusRead {
			t.Errorf("message %s not read: %s", message.MessageID, message.Status)
		}
		if message.ReadAt == "" {
			t.Errorf("message %s missing readAt", message.MessageID)
		}
	}

	conversation, _ := svc.GetConversation(ctx, convID)
	if conversation.Unread.Agent != 0 {
		t.Errorf("expected agent unread reset, got %d", conversation.Unread.Agent)
	}
	if len(notifier.read) != 1 {
		t.Errorf("expected one read notification, got %d", len(notifier.read))
	}
}

func TestMarkReadNeverRegressesStatus(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "first"})
	convID := result.Conversation.ConversationID

	failed, _ := svc.SendMessage(ctx, SendMessageParams{
		ConversationID: convID,
		Sender:         visitorSender("visitor-1"),
		Content:        "never arrived",
	})
	read, _ := svc.SendMessage(ctx, SendMessageParams{
		ConversationID: convID,
		Sender:         visitorSender("visitor-1"),
		Content:        "seen earlier",
	})

	repo.mu.Lock()
	failedItem := repo.messages[failed.PK]
	failedItem.Status = model.MessageStatusFailed
	repo.messages[failed.PK] = failedItem
	readItem := repo.messages[read.PK]
	readItem.Status = model.MessageStatusRead
	readItem.ReadAt = "2025-02-28T09:00:00Z"
	repo.messages[read.PK] = readItem
	repo.mu.Unlock()

	if err := svc.MarkRead(ctx, convID, model.SenderAgent); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	got, _ := repo.GetMessage(ctx, convID, failed.MessageID)
	if got.Status != model.MessageStatusFailed {
		t.Errorf("failed message advanced to %s", got.Status)
	}
	if got.ReadAt != "" {
		t.Errorf("failed message gained readAt %s", got.ReadAt)
	}

	got, _ = repo.GetMessage(ctx, convID, read.MessageID)
	if got.Status != model.MessageStatusRead {
		t.Errorf("read message regressed to %s", got.Status)
	}
	if got.ReadAt != "2025-02-28T09:00:00Z" {
		t.Errorf("read message readAt rewritten to %s", got.ReadAt)
	}
}

func TestReactionToggleAndReplace(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	convID := result.Conversation.ConversationID
	messageID := result.Message.MessageID
	agent := agentSender("agent-1")

	message, err := svc.React(ctx, convID, messageID, agent, "👍")
	if err != nil {
		t.Fatalf("react: %v", err)
	}
	if len(message.Reactions) != 1 || message.Reactions[0].Emoji != "👍" {
		t.Fatalf("expected one 👍 reaction, got %+v", message.Reactions)
	}

	message, err = svc.React(ctx, convID, messageID, agent, "❤️")
	if err != nil {
		t.Fatalf("replace reaction: %v", err)
	}
	if len(message.Reactions) != 1 || message.Reactions[0].Emoji != "❤️" {
		t.Fatalf("expected replacement with ❤️, got %+v", message.Reactions)
	}

	message, err = svc.React(ctx, convID, messageID, agent, "❤️")
	if err != nil {
		t.Fatalf("toggle reaction: %v", err)
	}
	if len(message.Reactions) != 0 {
		t.Fatalf("expected toggle-off to remove reaction, got %+v", message.Reactions)
	}
}

func TestEditMessageOwnership(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "original"})
	convID := result.Conversation.ConversationID
	messageID := result.Message.MessageID

	_, err := svc.EditMessage(ctx, convID, messageID, agentSender("agent-1"), false, "hijacked")
	expectCode(t, err, ErrorCodeUnauthorized)

	message, err := svc.EditMessage(ctx, convID, messageID, visitorSender("visitor-1"), false, "fixed typo")
	if err != nil {
		t.Fatalf("edit own message: %v", err)
	}
	if !message.IsEdited || message.Content != "fixed typo" {
		t.Errorf("expected edited message, got %+v", message)
	}

	message, err = svc.EditMessage(ctx, convID, messageID, agentSender("admin-1"), true, "moderated")
	if err != nil {
		t.Fatalf("elevated edit: %v", err)
	}
	if message.Content != "moderated" {
		t.Errorf("expected elevated edit to apply, got %q", message.Content)
	}
}

func TestDeleteMessageSoftAndIdempotent(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "remove me"})
	convID := result.Conversation.ConversationID
	messageID := result.Message.MessageID

	message, err := svc.DeleteMessage(ctx, convID, messageID, visitorSender("visitor-1"), false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !message.IsDeleted || message.DeletedAt == "" {
		t.Fatalf("expected soft delete, got %+v", message)
	}

	if _, err := repo.GetMessage(ctx, convID, messageID); err != nil {
		t.Errorf("soft-deleted message should still exist: %v", err)
	}

	again, err := svc.DeleteMessage(ctx, convID, messageID, visitorSender("visitor-1"), false)
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if again.DeletedAt != message.DeletedAt {
		t.Errorf("repeat delete changed deletedAt: %s -> %s", message.DeletedAt, again.DeletedAt)
	}

	_, err = svc.EditMessage(ctx, convID, messageID, visitorSender("visitor-1"), false, "too late")
	expectCode(t, err, ErrorCodeConflict)
}

func TestResolveReleasesAgentSlotOnce(t *testing.T) {
	svc, repo, notifier, sink, clock := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	convID := result.Conversation.ConversationID

	repo.mu.Lock()
	conversation := repo.conversations[convID]
	conversation.Status = model.ConversationStatusActive
	conversation.AssignedAgentID = "agent-1"
	repo.conversations[convID] = conversation
	repo.agentCounts["agent-1"] = 1
	repo.mu.Unlock()

	clock.Advance(5 * time.Minute)
	resolved, err := svc.Resolve(ctx, convID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != model.ConversationStatusResolved {
		t.Errorf("expected resolved, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == "" {
		t.Error("expected resolvedAt to be set")
	}
	if resolved.ResolutionTimeMinutes != 5 {
		t.Errorf("expected resolution time 5 minutes, got %d", resolved.ResolutionTimeMinutes)
	}
	if got := repo.agentCounts["agent-1"]; got != 0 {
		t.Errorf("expected agent slot released, count %d", got)
	}
	if len(notifier.resolved) != 1 {
		t.Errorf("expected one resolved notification, got %d", len(notifier.resolved))
	}
	if sink.count(model.EventConversationResolved) != 1 {
		t.Errorf("expected one conversation.resolved event, got %d", sink.count(model.EventConversationResolved))
	}

	// Closing an already-resolved conversation must not release again.
	if _, err := svc.Close(ctx, convID); err != nil {
		t.Fatalf("close after resolve: %v", err)
	}
	if got := repo.agentCounts["agent-1"]; got != 0 {
		t.Errorf("second terminal transition decremented agent slot: count %d", got)
	}
}

func TestResolveFromTerminalRejected(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	if _, err := svc.Close(ctx, result.Conversation.ConversationID); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := svc.Resolve(ctx, result.Conversation.ConversationID)
	expectCode(t, err, ErrorCodeConflict)

	_, err = svc.Close(ctx, result.Conversation.ConversationID)
	expectCode(t, err, ErrorCodeConflict)
}

func TestRate(t *testing.T) {
	svc, _, _, sink, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	convID := result.Conversation.ConversationID

	_, err := svc.Rate(ctx, convID, 0, "")
	expectCode(t, err, ErrorCodeValidation)
	_, err = svc.Rate(ctx, convID, 6, "")
	expectCode(t, err, ErrorCodeValidation)

	rated, err := svc.Rate(ctx, convID, 5, "very helpful")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.Rating == nil || rated.Rating.Score != 5 || rated.Rating.Feedback != "very helpful" {
		t.Fatalf("unexpected rating %+v", rated.Rating)
	}
	if sink.count(model.EventRatingReceived) != 1 {
		t.Errorf("expected one rating.received event, got %d", sink.count(model.EventRatingReceived))
	}
}

func TestExpirePending(t *testing.T) {
	svc, _, notifier, sink, clock := newTestService()
	ctx := context.Background()

	stale, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	clock.Advance(20 * time.Minute)
	fresh, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-2", Message: "hello"})

	expired, err := svc.ExpirePending(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("expire pending: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected one expired conversation, got %d", expired)
	}

	conversation, _ := svc.GetConversation(ctx, stale.Conversation.ConversationID)
	if conversation.Status != model.ConversationStatusMissed {
		t.Errorf("expected stale conversation missed, got %s", conversation.Status)
	}
	conversation, _ = svc.GetConversation(ctx, fresh.Conversation.ConversationID)
	if conversation.Status != model.ConversationStatusPending {
		t.Errorf("expected fresh conversation untouched, got %s", conversation.Status)
	}
	if len(notifier.missed) != 1 {
		t.Errorf("expected one missed notification, got %d", len(notifier.missed))
	}
	if sink.count(model.EventConversationMissed) != 1 {
		t.Errorf("expected one conversation.missed event, got %d", sink.count(model.EventConversationMissed))
	}
}

func TestExpirePendingDisabled(t *testing.T) {
	svc, _, _, _, clock := newTestService()
	ctx := context.Background()

	svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	clock.Advance(24 * time.Hour)

	expired, err := svc.ExpirePending(ctx, 0)
	if err != nil {
		t.Fatalf("expire pending: %v", err)
	}
	if expired != 0 {
		t.Errorf("disabled sweep expired %d conversations", expired)
	}
}

type conflictingRepository struct {
	*memoryRepository
	failCommits bool
}

func (r *conflictingRepository) CommitConversation(ctx context.Context, conversation model.ConversationItem, expectedVersion int, releaseAgentID string) error {
	if r.failCommits {
		return database.ErrConditionFailed
	}
	return r.memoryRepository.CommitConversation(ctx, conversation, expectedVersion, releaseAgentID)
}

func TestCommitConflictSurfacesAsConflict(t *testing.T) {
	repo := &conflictingRepository{memoryRepository: newMemoryRepository()}
	svc := NewWithRepository(repo, nil, nil, newTestClock().Now)
	ctx := context.Background()

	result, err := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "hi"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	repo.failCommits = true
	_, err = svc.SendMessage(ctx, SendMessageParams{
		ConversationID: result.Conversation.ConversationID,
		Sender:         visitorSender("visitor-1"),
		Content:        "racing",
	})
	expectCode(t, err, ErrorCodeConflict)
}

func TestUnreadCountsPerSide(t *testing.T) {
	svc, _, _, _, _ := newTestService()
	ctx := context.Background()

	result, _ := svc.CreateConversation(ctx, CreateConversationParams{VisitorID: "visitor-1", Message: "one"})
	convID := result.Conversation.ConversationID

	svc.SendMessage(ctx, SendMessageParams{ConversationID: convID, Sender: visitorSender("visitor-1"), Content: "two"})
	svc.SendMessage(ctx, SendMessageParams{ConversationID: convID, Sender: agentSender("agent-1"), Content: "reply"})

	conversation, _ := svc.GetConversation(ctx, convID)
	if conversation.Unread.Agent != 2 {
		t.Errorf("expected agent unread 2, got %d", conversation.Unread.Agent)
	}
	if conversation.Unread.Visitor != 1 {
		t.Errorf("expected visitor unread 1, got %d", conversation.Unread.Visitor)
	}
}
