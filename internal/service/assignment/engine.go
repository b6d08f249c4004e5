package assignment

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"
)

const (
	MethodRoundRobin    = "round_robin"
	MethodLoadBalancing = "load_balancing"
	MethodSkillBased    = "skill_based"
)

// Commit retries after a version conflict re-read the conversation and the
// agent pool before giving up.
const maxCommitAttempts = 3

// Notifier pushes assignment outcomes to live connections.
type Notifier interface {
	ConversationAssigned(conversation model.ConversationItem, agent model.AgentItem)
	ConversationTransferred(conversation model.ConversationItem, fromAgentID string, agent model.AgentItem)
}

// EventSink receives lifecycle events for webhook delivery.
type EventSink interface {
	Trigger(eventType string, payload interface{})
}

type noopNotifier struct{}

func (noopNotifier) ConversationAssigned(model.ConversationItem, model.AgentItem) {}
func (noopNotifier) ConversationTransferred(model.ConversationItem, string, model.AgentItem) {
}

type noopSink struct{}

func (noopSink) Trigger(string, interface{}) {}

type Engine struct {
	repo          Repository
	notifier      Notifier
	hooks         EventSink
	defaultMethod string
	now           func() time.Time
}

func New(db *database.Database, defaultMethod string) *Engine {
	return NewWithRepository(NewDynamoRepository(db), defaultMethod, nil, nil, nil)
}

func NewWithRepository(repo Repository, defaultMethod string, notifier Notifier, hooks EventSink, now func() time.Time) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if hooks == nil {
		hooks = noopSink{}
	}
	if now == nil {
		now = time.Now
	}
	switch defaultMethod {
	case MethodRoundRobin, MethodLoadBalancing, MethodSkillBased:
	default:
		defaultMethod = MethodRoundRobin
	}
	return &Engine{
		repo:          repo,
		notifier:      notifier,
		hooks:         hooks,
		defaultMethod: defaultMethod,
		now:           now,
	}
}

func (e *Engine) SetNotifier(notifier Notifier) {
	if notifier != nil {
		e.notifier = notifier
	}
}

func (e *Engine) SetEventSink(hooks EventSink) {
	if hooks != nil {
		e.hooks = hooks
	}
}

// Assign picks an agent for an unassigned conversation using the
// department's configured method and commits the assignment pair atomically.
func (e *Engine) Assign(ctx context.Context, conversationID string) (model.ConversationItem, model.AgentItem, error) {
	return e.assign(ctx, conversationID, "")
}

// AssignTo assigns a specific agent, still subject to eligibility and
// capacity checks.
func (e *Engine) AssignTo(ctx context.Context, conversationID, agentID string) (model.ConversationItem, model.AgentItem, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeValidation, "agentId is required", nil)
	}
	return e.assign(ctx, conversationID, agentID)
}

func (e *Engine) assign(ctx context.Context, conversationID, wantAgentID string) (model.ConversationItem, model.AgentItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		conversation, err := e.repo.GetConversation(ctx, conversationID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
			}
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
		}

		// An agent-authored first message can flip a conversation to active
		// before anyone is assigned, so active without an assignee is still
		// assignable.
		switch conversation.Status {
		case model.ConversationStatusPending, model.ConversationStatusActive:
		default:
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict,
				"conversation is no longer open for assignment", nil)
		}
		if conversation.AssignedAgentID != "" {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict,
				"conversation is already assigned", nil)
		}

		agent, err := e.pick(ctx, conversation, wantAgentID)
		if err != nil {
			return model.ConversationItem{}, model.AgentItem{}, err
		}

		nowStr := e.now().UTC().Format(time.RFC3339)
		expected := conversation.Version
		conversation.AssignedAgentID = agent.AgentID
		conversation.Status = model.ConversationStatusActive
		conversation.UpdatedAt = nowStr
		conversation.Version++

		err = e.repo.CommitAssignment(ctx, conversation, expected, agent.AgentID, "", nowStr)
		if err == nil {
			agent.CurrentChatCount++
			agent.LastAssignedAt = nowStr
			e.notifier.ConversationAssigned(conversation, agent)
			e.hooks.Trigger(model.EventConversationAssigned, map[string]interface{}{
				"conversation": conversation,
				"agent":        agent,
			})
			return conversation, agent, nil
		}
		if !errors.Is(err, database.ErrConditionFailed) {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeInternal, "failed to commit assignment", err)
		}
		lastErr = err
	}

	return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict, "assignment lost the race, retry", lastErr)
}

// Transfer moves an active conversation between agents. fromAgentID guards
// against stale transfers: it must match the current assignee.
func (e *Engine) Transfer(ctx context.Context, conversationID, fromAgentID, toAgentID, reason string) (model.ConversationItem, model.AgentItem, error) {
	conversationID = strings.TrimSpace(conversationID)
	fromAgentID = strings.TrimSpace(fromAgentID)
	toAgentID = strings.TrimSpace(toAgentID)

	if conversationID == "" || fromAgentID == "" || toAgentID == "" {
		return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeValidation,
			"conversationId, fromAgentId and toAgentId are required", nil)
	}
	if fromAgentID == toAgentID {
		return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeValidation,
			"cannot transfer a conversation to its current agent", nil)
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		conversation, err := e.repo.GetConversation(ctx, conversationID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
			}
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
		}

		if conversation.Status.Terminal() {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict,
				"conversation is no longer open", nil)
		}
		if conversation.AssignedAgentID != fromAgentID {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict,
				"conversation is not assigned to the transferring agent", nil)
		}

		agent, err := e.repo.GetAgent(ctx, toAgentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeNotFound, "target agent not found", err)
			}
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch agent", err)
		}
		if !eligible(agent, conversation.DepartmentID) {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeAgentUnavailable,
				"target agent cannot take the conversation", nil)
		}

		nowStr := e.now().UTC().Format(time.RFC3339)
		expected := conversation.Version
		conversation.AssignedAgentID = toAgentID
		conversation.UpdatedAt = nowStr
		conversation.TransferHistory = append(conversation.TransferHistory, model.TransferRecord{
			FromAgentID:   fromAgentID,
			ToAgentID:     toAgentID,
			Reason:        strings.TrimSpace(reason),
			TransferredAt: nowStr,
		})
		conversation.Version++

		err = e.repo.CommitAssignment(ctx, conversation, expected, toAgentID, fromAgentID, nowStr)
		if err == nil {
			agent.CurrentChatCount++
			agent.LastAssignedAt = nowStr
			e.notifier.ConversationTransferred(conversation, fromAgentID, agent)
			return conversation, agent, nil
		}
		if !errors.Is(err, database.ErrConditionFailed) {
			return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeInternal, "failed to commit transfer", err)
		}
		lastErr = err
	}

	return model.ConversationItem{}, model.AgentItem{}, newError(ErrorCodeConflict, "transfer lost the race, retry", lastErr)
}

// SetAgentStatus flips an agent's availability. busy/away keep the current
// load; only status and activity change here, never counters.
func (e *Engine) SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) (model.AgentItem, error) {
	switch status {
	case model.AgentStatusOnline, model.AgentStatusOffline, model.AgentStatusAway, model.AgentStatusBusy:
	default:
		return model.AgentItem{}, newError(ErrorCodeValidation, "invalid agent status", nil)
	}

	agent, err := e.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch agent", err)
	}

	nowStr := e.now().UTC().Format(time.RFC3339)
	if err := e.repo.UpdateAgentStatus(ctx, agentID, status, nowStr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to update agent status", err)
	}

	previous := agent.Status
	agent.Status = status
	agent.LastActiveAt = nowStr

	if previous != status {
		e.hooks.Trigger(model.EventAgentStatusChanged, map[string]interface{}{
			"agentId":  agent.AgentID,
			"name":     agent.Name,
			"previous": previous,
			"status":   status,
		})
	}
	return agent, nil
}

// GetAgent exposes the repository lookup for callers that already depend on
// the engine.
func (e *Engine) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	agent, err := e.repo.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
		}
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch agent", err)
	}
	return agent, nil
}

func (e *Engine) pick(ctx context.Context, conversation model.ConversationItem, wantAgentID string) (model.AgentItem, error) {
	if wantAgentID != "" {
		agent, err := e.repo.GetAgent(ctx, wantAgentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return model.AgentItem{}, newError(ErrorCodeNotFound, "agent not found", err)
			}
			return model.AgentItem{}, newError(ErrorCodeInternal, "failed to fetch agent", err)
		}
		if !eligible(agent, conversation.DepartmentID) {
			return model.AgentItem{}, newError(ErrorCodeAgentUnavailable, "agent cannot take the conversation", nil)
		}
		return agent, nil
	}

	agents, err := e.repo.ListAgents(ctx)
	if err != nil {
		return model.AgentItem{}, newError(ErrorCodeInternal, "failed to list agents", err)
	}

	pool := make([]model.AgentItem, 0, len(agents))
	for _, agent := range agents {
		if eligible(agent, conversation.DepartmentID) {
			pool = append(pool, agent)
		}
	}
	if len(pool) == 0 {
		return model.AgentItem{}, newError(ErrorCodeAgentUnavailable, "no agent available", nil)
	}

	method := e.method(ctx, conversation.DepartmentID)
	switch method {
	case MethodLoadBalancing:
		return pickLeastLoaded(pool), nil
	case MethodSkillBased:
		skilled := make([]model.AgentItem, 0, len(pool))
		for _, agent := range pool {
			if agent.HasSkill(conversation.Tags) {
				skilled = append(skilled, agent)
			}
		}
		if len(skilled) == 0 {
			log.Printf("assignment: no skill match for conversation %s, falling back to load balancing", conversation.ConversationID)
			return pickLeastLoaded(pool), nil
		}
		return pickLeastLoaded(skilled), nil
	default:
		return pickRoundRobin(pool), nil
	}
}

func (e *Engine) method(ctx context.Context, departmentID string) string {
	if departmentID == "" {
		return e.defaultMethod
	}
	department, err := e.repo.GetDepartment(ctx, departmentID)
	if err != nil {
		return e.defaultMethod
	}
	switch department.AssignmentMethod {
	case MethodRoundRobin, MethodLoadBalancing, MethodSkillBased:
		return department.AssignmentMethod
	}
	return e.defaultMethod
}

func eligible(agent model.AgentItem, departmentID string) bool {
	return agent.Status.Assignable() &&
		agent.CurrentChatCount < agent.MaxConcurrentChats &&
		agent.InDepartment(departmentID)
}

// pickRoundRobin takes the agent idle the longest. An agent never assigned
// sorts first. Ties break on id so the order is stable across nodes.
func pickRoundRobin(pool []model.AgentItem) model.AgentItem {
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].LastAssignedAt != pool[j].LastAssignedAt {
			return pool[i].LastAssignedAt < pool[j].LastAssignedAt
		}
		return pool[i].AgentID < pool[j].AgentID
	})
	return pool[0]
}

// pickLeastLoaded takes the agent with the lowest load ratio, so an agent
// with 1/10 chats wins over one with 1/2.
func pickLeastLoaded(pool []model.AgentItem) model.AgentItem {
	sort.Slice(pool, func(i, j int) bool {
		ri := loadRatio(pool[i])
		rj := loadRatio(pool[j])
		if ri != rj {
			return ri < rj
		}
		return pool[i].AgentID < pool[j].AgentID
	})
	return pool[0]
}

func loadRatio(agent model.AgentItem) float64 {
	if agent.MaxConcurrentChats <= 0 {
		return 1
	}
	return float64(agent.CurrentChatCount) / float64(agent.MaxConcurrentChats)
}
