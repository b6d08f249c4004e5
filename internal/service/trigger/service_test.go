package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livechat-backend/internal/model"
)

type memoryRepository struct {
	mu       sync.Mutex
	triggers []model.TriggerItem
	executed map[string]int
	visitors map[string]model.VisitorItem
}

func newMemoryRepository(triggers ...model.TriggerItem) *memoryRepository {
	return &memoryRepository{
		triggers: triggers,
		executed: make(map[string]int),
		visitors: make(map[string]model.VisitorItem),
	}
}

func (r *memoryRepository) ListActiveTriggers(_ context.Context) ([]model.TriggerItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TriggerItem
	for _, trigger := range r.triggers {
		if trigger.IsActive {
			out = append(out, trigger)
		}
	}
	return out, nil
}

func (r *memoryRepository) RecordExecution(_ context.Context, triggerID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed[triggerID]++
	return nil
}

func (r *memoryRepository) GetVisitor(_ context.Context, visitorID string) (model.VisitorItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	visitor, ok := r.visitors[visitorID]
	if !ok {
		return model.VisitorItem{}, ErrNotFound
	}
	return visitor, nil
}

func (r *memoryRepository) PutVisitor(_ context.Context, visitor model.VisitorItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visitors[visitor.VisitorID] = visitor
	return nil
}

type recordingEmitter struct {
	mu       sync.Mutex
	calls    []string
	failWith map[string]error
}

func (e *recordingEmitter) record(kind, detail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, kind+":"+detail)
	if err, ok := e.failWith[kind]; ok {
		return err
	}
	return nil
}

func (e *recordingEmitter) SendMessage(_, content string) error { return e.record("message", content) }
func (e *recordingEmitter) OpenChat(visitorID string) error     { return e.record("open", visitorID) }
func (e *recordingEmitter) ShowNotification(_, content string) error {
	return e.record("notify", content)
}
func (e *recordingEmitter) AssignToAgent(_, agentID string) error { return e.record("assign", agentID) }

func newTestService(repo Repository, emitter ActionEmitter) *Service {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewWithRepository(repo, emitter, func() time.Time { return clock })
}

func activeTrigger(id string, priority int, match model.TriggerMatch, conditions []model.TriggerCondition, actions []model.TriggerAction) model.TriggerItem {
	return model.TriggerItem{
		TriggerID:  id,
		Name:       id,
		IsActive:   true,
		Priority:   priority,
		Match:      match,
		Conditions: conditions,
		Actions:    actions,
	}
}

func TestEvaluateMatchAllRequiresEveryCondition(t *testing.T) {
	trigger := activeTrigger("t1", 1, model.MatchAll,
		[]model.TriggerCondition{
			{Type: model.ConditionPageURL, Operator: model.OperatorContains, Value: "/pricing"},
			{Type: model.ConditionTimeOnPage, Operator: model.OperatorGreaterThan, Value: "30"},
		},
		[]model.TriggerAction{{Type: model.ActionSendMessage, Value: "Need help choosing a plan?"}},
	)
	repo := newMemoryRepository(trigger)
	emitter := &recordingEmitter{}
	svc := newTestService(repo, emitter)

	executions, err := svc.Evaluate(context.Background(), Signal{
		VisitorID:  "visitor-1",
		PageURL:    "https://example.com/pricing",
		TimeOnPage: 10,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 0 {
		t.Fatalf("expected no match when one condition fails, got %d", len(executions))
	}

	executions, err = svc.Evaluate(context.Background(), Signal{
		VisitorID:  "visitor-1",
		PageURL:    "https://example.com/pricing",
		TimeOnPage: 45,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected match, got %d", len(executions))
	}
	if len(emitter.calls) != 1 || emitter.calls[0] != "message:Need help choosing a plan?" {
		t.Errorf("unexpected emitter calls %v", emitter.calls)
	}
	if repo.executed["t1"] != 1 {
		t.Errorf("expected one recorded execution, got %d", repo.executed["t1"])
	}
}

func TestEvaluateMatchAnyShortCircuits(t *testing.T) {
	trigger := activeTrigger("t1", 1, model.MatchAny,
		[]model.TriggerCondition{
			{Type: model.ConditionVisitCount, Operator: model.OperatorGreaterThan, Value: "5"},
			{Type: model.ConditionVisitorLocation, Operator: model.OperatorEquals, Value: "DE"},
		},
		[]model.TriggerAction{{Type: model.ActionOpenChat}},
	)
	repo := newMemoryRepository(trigger)
	svc := newTestService(repo, &recordingEmitter{})

	executions, err := svc.Evaluate(context.Background(), Signal{
		VisitorID:  "visitor-1",
		VisitCount: 9,
		Location:   "PL",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected any-match on first condition, got %d", len(executions))
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	low := activeTrigger("low", 1, model.MatchAll,
		[]model.TriggerCondition{{Type: model.ConditionPageURL, Operator: model.OperatorStartsWith, Value: "https://"}},
		[]model.TriggerAction{{Type: model.ActionShowNotification, Value: "low"}},
	)
	high := activeTrigger("high", 10, model.MatchAll,
		[]model.TriggerCondition{{Type: model.ConditionPageURL, Operator: model.OperatorStartsWith, Value: "https://"}},
		[]model.TriggerAction{{Type: model.ActionShowNotification, Value: "high"}},
	)
	repo := newMemoryRepository(low, high)
	emitter := &recordingEmitter{}
	svc := newTestService(repo, emitter)

	executions, err := svc.Evaluate(context.Background(), Signal{
		VisitorID: "visitor-1",
		PageURL:   "https://example.com",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 2 {
		t.Fatalf("expected both triggers, got %d", len(executions))
	}
	if executions[0].TriggerID != "high" || executions[1].TriggerID != "low" {
		t.Errorf("expected priority order high,low, got %s,%s", executions[0].TriggerID, executions[1].TriggerID)
	}
	if emitter.calls[0] != "notify:high" || emitter.calls[1] != "notify:low" {
		t.Errorf("actions ran out of order: %v", emitter.calls)
	}
}

func TestEvaluateActionFailureIsolated(t *testing.T) {
	trigger := activeTrigger("t1", 1, model.MatchAll,
		[]model.TriggerCondition{{Type: model.ConditionVisitCount, Operator: model.OperatorEquals, Value: "1"}},
		[]model.TriggerAction{
			{Type: model.ActionSendMessage, Value: "welcome"},
			{Type: model.ActionShowNotification, Value: "say hi"},
		},
	)
	repo := newMemoryRepository(trigger)
	emitter := &recordingEmitter{failWith: map[string]error{"message": errors.New("socket gone")}}
	svc := newTestService(repo, emitter)

	executions, err := svc.Evaluate(context.Background(), Signal{VisitorID: "visitor-1", VisitCount: 1})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("failed action must not fail the evaluation, got %d executions", len(executions))
	}
	if len(emitter.calls) != 2 {
		t.Errorf("expected the second action to still run, calls %v", emitter.calls)
	}
	if repo.executed["t1"] != 1 {
		t.Errorf("expected execution recorded despite action failure, got %d", repo.executed["t1"])
	}
}

func TestEvaluateInactiveAndEmptySkipped(t *testing.T) {
	inactive := activeTrigger("off", 5, model.MatchAll,
		[]model.TriggerCondition{{Type: model.ConditionVisitCount, Operator: model.OperatorGreaterThan, Value: "0"}},
		nil,
	)
	inactive.IsActive = false
	empty := activeTrigger("empty", 5, model.MatchAll, nil, nil)
	repo := newMemoryRepository(inactive, empty)
	svc := newTestService(repo, &recordingEmitter{})

	executions, err := svc.Evaluate(context.Background(), Signal{VisitorID: "visitor-1", VisitCount: 3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(executions) != 0 {
		t.Fatalf("expected no executions, got %d", len(executions))
	}
}

func TestAddTagActionPersistsOnVisitor(t *testing.T) {
	trigger := activeTrigger("t1", 1, model.MatchAll,
		[]model.TriggerCondition{{Type: model.ConditionVisitCount, Operator: model.OperatorGreaterThan, Value: "2"}},
		[]model.TriggerAction{{Type: model.ActionAddTag, Value: "returning"}},
	)
	repo := newMemoryRepository(trigger)
	repo.visitors["visitor-1"] = model.VisitorItem{VisitorID: "visitor-1", Tags: []string{"beta"}}
	svc := newTestService(repo, &recordingEmitter{})

	for i := 0; i < 2; i++ {
		if _, err := svc.Evaluate(context.Background(), Signal{VisitorID: "visitor-1", VisitCount: 5}); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}

	visitor := repo.visitors["visitor-1"]
	if len(visitor.Tags) != 2 || visitor.Tags[1] != "returning" {
		t.Errorf("expected tag added once without duplicates, got %v", visitor.Tags)
	}
}

func TestRecordPageViewUpsertsVisitor(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingEmitter{})

	_, err := svc.RecordPageView(context.Background(), Signal{
		VisitorID: "visitor-1",
		PageURL:   "https://example.com/docs",
		Location:  "PL",
	})
	if err != nil {
		t.Fatalf("record page view: %v", err)
	}

	visitor := repo.visitors["visitor-1"]
	if visitor.VisitCount != 1 {
		t.Errorf("expected visit count 1, got %d", visitor.VisitCount)
	}
	if visitor.CurrentPageURL != "https://example.com/docs" || !visitor.IsOnline {
		t.Errorf("expected telemetry refreshed, got %+v", visitor)
	}

	if _, err := svc.RecordPageView(context.Background(), Signal{
		VisitorID: "visitor-1",
		PageURL:   "https://example.com/pricing",
	}); err != nil {
		t.Fatalf("second page view: %v", err)
	}
	visitor = repo.visitors["visitor-1"]
	if visitor.VisitCount != 2 {
		t.Errorf("expected visit count 2, got %d", visitor.VisitCount)
	}
	if visitor.Location != "PL" {
		t.Errorf("expected location retained, got %q", visitor.Location)
	}
}

func TestCompareOperators(t *testing.T) {
	cases := []struct {
		actual   string
		operator string
		expected string
		want     bool
	}{
		{"https://example.com/pricing", model.OperatorContains, "/pricing", true},
		{"https://example.com", model.OperatorContains, "/pricing", false},
		{"45", model.OperatorGreaterThan, "30", true},
		{"45", model.OperatorLessThan, "30", false},
		{"9", model.OperatorGreaterThan, "30", false},
		{"abc", model.OperatorGreaterThan, "30", false},
		{"45", model.OperatorGreaterThan, "abc", false},
		{"DE", model.OperatorEquals, "DE", true},
		{"https://example.com", model.OperatorStartsWith, "https://", true},
		{"doc.pdf", model.OperatorEndsWith, ".pdf", true},
		{"anything", "unknown_operator", "x", false},
	}

	for _, tc := range cases {
		if got := compare(tc.actual, tc.operator, tc.expected); got != tc.want {
			t.Errorf("compare(%q, %s, %q) = %v, want %v", tc.actual, tc.operator, tc.expected, got, tc.want)
		}
	}
}

func TestMarkVisitorOffline(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, &recordingEmitter{})

	if _, err := svc.RecordPageView(context.Background(), Signal{VisitorID: "visitor-1", PageURL: "https://example.com"}); err != nil {
		t.Fatalf("record page view: %v", err)
	}

	if err := svc.MarkVisitorOffline(context.Background(), "visitor-1"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}
	visitor, err := repo.GetVisitor(context.Background(), "visitor-1")
	if err != nil {
		t.Fatalf("get visitor: %v", err)
	}
	if visitor.IsOnline {
		t.Fatal("visitor should be offline")
	}

	if err := svc.MarkVisitorOffline(context.Background(), "stranger"); err != nil {
		t.Fatalf("unknown visitor should be a no-op, got %v", err)
	}
}
