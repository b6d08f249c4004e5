package trigger

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"
)

// ActionEmitter executes matched actions against the visitor's connection.
// The websocket handler implements it; failures stay inside Evaluate.
// add_tag is not emitted: it mutates the visitor record directly.
type ActionEmitter interface {
	SendMessage(visitorID, content string) error
	OpenChat(visitorID string) error
	ShowNotification(visitorID, content string) error
	AssignToAgent(visitorID, agentID string) error
}

type noopEmitter struct{}

func (noopEmitter) SendMessage(string, string) error      { return nil }
func (noopEmitter) OpenChat(string) error                 { return nil }
func (noopEmitter) ShowNotification(string, string) error { return nil }
func (noopEmitter) AssignToAgent(string, string) error    { return nil }

// Signal is one visitor telemetry snapshot, usually a page view.
type Signal struct {
	VisitorID  string
	PageURL    string
	TimeOnPage int
	VisitCount int
	Location   string
	Custom     map[string]string
}

// Execution reports which triggers fired for a signal.
type Execution struct {
	TriggerID string
	Name      string
	Actions   []model.TriggerAction
}

type Service struct {
	repo    Repository
	emitter ActionEmitter
	now     func() time.Time
}

func New(db *database.Database) *Service {
	return NewWithRepository(NewDynamoRepository(db), nil, nil)
}

func NewWithRepository(repo Repository, emitter ActionEmitter, now func() time.Time) *Service {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:    repo,
		emitter: emitter,
		now:     now,
	}
}

func (s *Service) SetEmitter(emitter ActionEmitter) {
	if emitter != nil {
		s.emitter = emitter
	}
}

// Evaluate runs every active trigger against the signal in descending
// priority order and executes the actions of each match. A failing action
// never stops the rest; bookkeeping happens once per matched trigger.
func (s *Service) Evaluate(ctx context.Context, signal Signal) ([]Execution, error) {
	if strings.TrimSpace(signal.VisitorID) == "" {
		return nil, errors.New("trigger: signal requires a visitor id")
	}

	triggers, err := s.repo.ListActiveTriggers(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].Priority != triggers[j].Priority {
			return triggers[i].Priority > triggers[j].Priority
		}
		return triggers[i].TriggerID < triggers[j].TriggerID
	})

	var executions []Execution
	for _, trigger := range triggers {
		if !matches(trigger, signal) {
			continue
		}

		for _, action := range trigger.Actions {
			if err := s.execute(ctx, signal.VisitorID, action); err != nil {
				log.Printf("trigger %s: action %s failed: %v", trigger.TriggerID, action.Type, err)
			}
		}

		if err := s.repo.RecordExecution(ctx, trigger.TriggerID, s.now().UTC().Format(time.RFC3339)); err != nil {
			log.Printf("trigger %s: failed to record execution: %v", trigger.TriggerID, err)
		}

		executions = append(executions, Execution{
			TriggerID: trigger.TriggerID,
			Name:      trigger.Name,
			Actions:   trigger.Actions,
		})
	}

	return executions, nil
}

func (s *Service) execute(ctx context.Context, visitorID string, action model.TriggerAction) error {
	switch action.Type {
	case model.ActionSendMessage:
		return s.emitter.SendMessage(visitorID, action.Value)
	case model.ActionOpenChat:
		return s.emitter.OpenChat(visitorID)
	case model.ActionShowNotification:
		return s.emitter.ShowNotification(visitorID, action.Value)
	case model.ActionAssignToAgent:
		return s.emitter.AssignToAgent(visitorID, action.Value)
	case model.ActionAddTag:
		return s.addVisitorTag(ctx, visitorID, action.Value)
	default:
		return errors.New("unknown action type " + action.Type)
	}
}

func (s *Service) addVisitorTag(ctx context.Context, visitorID, tag string) error {
	if tag == "" {
		return nil
	}
	visitor, err := s.repo.GetVisitor(ctx, visitorID)
	if err != nil {
		return err
	}
	for _, existing := range visitor.Tags {
		if existing == tag {
			return nil
		}
	}
	visitor.Tags = append(visitor.Tags, tag)
	return s.repo.PutVisitor(ctx, visitor)
}

// RecordPageView refreshes the visitor's telemetry for the signal, then runs
// the evaluation. A first-time visitor is created on the spot.
func (s *Service) RecordPageView(ctx context.Context, signal Signal) ([]Execution, error) {
	visitorID := strings.TrimSpace(signal.VisitorID)
	if visitorID == "" {
		return nil, errors.New("trigger: signal requires a visitor id")
	}

	nowStr := s.now().UTC().Format(time.RFC3339)
	visitor, err := s.repo.GetVisitor(ctx, visitorID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		visitor = model.VisitorItem{
			VisitorID: visitorID,
			CreatedAt: nowStr,
		}
	}

	visitor.CurrentPageURL = signal.PageURL
	visitor.VisitCount++
	visitor.IsOnline = true
	visitor.LastSeenAt = nowStr
	if signal.Location != "" {
		visitor.Location = signal.Location
	}
	if err := s.repo.PutVisitor(ctx, visitor); err != nil {
		return nil, err
	}

	if signal.VisitCount == 0 {
		signal.VisitCount = visitor.VisitCount
	}
	if signal.Location == "" {
		signal.Location = visitor.Location
	}

	return s.Evaluate(ctx, signal)
}

// MarkVisitorOffline records that the visitor's session ended. Unknown
// visitors are ignored.
func (s *Service) MarkVisitorOffline(ctx context.Context, visitorID string) error {
	visitor, err := s.repo.GetVisitor(ctx, visitorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	visitor.IsOnline = false
	visitor.LastSeenAt = s.now().UTC().Format(time.RFC3339)
	return s.repo.PutVisitor(ctx, visitor)
}

// matches combines conditions per the trigger's match mode, short-circuiting
// as soon as the outcome is decided. A trigger without conditions never fires.
func matches(trigger model.TriggerItem, signal Signal) bool {
	if len(trigger.Conditions) == 0 {
		return false
	}

	for _, condition := range trigger.Conditions {
		ok := evaluateCondition(condition, signal)
		if trigger.Match == model.MatchAny && ok {
			return true
		}
		if trigger.Match != model.MatchAny && !ok {
			return false
		}
	}
	return trigger.Match != model.MatchAny
}

func evaluateCondition(condition model.TriggerCondition, signal Signal) bool {
	var actual string
	switch condition.Type {
	case model.ConditionTimeOnPage:
		actual = strconv.Itoa(signal.TimeOnPage)
	case model.ConditionPageURL:
		actual = signal.PageURL
	case model.ConditionVisitorLocation:
		actual = signal.Location
	case model.ConditionVisitCount:
		actual = strconv.Itoa(signal.VisitCount)
	case model.ConditionCustomVariable:
		actual = signal.Custom[condition.Type]
	default:
		return false
	}

	return compare(actual, condition.Operator, condition.Value)
}

// compare applies one operator. greater_than/less_than coerce both sides to
// numbers; a side that does not parse fails the condition instead of panicking
// or matching lexically.
func compare(actual, operator, expected string) bool {
	switch operator {
	case model.OperatorEquals:
		return actual == expected
	case model.OperatorContains:
		return strings.Contains(actual, expected)
	case model.OperatorStartsWith:
		return strings.HasPrefix(actual, expected)
	case model.OperatorEndsWith:
		return strings.HasSuffix(actual, expected)
	case model.OperatorGreaterThan:
		a, e, ok := coerceNumbers(actual, expected)
		return ok && a > e
	case model.OperatorLessThan:
		a, e, ok := coerceNumbers(actual, expected)
		return ok && a < e
	default:
		return false
	}
}

func coerceNumbers(actual, expected string) (float64, float64, bool) {
	a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	e, errE := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if errA != nil || errE != nil {
		return 0, 0, false
	}
	return a, e, true
}
