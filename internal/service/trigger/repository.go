package trigger

import (
	"context"
	"errors"
	"strings"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("trigger repository: not found")

type Repository interface {
	ListActiveTriggers(ctx context.Context) ([]model.TriggerItem, error)
	// RecordExecution bumps the counter atomically so concurrent evaluations
	// on different nodes never lose an increment.
	RecordExecution(ctx context.Context, triggerID, executedAt string) error

	GetVisitor(ctx context.Context, visitorID string) (model.VisitorItem, error)
	PutVisitor(ctx context.Context, visitor model.VisitorItem) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) ListActiveTriggers(ctx context.Context) ([]model.TriggerItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.TriggersTable,
		"isActive = :active",
		map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	triggers := make([]model.TriggerItem, 0, len(items))
	for _, item := range items {
		var trigger model.TriggerItem
		if err := attributevalue.UnmarshalMap(item, &trigger); err != nil {
			return nil, err
		}
		triggers = append(triggers, trigger)
	}
	return triggers, nil
}

func (r *DynamoRepository) RecordExecution(ctx context.Context, triggerID, executedAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.TriggersTable,
		map[string]types.AttributeValue{
			"triggerId": &types.AttributeValueMemberS{Value: triggerID},
		},
		"ADD executionCount :one SET lastExecutedAt = :executedAt",
		map[string]types.AttributeValue{
			":one":        &types.AttributeValueMemberN{Value: "1"},
			":executedAt": &types.AttributeValueMemberS{Value: executedAt},
		},
		nil,
		nil,
	)
}

func (r *DynamoRepository) GetVisitor(ctx context.Context, visitorID string) (model.VisitorItem, error) {
	var visitor model.VisitorItem
	err := r.db.Client.GetItem(
		ctx,
		model.VisitorsTable,
		map[string]types.AttributeValue{
			"visitorId": &types.AttributeValueMemberS{Value: visitorID},
		},
		&visitor,
	)
	if err != nil {
		if strings.Contains(err.Error(), "item not found") {
			return model.VisitorItem{}, ErrNotFound
		}
		return model.VisitorItem{}, err
	}
	return visitor, nil
}

func (r *DynamoRepository) PutVisitor(ctx context.Context, visitor model.VisitorItem) error {
	return r.db.Client.PutItem(ctx, model.VisitorsTable, visitor)
}
