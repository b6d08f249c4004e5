package auth

import (
	"context"
	"errors"
	"strings"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("auth: not found")

type Repository interface {
	GetAgent(ctx context.Context, agentID string) (model.AgentItem, error)
	GetAgentByEmail(ctx context.Context, email string) (model.AgentItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	var agent model.AgentItem
	err := r.db.Client.GetItem(ctx, model.AgentsTable, map[string]types.AttributeValue{
		"agentId": &types.AttributeValueMemberS{Value: agentID},
	}, &agent)
	if err != nil {
		if isNotFound(err) {
			return model.AgentItem{}, ErrNotFound
		}
		return model.AgentItem{}, err
	}
	return agent, nil
}

func (r *DynamoRepository) GetAgentByEmail(ctx context.Context, email string) (model.AgentItem, error) {
	items, err := r.db.Client.ScanItems(ctx, model.AgentsTable,
		"email = :email",
		map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		}, nil)
	if err != nil {
		return model.AgentItem{}, err
	}
	if len(items) == 0 {
		return model.AgentItem{}, ErrNotFound
	}

	var agent model.AgentItem
	if err := attributevalue.UnmarshalMap(items[0], &agent); err != nil {
		return model.AgentItem{}, err
	}
	return agent, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
