package assignment

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("assignment repository: not found")

type Repository interface {
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	GetAgent(ctx context.Context, agentID string) (model.AgentItem, error)
	ListAgents(ctx context.Context) ([]model.AgentItem, error)
	GetDepartment(ctx context.Context, departmentID string) (model.DepartmentItem, error)
	// CommitAssignment applies the conversation write together with the agent
	// counter moves as one all-or-nothing unit. The conversation write is
	// guarded by expectedVersion, the assignee increment by remaining
	// capacity and the release decrement by a positive count.
	CommitAssignment(ctx context.Context, conversation model.ConversationItem, expectedVersion int, assignAgentID, releaseAgentID, assignedAt string) error
	UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus, activeAt string) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.GetItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		&conversation,
	)
	if err != nil {
		if isNotFound(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) GetAgent(ctx context.Context, agentID string) (model.AgentItem, error) {
	var agent model.AgentItem
	err := r.db.Client.GetItem(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		&agent,
	)
	if err != nil {
		if isNotFound(err) {
			return model.AgentItem{}, ErrNotFound
		}
		return model.AgentItem{}, err
	}
	return agent, nil
}

func (r *DynamoRepository) ListAgents(ctx context.Context) ([]model.AgentItem, error) {
	items, err := r.db.Client.ScanAll(ctx, model.AgentsTable)
	if err != nil {
		return nil, err
	}

	agents := make([]model.AgentItem, 0, len(items))
	for _, item := range items {
		var agent model.AgentItem
		if err := attributevalue.UnmarshalMap(item, &agent); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (r *DynamoRepository) GetDepartment(ctx context.Context, departmentID string) (model.DepartmentItem, error) {
	var department model.DepartmentItem
	err := r.db.Client.GetItem(
		ctx,
		model.DepartmentsTable,
		map[string]types.AttributeValue{
			"departmentId": &types.AttributeValueMemberS{Value: departmentID},
		},
		&department,
	)
	if err != nil {
		if isNotFound(err) {
			return model.DepartmentItem{}, ErrNotFound
		}
		return model.DepartmentItem{}, err
	}
	return department, nil
}

func (r *DynamoRepository) CommitAssignment(ctx context.Context, conversation model.ConversationItem, expectedVersion int, assignAgentID, releaseAgentID, assignedAt string) error {
	item, err := attributevalue.MarshalMap(conversation)
	if err != nil {
		return err
	}

	transact := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(model.ConversationsTable),
				Item:                item,
				ConditionExpression: aws.String("version = :expected"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedVersion)},
				},
			},
		},
	}

	if assignAgentID != "" {
		transact = append(transact, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(model.AgentsTable),
				Key: map[string]types.AttributeValue{
					"agentId": &types.AttributeValueMemberS{Value: assignAgentID},
				},
				UpdateExpression:    aws.String("SET currentChatCount = currentChatCount + :one, lastAssignedAt = :assignedAt"),
				ConditionExpression: aws.String("currentChatCount < maxConcurrentChats"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one":        &types.AttributeValueMemberN{Value: "1"},
					":assignedAt": &types.AttributeValueMemberS{Value: assignedAt},
				},
			},
		})
	}

	if releaseAgentID != "" {
		transact = append(transact, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(model.AgentsTable),
				Key: map[string]types.AttributeValue{
					"agentId": &types.AttributeValueMemberS{Value: releaseAgentID},
				},
				UpdateExpression:    aws.String("SET currentChatCount = currentChatCount - :one"),
				ConditionExpression: aws.String("currentChatCount > :zero"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one":  &types.AttributeValueMemberN{Value: "1"},
					":zero": &types.AttributeValueMemberN{Value: "0"},
				},
			},
		})
	}

	return r.db.Client.TransactWrite(ctx, transact)
}

// UpdateAgentStatus is conditioned on the item existing, otherwise the
// update would upsert a bare agent row for an id deleted mid-flight.
func (r *DynamoRepository) UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus, activeAt string) error {
	err := r.db.Client.UpdateItemConditional(
		ctx,
		model.AgentsTable,
		map[string]types.AttributeValue{
			"agentId": &types.AttributeValueMemberS{Value: agentID},
		},
		"SET #status = :status, lastActiveAt = :activeAt",
		"attribute_exists(agentId)",
		map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(status)},
			":activeAt": &types.AttributeValueMemberS{Value: activeAt},
		},
		map[string]string{
			"#status": "status",
		},
	)
	if errors.Is(err, database.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
