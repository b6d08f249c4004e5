package chat

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("chat repository: not found")

type Repository interface {
	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	// CommitConversation writes the conversation guarded by its previous
	// version and, when releaseAgentID is set, decrements that agent's chat
	// count in the same transactional unit.
	CommitConversation(ctx context.Context, conversation model.ConversationItem, expectedVersion int, releaseAgentID string) error
	ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error)
	ListPendingBefore(ctx context.Context, cutoff string) ([]model.ConversationItem, error)

	CreateMessage(ctx context.Context, message model.MessageItem) error
	GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error)
	UpdateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error)
	// MarkConversationRead advances every non-deleted message authored by
	// authorRole to read, as one all-or-nothing unit per conversation.
	MarkConversationRead(ctx context.Context, conversationID string, authorRole model.SenderType, readAt string) (int, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	return r.db.Client.PutItem(ctx, model.ConversationsTable, conversation)
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

func (r *DynamoRepository) CommitConversation(ctx context.Context, conversation model.ConversationItem, expectedVersion int, releaseAgentID string) error {
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

func (r *DynamoRepository) ListConversations(ctx context.Context, limit int) ([]model.ConversationItem, error) {
	items, err := r.db.Client.ScanAll(ctx, model.ConversationsTable)
	if err != nil {
		return nil, err
	}

	conversations := make([]model.ConversationItem, 0, len(items))
	for _, item := range items {
		var conversation model.ConversationItem
		if err := attributevalue.UnmarshalMap(item, &conversation); err != nil {
			return nil, err
		}
		if conversation.Archived {
			continue
		}
		conversations = append(conversations, conversation)
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt > conversations[j].LastMessageAt
	})

	if limit > 0 && len(conversations) > limit {
		conversations = conversations[:limit]
	}

	return conversations, nil
}

func (r *DynamoRepository) ListPendingBefore(ctx context.Context, cutoff string) ([]model.ConversationItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.ConversationsTable,
		"#status = :pending AND createdAt < :cutoff",
		map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(model.ConversationStatusPending)},
			":cutoff":  &types.AttributeValueMemberS{Value: cutoff},
		},
		map[string]string{
			"#status": "status",
		},
	)
	if err != nil {
		return nil, err
	}

	conversations := make([]model.ConversationItem, 0, len(items))
	for _, item := range items {
		var conversation model.ConversationItem
		if err := attributevalue.UnmarshalMap(item, &conversation); err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}
	return conversations, nil
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message)
}

func (r *DynamoRepository) GetMessage(ctx context.Context, conversationID, messageID string) (model.MessageItem, error) {
	var message model.MessageItem
	err := r.db.Client.GetItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: model.MessagePK(conversationID, messageID)},
		},
		&message,
	)
	if err != nil {
		if isNotFound(err) {
			return model.MessageItem{}, ErrNotFound
		}
		return model.MessageItem{}, err
	}
	return message, nil
}

func (r *DynamoRepository) UpdateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.MessageItem, error) {
	scanForward := true
	items, err := r.db.Client.QueryItems(
		ctx,
		model.MessagesTable,
		aws.String("byConversation"),
		"conversationId = :conversationId",
		map[string]types.AttributeValue{
			":conversationId": &types.AttributeValueMemberS{Value: conversationID},
		},
		nil,
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.MessagesTable,
			"conversationId = :conversationId",
			map[string]types.AttributeValue{
				":conversationId": &types.AttributeValueMemberS{Value: conversationID},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	sort.Slice(messages, func(i, j int) bool {
		ti := parseTime(messages[i].CreatedAt)
		tj := parseTime(messages[j].CreatedAt)
		return ti.Before(tj)
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

func (r *DynamoRepository) MarkConversationRead(ctx context.Context, conversationID string, authorRole model.SenderType, readAt string) (int, error) {
	messages, err := r.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return 0, err
	}

	transact := make([]types.TransactWriteItem, 0, len(messages))
	for _, message := range messages {
		if message.Sender.Type != authorRole || message.IsDeleted {
			continue
		}
		if !message.Status.CanAdvance(model.MessageStatusRead) {
			continue
		}
		transact = append(transact, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(model.MessagesTable),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: message.PK},
				},
				UpdateExpression: aws.String("SET #status = :read, readAt = :readAt"),
				ExpressionAttributeNames: map[string]string{
					"#status": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":read":   &types.AttributeValueMemberS{Value: string(model.MessageStatusRead)},
					":readAt": &types.AttributeValueMemberS{Value: readAt},
				},
			},
		})
	}

	if len(transact) == 0 {
		return 0, nil
	}

	if err := r.db.Client.TransactWrite(ctx, transact); err != nil {
		return 0, err
	}
	return len(transact), nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
