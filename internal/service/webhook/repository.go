package webhook

import (
	"context"
	"errors"
	"strings"

	"livechat-backend/internal/database"
	"livechat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("webhook repository: not found")

type Repository interface {
	CreateWebhook(ctx context.Context, webhook model.WebhookItem) error
	GetWebhook(ctx context.Context, webhookID string) (model.WebhookItem, error)
	ListWebhooks(ctx context.Context) ([]model.WebhookItem, error)
	ListActiveByEvent(ctx context.Context, event string) ([]model.WebhookItem, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
	RecordSuccess(ctx context.Context, webhookID, triggeredAt string) error
	RecordFailure(ctx context.Context, webhookID string, lastError model.WebhookError) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateWebhook(ctx context.Context, webhook model.WebhookItem) error {
	return r.db.Client.PutItem(ctx, model.WebhooksTable, webhook)
}

func (r *DynamoRepository) GetWebhook(ctx context.Context, webhookID string) (model.WebhookItem, error) {
	var webhook model.WebhookItem
	err := r.db.Client.GetItem(
		ctx,
		model.WebhooksTable,
		map[string]types.AttributeValue{
			"webhookId": &types.AttributeValueMemberS{Value: webhookID},
		},
		&webhook,
	)
	if err != nil {
		if isNotFound(err) {
			return model.WebhookItem{}, ErrNotFound
		}
		return model.WebhookItem{}, err
	}
	return webhook, nil
}

func (r *DynamoRepository) ListWebhooks(ctx context.Context) ([]model.WebhookItem, error) {
	items, err := r.db.Client.ScanAll(ctx, model.WebhooksTable)
	if err != nil {
		return nil, err
	}

	webhooks := make([]model.WebhookItem, 0, len(items))
	for _, item := range items {
		var webhook model.WebhookItem
		if err := attributevalue.UnmarshalMap(item, &webhook); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, nil
}

func (r *DynamoRepository) ListActiveByEvent(ctx context.Context, event string) ([]model.WebhookItem, error) {
	items, err := r.db.Client.ScanItems(
		ctx,
		model.WebhooksTable,
		"isActive = :active AND contains(events, :event)",
		map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
			":event":  &types.AttributeValueMemberS{Value: event},
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	webhooks := make([]model.WebhookItem, 0, len(items))
	for _, item := range items {
		var webhook model.WebhookItem
		if err := attributevalue.UnmarshalMap(item, &webhook); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	return webhooks, nil
}

func (r *DynamoRepository) DeleteWebhook(ctx context.Context, webhookID string) error {
	return r.db.Client.DeleteItem(
		ctx,
		model.WebhooksTable,
		map[string]types.AttributeValue{
			"webhookId": &types.AttributeValueMemberS{Value: webhookID},
		},
	)
}

func (r *DynamoRepository) RecordSuccess(ctx context.Context, webhookID, triggeredAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.WebhooksTable,
		map[string]types.AttributeValue{
			"webhookId": &types.AttributeValueMemberS{Value: webhookID},
		},
		"ADD successCount :one SET lastTriggeredAt = :triggeredAt",
		map[string]types.AttributeValue{
			":one":         &types.AttributeValueMemberN{Value: "1"},
			":triggeredAt": &types.AttributeValueMemberS{Value: triggeredAt},
		},
		nil,
		nil,
	)
}

func (r *DynamoRepository) RecordFailure(ctx context.Context, webhookID string, lastError model.WebhookError) error {
	errAttr, err := attributevalue.MarshalMap(lastError)
	if err != nil {
		return err
	}
	return r.db.Client.UpdateItem(
		ctx,
		model.WebhooksTable,
		map[string]types.AttributeValue{
			"webhookId": &types.AttributeValueMemberS{Value: webhookID},
		},
		"ADD failureCount :one SET lastError = :lastError, lastTriggeredAt = :triggeredAt",
		map[string]types.AttributeValue{
			":one":         &types.AttributeValueMemberN{Value: "1"},
			":lastError":   &types.AttributeValueMemberM{Value: errAttr},
			":triggeredAt": &types.AttributeValueMemberS{Value: lastError.Timestamp},
		},
		nil,
		nil,
	)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}
