package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	"livechat-backend/internal/model"
	"livechat-backend/internal/queue"

	"github.com/google/uuid"
)

const signatureHeader = "X-Webhook-Signature"

// Doer is the slice of http.Client the delivery path needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Scheduler is the slice of the queue manager the delivery path needs.
type Scheduler interface {
	EnqueueJob(job queue.Job)
	EnqueueAfter(delay time.Duration, job queue.Job)
}

// Envelope is the wire format posted to subscribers.
type Envelope struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

const defaultMaxRetries = 3

type Service struct {
	repo       Repository
	client     Doer
	scheduler  Scheduler
	baseDelay  time.Duration
	maxRetries int
	now        func() time.Time
}

func New(db *database.Database, scheduler Scheduler, timeout time.Duration, baseDelay time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	svc := NewWithRepository(NewDynamoRepository(db), &http.Client{Timeout: timeout}, scheduler, baseDelay, nil)
	if retries := env.GetIntOrDefault(env.WebhookMaxRetries, defaultMaxRetries); retries > 0 {
		svc.maxRetries = retries
	}
	return svc
}

func NewWithRepository(repo Repository, client Doer, scheduler Scheduler, baseDelay time.Duration, now func() time.Time) *Service {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       repo,
		client:     client,
		scheduler:  scheduler,
		baseDelay:  baseDelay,
		maxRetries: defaultMaxRetries,
		now:        now,
	}
}

type CreateWebhookParams struct {
	Name    string
	URL     string
	Events  []string
	Secret  string
	Headers map[string]string
	Retry   model.RetryPolicy
}

// Create registers a subscription. Unknown event names are rejected so a
// typo does not silently subscribe to nothing.
func (s *Service) Create(ctx context.Context, params CreateWebhookParams) (model.WebhookItem, error) {
	if strings.TrimSpace(params.Name) == "" {
		return model.WebhookItem{}, fmt.Errorf("webhook name is required")
	}
	parsed, err := url.Parse(params.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return model.WebhookItem{}, fmt.Errorf("webhook url must be an absolute http(s) url")
	}
	if len(params.Events) == 0 {
		return model.WebhookItem{}, fmt.Errorf("webhook needs at least one event")
	}
	for _, event := range params.Events {
		if !knownEvent(event) {
			return model.WebhookItem{}, fmt.Errorf("unknown event %q", event)
		}
	}

	retry := params.Retry
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = s.maxRetries
	}
	if retry.RetryDelaySeconds <= 0 {
		retry.RetryDelaySeconds = int(s.baseDelay / time.Second)
		if retry.RetryDelaySeconds <= 0 {
			retry.RetryDelaySeconds = 1
		}
	}

	webhook := model.WebhookItem{
		WebhookID: uuid.NewString(),
		Name:      strings.TrimSpace(params.Name),
		URL:       params.URL,
		Events:    params.Events,
		IsActive:  true,
		Secret:    params.Secret,
		Headers:   params.Headers,
		Retry:     retry,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}

	if err := s.repo.CreateWebhook(ctx, webhook); err != nil {
		return model.WebhookItem{}, fmt.Errorf("store webhook: %w", err)
	}
	return webhook, nil
}

func (s *Service) List(ctx context.Context) ([]model.WebhookItem, error) {
	return s.repo.ListWebhooks(ctx)
}

func (s *Service) Delete(ctx context.Context, webhookID string) error {
	if _, err := s.repo.GetWebhook(ctx, webhookID); err != nil {
		return err
	}
	return s.repo.DeleteWebhook(ctx, webhookID)
}

// Test fires a synthetic event at one subscription regardless of its filter.
func (s *Service) Test(ctx context.Context, webhookID string) error {
	webhook, err := s.repo.GetWebhook(ctx, webhookID)
	if err != nil {
		return err
	}
	s.dispatch(webhook, model.EventWebhookTest, map[string]string{
		"webhookId": webhook.WebhookID,
		"message":   "test delivery",
	})
	return nil
}

// Trigger starts an independent delivery sequence for every active
// subscription of the event. It returns before any HTTP work happens, so it
// is safe to call while holding nothing but the caller's own stack.
func (s *Service) Trigger(eventType string, payload interface{}) {
	s.scheduler.EnqueueJob(queue.Job{Fn: func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		webhooks, err := s.repo.ListActiveByEvent(ctx, eventType)
		if err != nil {
			return fmt.Errorf("list webhooks for %s: %w", eventType, err)
		}
		for _, webhook := range webhooks {
			s.dispatch(webhook, eventType, payload)
		}
		return nil
	}})
}

// dispatch serializes the envelope once; every attempt of the sequence posts
// the same bytes and the same signature.
func (s *Service) dispatch(webhook model.WebhookItem, eventType string, payload interface{}) {
	envelope := Envelope{
		Event:     eventType,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Data:      payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("webhook %s: marshal envelope for %s: %v", webhook.WebhookID, eventType, err)
		return
	}

	signature := ""
	if webhook.Secret != "" {
		signature = sign(body, webhook.Secret)
	}

	s.scheduler.EnqueueJob(s.deliveryJob(webhook, eventType, body, signature, 0))
}

// deliveryJob is one attempt of a sequence. A failed attempt with budget left
// schedules the next one on the queue's timers, so a sequence never ties up a
// worker while waiting and survives whatever connection started it.
func (s *Service) deliveryJob(webhook model.WebhookItem, eventType string, body []byte, signature string, attempt int) queue.Job {
	return queue.Job{Fn: func() error {
		recordAttempt()
		err := s.post(webhook, body, signature)
		if err == nil {
			recordDelivered(eventType)
			if err := s.repo.RecordSuccess(context.Background(), webhook.WebhookID, s.now().UTC().Format(time.RFC3339)); err != nil {
				log.Printf("webhook %s: record success: %v", webhook.WebhookID, err)
			}
			return nil
		}

		if attempt >= webhook.Retry.MaxRetries {
			recordExhausted(eventType)
			lastError := model.WebhookError{
				Message:   err.Error(),
				Timestamp: s.now().UTC().Format(time.RFC3339),
			}
			if recErr := s.repo.RecordFailure(context.Background(), webhook.WebhookID, lastError); recErr != nil {
				log.Printf("webhook %s: record failure: %v", webhook.WebhookID, recErr)
			}
			log.Printf("webhook %s: delivery of %s failed after %d attempts: %v",
				webhook.WebhookID, eventType, attempt+1, err)
			return nil
		}

		s.scheduler.EnqueueAfter(s.retryDelay(webhook, attempt),
			s.deliveryJob(webhook, eventType, body, signature, attempt+1))
		return nil
	}}
}

// retryDelay is baseDelay doubled per attempt already made.
func (s *Service) retryDelay(webhook model.WebhookItem, attempt int) time.Duration {
	base := time.Duration(webhook.Retry.RetryDelaySeconds) * time.Second
	if base <= 0 {
		base = s.baseDelay
	}
	return base << uint(attempt)
}

func (s *Service) post(webhook model.WebhookItem, body []byte, signature string) error {
	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", res.StatusCode)
	}
	return nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func knownEvent(event string) bool {
	switch event {
	case model.EventConversationNew,
		model.EventConversationAssigned,
		model.EventConversationResolved,
		model.EventConversationClosed,
		model.EventConversationMissed,
		model.EventMessageNew,
		model.EventRatingReceived,
		model.EventAgentStatusChanged,
		model.EventWebhookTest:
		return true
	}
	return false
}
